// Package sqlite stores sync state in an embedded SQLite database.
//
// The database runs in WAL mode so the status and verify commands can read
// while a sync is writing. Each Save replaces one user's rows inside a single
// transaction: an interrupted save rolls back and leaves the previous state of
// that user, and other users' rows are never touched.
//
// Tables:
//   - checklists: (user, title) -> checklist_id
//   - items:      (user, milestone, text) -> item_id, checked
//   - comments:   (user, log_date) -> comment_id, content_hash
//   - runs:       per-user run history for `logsync status`
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/logsync/internal/state"
)

// timeFormat is fixed-width so run timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the SQLite connection and implements state.Store and state.RunRecorder.
type DB struct {
	conn *sql.DB
	path string
}

var (
	_ state.Store       = (*DB)(nil)
	_ state.RunRecorder = (*DB)(nil)
)

// Open creates or opens the state database at path and initializes the schema.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One writer; extra connections only help concurrent readers.
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Safe to call repeatedly.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS checklists (
		user TEXT NOT NULL,
		title TEXT NOT NULL,
		checklist_id TEXT NOT NULL,
		PRIMARY KEY (user, title)
	);

	CREATE TABLE IF NOT EXISTS items (
		user TEXT NOT NULL,
		milestone TEXT NOT NULL,
		text TEXT NOT NULL,
		item_id TEXT NOT NULL,
		checked INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user, milestone, text)
	);

	CREATE TABLE IF NOT EXISTS comments (
		user TEXT NOT NULL,
		log_date TEXT NOT NULL,  -- 2006-01-02
		comment_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (user, log_date)
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT NOT NULL,
		user TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		PRIMARY KEY (run_id, user)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user, finished_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Load implements state.Store.Load. A user with no rows gets an empty state.
func (db *DB) Load(ctx context.Context, user string) (*state.State, error) {
	if user == "" {
		return nil, state.ErrInvalidUser
	}

	st := state.New(user)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT title, checklist_id FROM checklists WHERE user = ?`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query checklists: %w", err)
	}
	for rows.Next() {
		var title, id string
		if err := rows.Scan(&title, &id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan checklist: %w", err)
		}
		st.SetChecklist(title, id)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("failed to read checklists: %w", err)
	}

	rows, err = db.conn.QueryContext(ctx,
		`SELECT milestone, text, item_id, checked FROM items WHERE user = ?`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	for rows.Next() {
		var key state.ItemKey
		var rec state.ItemRecord
		if err := rows.Scan(&key.Milestone, &key.Text, &rec.ID, &rec.Checked); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		st.SetItem(key, rec)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	rows, err = db.conn.QueryContext(ctx,
		`SELECT log_date, comment_id, content_hash FROM comments WHERE user = ?`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	for rows.Next() {
		var date string
		var rec state.CommentRecord
		if err := rows.Scan(&date, &rec.ID, &rec.Hash); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		st.SetComment(date, rec)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("failed to read comments: %w", err)
	}

	return st, nil
}

// Save implements state.Store.Save.
func (db *DB) Save(ctx context.Context, user string, st *state.State) error {
	if user == "" {
		return state.ErrInvalidUser
	}
	if st == nil {
		return errors.New("state is nil")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"checklists", "items", "comments"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user = ?", user); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", table, user, err)
		}
	}

	for _, title := range st.SortedChecklistTitles() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checklists (user, title, checklist_id) VALUES (?, ?, ?)`,
			user, title, st.Checklists[title]); err != nil {
			return fmt.Errorf("failed to insert checklist %q: %w", title, err)
		}
	}

	for _, key := range st.SortedItemKeys() {
		rec := st.Items[key]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (user, milestone, text, item_id, checked) VALUES (?, ?, ?, ?, ?)`,
			user, key.Milestone, key.Text, rec.ID, rec.Checked); err != nil {
			return fmt.Errorf("failed to insert item %q/%q: %w", key.Milestone, key.Text, err)
		}
	}

	for _, date := range st.SortedCommentDates() {
		rec := st.Comments[date]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comments (user, log_date, comment_id, content_hash) VALUES (?, ?, ?, ?)`,
			user, date, rec.ID, rec.Hash); err != nil {
			return fmt.Errorf("failed to insert comment %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Users implements state.Store.Users.
func (db *DB) Users(ctx context.Context) ([]string, error) {
	query := `
	SELECT user FROM checklists
	UNION SELECT user FROM items
	UNION SELECT user FROM comments
	ORDER BY user
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// RecordRun implements state.RunRecorder.RecordRun.
func (db *DB) RecordRun(ctx context.Context, rec state.RunRecord) error {
	query := `
	INSERT INTO runs (run_id, user, started_at, finished_at, created, updated, deleted, failed, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, user) DO UPDATE SET
		finished_at = excluded.finished_at,
		created = excluded.created,
		updated = excluded.updated,
		deleted = excluded.deleted,
		failed = excluded.failed,
		error = excluded.error
	`
	_, err := db.conn.ExecContext(ctx, query,
		rec.RunID,
		rec.User,
		rec.StartedAt.UTC().Format(timeFormat),
		rec.FinishedAt.UTC().Format(timeFormat),
		rec.Created,
		rec.Updated,
		rec.Deleted,
		rec.Failed,
		nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record run for %s: %w", rec.User, err)
	}
	return nil
}

// LastRun implements state.RunRecorder.LastRun. It returns nil, nil when the
// user has never run.
func (db *DB) LastRun(ctx context.Context, user string) (*state.RunRecord, error) {
	query := `
	SELECT run_id, user, started_at, finished_at, created, updated, deleted, failed, error
	FROM runs WHERE user = ?
	ORDER BY finished_at DESC
	LIMIT 1
	`
	var (
		rec               state.RunRecord
		started, finished string
		errText           sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, query, user).Scan(
		&rec.RunID, &rec.User, &started, &finished,
		&rec.Created, &rec.Updated, &rec.Deleted, &rec.Failed, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last run for %s: %w", user, err)
	}

	if rec.StartedAt, err = time.Parse(timeFormat, started); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	if rec.FinishedAt, err = time.Parse(timeFormat, finished); err != nil {
		return nil, fmt.Errorf("invalid finished_at %q: %w", finished, err)
	}
	rec.Error = errText.String
	return &rec, nil
}

// Counts returns the number of mapped checklists, items and comments for user.
func (db *DB) Counts(ctx context.Context, user string) (checklists, items, comments int, err error) {
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"checklists", &checklists},
		{"items", &items},
		{"comments", &comments},
	} {
		row := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table+" WHERE user = ?", user)
		if err = row.Scan(q.dst); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to count %s: %w", q.table, err)
		}
	}
	return checklists, items, comments, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
