package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/logsync/internal/state"
)

// testDB opens a fresh database in a temp directory.
func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleState(user string) *state.State {
	st := state.New(user)
	st.SetChecklist("Setup", "cl-1")
	st.SetItem(state.ItemKey{Milestone: "Setup", Text: "init repo"}, state.ItemRecord{ID: "it-1"})
	st.SetItem(state.ItemKey{Milestone: "Setup", Text: "write README"}, state.ItemRecord{ID: "it-2", Checked: true})
	st.SetComment("2024-01-05", state.CommentRecord{ID: "c-1", Hash: "abc"})
	return st
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)

	if err := db.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}

	for _, table := range []string{"checklists", "items", "comments", "runs"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestLoad_UnknownUserIsEmpty(t *testing.T) {
	db := testDB(t)

	st, err := db.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !st.IsEmpty() {
		t.Errorf("expected empty state, got %+v", st)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	want := sampleState("alice")
	if err := db.Save(ctx, "alice", want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := db.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_ReplacesOnlyThatUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, "alice", sampleState("alice")); err != nil {
		t.Fatalf("Save(alice) failed: %v", err)
	}
	if err := db.Save(ctx, "bob", sampleState("bob")); err != nil {
		t.Fatalf("Save(bob) failed: %v", err)
	}

	smaller := state.New("alice")
	smaller.SetChecklist("Setup", "cl-1")
	if err := db.Save(ctx, "alice", smaller); err != nil {
		t.Fatalf("second Save(alice) failed: %v", err)
	}

	alice, err := db.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load(alice) failed: %v", err)
	}
	if len(alice.Items) != 0 || len(alice.Comments) != 0 || len(alice.Checklists) != 1 {
		t.Errorf("alice state not replaced: %+v", alice)
	}

	bob, err := db.Load(ctx, "bob")
	if err != nil {
		t.Fatalf("Load(bob) failed: %v", err)
	}
	if diff := cmp.Diff(sampleState("bob"), bob); diff != "" {
		t.Errorf("bob state changed (-want +got):\n%s", diff)
	}

	users, err := db.Users(ctx)
	if err != nil {
		t.Fatalf("Users() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, users); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_CancelledContextKeepsPreviousState(t *testing.T) {
	db := testDB(t)

	if err := db.Save(context.Background(), "alice", sampleState("alice")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.Save(ctx, "alice", state.New("alice")); err == nil {
		t.Fatal("Save() with cancelled context should fail")
	}

	got, err := db.Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(sampleState("alice"), got); diff != "" {
		t.Errorf("state changed by failed save (-want +got):\n%s", diff)
	}
}

func TestSave_RejectsEmptyUser(t *testing.T) {
	db := testDB(t)
	if err := db.Save(context.Background(), "", state.New("")); err == nil {
		t.Error("Save() with empty user should fail")
	}
}

func TestRecordRun_LastRun(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	last, err := db.LastRun(ctx, "alice")
	if err != nil {
		t.Fatalf("LastRun() failed: %v", err)
	}
	if last != nil {
		t.Fatalf("expected no run, got %+v", last)
	}

	base := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	runs := []state.RunRecord{
		{RunID: "r1", User: "alice", StartedAt: base, FinishedAt: base.Add(time.Second), Created: 3},
		{RunID: "r2", User: "alice", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Second), Failed: 1, Error: "fetch failed"},
	}
	for _, r := range runs {
		if err := db.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", r.RunID, err)
		}
	}

	last, err = db.LastRun(ctx, "alice")
	if err != nil {
		t.Fatalf("LastRun() failed: %v", err)
	}
	if diff := cmp.Diff(&runs[1], last); diff != "" {
		t.Errorf("last run mismatch (-want +got):\n%s", diff)
	}
	if last.OK() {
		t.Error("OK() = true for a run with an error")
	}
}

func TestCounts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, "alice", sampleState("alice")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	cl, it, cm, err := db.Counts(ctx, "alice")
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if cl != 1 || it != 2 || cm != 1 {
		t.Errorf("Counts() = %d, %d, %d; want 1, 2, 1", cl, it, cm)
	}
}
