// Package source fetches a user's log file from the repository that holds it.
//
// Two backends are provided: GitHub reads files through the contents API and
// Git reads them from a local clone, fetching the branch first.
package source

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the branch or the file does not exist.
var ErrNotFound = errors.New("file not found")

// FileSource returns the content of a file on a branch.
type FileSource interface {
	Fetch(ctx context.Context, branch, path string) (string, error)
}
