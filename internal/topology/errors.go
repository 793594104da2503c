package topology

import (
	"errors"
	"fmt"

	"github.com/KilluaDB/topology/internal/models"
)

// ErrStaleTarget means a merge target is no longer present in the tree.
var ErrStaleTarget = errors.New("merge target not found in tree")

var (
	ErrClosed         = errors.New("topology view is closed")
	ErrNotLoaded      = errors.New("topology has not been loaded")
	ErrNothingToRetry = errors.New("no failed fetch to retry")
)

// FetchError wraps a failed relationship fetch. Key is empty for the
// initial load.
type FetchError struct {
	Key     models.NodeKey
	Schema  string
	Table   string
	Initial bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.Initial {
		return fmt.Sprintf("failed to load relationships for %s.%s: %v", e.Schema, e.Table, e.Err)
	}
	return fmt.Sprintf("failed to expand %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
