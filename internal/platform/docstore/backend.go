// Package docstore is a path addressed JSON document store with collection
// queries, merge writes, access rules and live listeners. Documents live at
// paths that alternate collection and document segments, for example
// users/{uid}/reports/{reportID}.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidPath      = errors.New("invalid document path")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("missing or insufficient permissions")
)

// Snapshot is the state of one document at read time. Exists is false when
// the document is absent; Data is then nil.
type Snapshot struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Data       map[string]any `json:"data"`
	Exists     bool           `json:"exists"`
	UpdateTime time.Time      `json:"updateTime"`
}

// Backend persists documents. Paths passed to a Backend are already clean.
type Backend interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	// Set writes data at path. With merge, top-level fields of data are merged
	// into the existing document instead of replacing it.
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Delete(ctx context.Context, path string) error
}

// SetOptions controls a write.
type SetOptions struct {
	Merge bool
}
