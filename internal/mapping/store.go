// Package mapping holds the course-to-webhook mapping and the cache that
// fronts its durable copy.
//
// The mapping is one flat JSON object stored under a single blob key. Writes
// always replace the whole object; callers that want to merge must read,
// modify, and write the full set themselves.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// ErrBlobNotFound is returned by a BlobStore when the key has never been
// written.
var ErrBlobNotFound = errors.New("mapping: blob not found")

// BlobStore is durable key-value byte storage. Write is a full overwrite.
type BlobStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// Mapping maps a course id to its destination webhook URI.
//
// A Mapping returned by Cache.Load is shared with other readers and must not
// be modified. Use Clone to derive an editable copy.
type Mapping map[string]string

// Lookup returns the URI bound to courseID. An empty URI counts as unbound.
func (m Mapping) Lookup(courseID string) (string, bool) {
	uri := m[courseID]
	return uri, uri != ""
}

// Clone returns an independent copy. The clone of a nil Mapping is empty,
// not nil.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	maps.Copy(out, m)
	return out
}

// DecodeError means the stored blob is not a flat JSON object of strings.
// It indicates corruption and is never swallowed.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("mapping: blob %q is not a valid mapping: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StoreAccessError wraps any BlobStore failure other than not-found.
type StoreAccessError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreAccessError) Error() string {
	return fmt.Sprintf("mapping: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreAccessError) Unwrap() error { return e.Err }
