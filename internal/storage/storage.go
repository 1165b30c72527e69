// Package storage provides the key-path addressable durable store the core
// runs on: point reads and writes, prefix listing, atomic counters, and a
// change feed scoped to a path prefix. Two backends exist, Redis and
// PostgreSQL; everything above this package is backend-agnostic.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

// Entry is one stored record returned by List, ordered by path ascending.
type Entry struct {
	Path  string
	Value []byte
}

// Event describes a single change observed by a watcher.
type Event struct {
	Path    string
	Value   []byte
	Deleted bool
}

// CancelFunc stops a watch. Safe to call more than once and safe to call
// concurrently with an in-flight delivery.
type CancelFunc func()

// Store is the durable storage boundary. Writes to a single path are atomic;
// no multi-path transaction is offered, and callers compensate instead.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, value []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Incr atomically increments the counter at path and returns the new
	// value. The first call returns 1.
	Incr(ctx context.Context, path string) (int64, error)
	// Watch delivers subsequent changes under prefix to fn, in emission
	// order, from a single goroutine per watcher. A watcher that cannot keep
	// up may miss events; consumers recover by re-reading the paths they
	// care about.
	Watch(ctx context.Context, prefix string, fn func(Event)) (CancelFunc, error)
	Ping(ctx context.Context) error
	Close() error
}
