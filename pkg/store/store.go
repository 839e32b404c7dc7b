// Package store defines the storage interface and its error kinds.
package store

import (
	"context"
	"errors"

	"github.com/Zerofisher/wordchain/pkg/model"
)

// SchemaVersion is incremented when schema changes require a fresh database.
const SchemaVersion = 1

// Statement sizing limits. SQLite binds at most 32766 host parameters per
// statement; a word row takes five and a follower row three.
const (
	MaxStatementParams = 32766
	MaxSubBatch        = MaxStatementParams / 5
	MaxResolveChunk    = MaxStatementParams
)

var (
	// ErrTransient marks lock contention that is worth retrying.
	ErrTransient = errors.New("transient store error")

	// ErrSchemaMismatch is returned when an existing database was created
	// with a different SchemaVersion.
	ErrSchemaMismatch = errors.New("schema version mismatch")

	// ErrNotFound is returned by lookups when no row exists.
	ErrNotFound = errors.New("not found")

	// ErrNoBatch is returned by batch operations called outside BeginBatch/CommitBatch.
	ErrNoBatch = errors.New("no batch in progress")
)

// IsTransient reports whether err (or anything it wraps) is ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Store is the full storage handle.
type Store interface {
	// Lifecycle
	Close() error

	// Metadata
	SchemaVersion(ctx context.Context) (int, error)

	// Write operations (used by the ingest writer)
	Writer
}

// Writer defines write-side operations for the ingest writer. All upserts
// add to existing counts; there is no delete path.
type Writer interface {
	// EnsureFile returns the id for path, inserting a row with zero words
	// and today's date when absent. It runs in its own transaction.
	EnsureFile(ctx context.Context, path string) (int64, error)

	// BeginBatch starts a batch write transaction.
	BeginBatch(ctx context.Context) error

	// CommitBatch commits the current batch.
	CommitBatch() error

	// RollbackBatch rolls back the current batch. It is a no-op without one.
	RollbackBatch() error

	// UpsertWords adds word deltas. Deltas are written in the given order.
	UpsertWords(ctx context.Context, deltas []model.WordDelta) error

	// ResolveIDs maps tokens to word ids. Unknown tokens are absent from the result.
	ResolveIDs(ctx context.Context, tokens []string) (map[string]int64, error)

	// UpsertFollowers adds follower deltas. Unresolved deltas are skipped.
	UpsertFollowers(ctx context.Context, deltas []model.FollowerDelta) error

	// AddFileWordCount adds n to the file's stored word count.
	AddFileWordCount(ctx context.Context, fileID, n int64) error
}
