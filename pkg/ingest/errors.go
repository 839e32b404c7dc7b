package ingest

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIO marks a source that could not be opened, read or decoded.
	ErrIO = errors.New("io error")

	// ErrFatalStore marks a source whose batch could not be applied:
	// retries exhausted or a non-transient store failure.
	ErrFatalStore = errors.New("fatal store error")

	// ErrCancelled marks a source interrupted by cancellation.
	ErrCancelled = fmt.Errorf("ingestion cancelled: %w", context.Canceled)

	// ErrSourcesFailed is returned by Pipeline.Run when any source failed.
	ErrSourcesFailed = errors.New("one or more sources failed")
)
