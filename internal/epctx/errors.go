package epctx

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrInvalidContextGraph classifies every load-side failure. Hosts
	// match on it to fall back to full recompilation instead of aborting.
	ErrInvalidContextGraph = errors.New("invalid cached context graph")

	ErrNotContextNode   = errors.New("node is not an EPContext node")
	ErrPartitionShape   = errors.New("filtered graph must contain exactly one EPContext node")
	ErrNoMainContext    = errors.New("no EPContext node with main_context=1")
	ErrUnsafePath       = errors.New("unsafe external context path")
	ErrEmptyCachePath   = errors.New("ep_cache_context path is empty")
	ErrCacheFileMissing = errors.New("context cache file does not exist or is not a regular file")
	ErrEmptyCacheFile   = errors.New("empty context cache file")
	ErrBackendLoad      = errors.New("backend rejected context buffer")
	ErrUnknownTensor    = errors.New("tensor not found in compiled model info")
	ErrUnknownPartition = errors.New("partition not found in compiled model table")
	ErrNilSharedContext = errors.New("context sharing enabled without a shared context")
	ErrDigestMismatch   = errors.New("context binary digest mismatch")
)

// InvalidGraphError wraps a load-side failure so callers can both match
// the broad ErrInvalidContextGraph classification and still reach the
// underlying cause with errors.Is/As.
type InvalidGraphError struct {
	Err error
}

// Error implements the error interface.
func (e *InvalidGraphError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidContextGraph.Error(), e.Err.Error())
}

// Unwrap exposes the underlying cause.
func (e *InvalidGraphError) Unwrap() error { return e.Err }

// Is matches the broad classification sentinel.
func (e *InvalidGraphError) Is(target error) bool { return target == ErrInvalidContextGraph }

// invalidGraph classifies err as an invalid-cached-graph failure.
// Passing nil returns nil; already-classified errors pass through.
func invalidGraph(err error) error {
	if err == nil {
		return nil
	}
	var ig *InvalidGraphError
	if errors.As(err, &ig) {
		return err
	}
	return &InvalidGraphError{Err: err}
}
