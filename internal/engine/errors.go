package engine

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by mutators after Close.
var ErrClosed = errors.New("engine closed")

// FeatureFetchError reports a candidate whose geometry could not be read.
// The candidate is skipped.
type FeatureFetchError struct {
	LayerID   string
	FeatureID int64
	Err       error
}

func (e *FeatureFetchError) Error() string {
	return fmt.Sprintf("fetch feature %d of layer %s: %v", e.FeatureID, e.LayerID, e.Err)
}

func (e *FeatureFetchError) Unwrap() error { return e.Err }

// SelectionCommitError reports a layer whose selection could not be read or
// replaced. The layer's selection is left as it was.
type SelectionCommitError struct {
	LayerID string
	Err     error
}

func (e *SelectionCommitError) Error() string {
	return fmt.Sprintf("commit selection of layer %s: %v", e.LayerID, e.Err)
}

func (e *SelectionCommitError) Unwrap() error { return e.Err }

// LayerPanicError wraps a panic raised by a host collaborator while one
// layer was processed.
type LayerPanicError struct {
	LayerID string
	Value   any
}

func (e *LayerPanicError) Error() string {
	return fmt.Sprintf("layer %s: panic: %v", e.LayerID, e.Value)
}
