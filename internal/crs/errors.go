package crs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCRS indicates a CRS code that is not registered.
	ErrUnknownCRS = errors.New("unknown CRS")

	// ErrNoTransformPath indicates there is no way to go between two CRSs.
	ErrNoTransformPath = errors.New("no transform path")

	// ErrOutOfDomain indicates a coordinate outside the projection's valid area.
	ErrOutOfDomain = errors.New("coordinate outside projection domain")

	// ErrSingularTransform indicates an affine definition that cannot be inverted.
	ErrSingularTransform = errors.New("affine transform is not invertible")
)

// TransformError reports a failed reprojection between two CRSs.
type TransformError struct {
	Source CRS
	Target CRS
	Err    error
}

func (e *TransformError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transform %s -> %s: %v", e.Source, e.Target, e.Err)
}

func (e *TransformError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
