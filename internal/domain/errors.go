package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline. Callers match them with
// errors.Is; packages wrap them with fmt.Errorf("%w: ...") to add
// detail without breaking the match.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates a request that fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable indicates no usable model artifact is loaded.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrStoreUnavailable indicates the record store cannot be reached
	// or refused the operation.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// DimensionError reports a feature vector whose length does not match
// the model input dimension. It always means the feature map and the
// model artifact are out of step; scoring must not proceed.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("feature vector has %d entries, model expects %d", e.Got, e.Want)
}

// SchemaError reports a feature map that fails structural validation.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "invalid feature map: " + e.Reason
}
