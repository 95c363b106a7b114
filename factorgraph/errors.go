package factorgraph

import (
	"github.com/pkg/errors"
)

var (
	// ErrDimensionMismatch is returned when a Gaussian or Message is combined with one of a
	// different number of degrees of freedom. It indicates a construction bug.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrSingularPrecision is returned when a precision matrix cannot be inverted into a finite
	// covariance.
	ErrSingularPrecision = errors.New("singular precision matrix")

	// ErrNodeNotFound is returned when an edge refers to a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")
)

// NewDimensionMismatchError returns an error wrapping ErrDimensionMismatch.
func NewDimensionMismatchError(expected, actual int) error {
	return errors.Wrapf(ErrDimensionMismatch, "expected %d dofs but got %d", expected, actual)
}

// NewNodeNotFoundError returns an error wrapping ErrNodeNotFound.
func NewNodeNotFoundError(id interface{}) error {
	return errors.Wrapf(ErrNodeNotFound, "%v", id)
}
