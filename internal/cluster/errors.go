package cluster

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cluster package.
var (
	// ErrInvalidLoad is returned for a negative, NaN or infinite load.
	ErrInvalidLoad = errors.New("invalid load")

	// ErrNegativeDistance is returned when a neighbor query has distance < 0.
	ErrNegativeDistance = errors.New("negative distance")

	// ErrRegionTaken is returned when a second node claims a served region.
	ErrRegionTaken = errors.New("region already served")

	// ErrUnknownNode is returned when removing a node that is not in the table.
	ErrUnknownNode = errors.New("unknown node")
)

// Error is a failure reported by the cluster collaborator.
type Error struct {
	// Op is the query or mutation that failed.
	Op string

	// Region is the region involved, if any.
	Region *Region

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Region != nil {
		return fmt.Sprintf("cluster %s %s: %v", e.Op, e.Region, e.Err)
	}
	return fmt.Sprintf("cluster %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
