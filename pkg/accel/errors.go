package accel

import (
	"errors"
	"fmt"
)

var (
	ErrAllocation    = errors.New("accel: allocation failed")
	ErrInvalidHandle = errors.New("accel: invalid or released handle")
	ErrBusy          = errors.New("accel: handle referenced by an outstanding dispatch")
	ErrCopySize      = errors.New("accel: host and device sizes differ")
	ErrLaunch        = errors.New("accel: kernel launch failed")
	ErrClosed        = errors.New("accel: device closed")
	ErrLeak          = errors.New("accel: handles still allocated at close")
)

// AllocationError reports a request the device memory budget cannot hold.
type AllocationError struct {
	What      string
	Requested int64
	Available int64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("accel: cannot allocate %s: %d bytes requested, %d available", e.What, e.Requested, e.Available)
}

func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocation
}
