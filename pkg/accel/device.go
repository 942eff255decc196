// Package accel is the parallel compute side of the grading pipeline: it owns
// device memory for the LUT and frame buffers, moves data between host and
// device, and runs the colour transform kernel across the frame in tiles.
//
// Device memory is never shared with the host. Data crosses only through
// Upload and Download, and a kernel launched with Transform is complete only
// once Synchronize returns.
package accel

import (
	"github.com/jpfielding/lutgrade.go/pkg/lut"
)

// Handle names one device allocation.
type Handle uint64

// Buffer is a device-resident byte buffer.
type Buffer struct {
	h    Handle
	size int
}

// Handle returns the allocation handle for Free.
func (b *Buffer) Handle() Handle { return b.h }

// Len is the size of the buffer in bytes.
func (b *Buffer) Len() int { return b.size }

// CubeHandle is a device-resident LUT lattice.
type CubeHandle struct {
	h    Handle
	size int
}

// Handle returns the allocation handle for Free.
func (c *CubeHandle) Handle() Handle { return c.h }

// Size is the lattice resolution per axis.
func (c *CubeHandle) Size() int { return c.size }

// Stats is a snapshot of device usage.
type Stats struct {
	Live       int
	InUse      int64
	Peak       int64
	Dispatches uint64
	Tiles      uint64
}

// Device is the buffer manager and kernel launcher.
type Device interface {
	// Name identifies the implementation in logs.
	Name() string
	// UploadCube copies the lattice (3*N^3 floats) into device memory.
	UploadCube(cube *lut.Cube) (*CubeHandle, error)
	// AllocateFramePair allocates input and output buffers of exactly byteSize.
	AllocateFramePair(byteSize int) (in, out *Buffer, err error)
	// Upload blocks until host is copied into dst.
	Upload(host []byte, dst *Buffer) error
	// Download blocks until src is copied into host.
	Download(src *Buffer, host []byte) error
	// Transform launches the colour kernel. Launch faults surface from Synchronize.
	Transform(in, out *Buffer, width, height, stride int, cube *CubeHandle) error
	// Synchronize waits for the outstanding dispatch and reports its outcome.
	Synchronize() error
	// Free releases one allocation. It must be called once per allocation.
	Free(h Handle) error
	// Stats reports memory and dispatch counters.
	Stats() Stats
	// Close stops the device and reports leaked allocations.
	Close() error
}
