package accel

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/jpfielding/lutgrade.go/pkg/lut"
)

// DefaultMemoryLimit bounds device memory for a HostDevice.
const DefaultMemoryLimit int64 = 1 << 30

// Options configures a HostDevice.
type Options struct {
	Workers     int   // parallel lanes, 0 means GOMAXPROCS
	TileSize    int   // tile edge in pixels, 0 means DefaultTileSize
	MemoryLimit int64 // device memory budget in bytes, 0 means DefaultMemoryLimit
}

type allocKind int

const (
	kindBuffer allocKind = iota + 1
	kindCube
)

func (k allocKind) String() string {
	switch k {
	case kindBuffer:
		return "buffer"
	case kindCube:
		return "cube"
	default:
		return "unknown"
	}
}

type allocation struct {
	kind   allocKind
	bytes  []byte
	floats []float32
	n      int // lattice size for cubes
	size   int64
	refs   int // outstanding dispatches
}

// dispatch is one in-flight kernel launch.
type dispatch struct {
	in, out []byte
	stride  int
	lut     lattice
	refs    []*allocation
	tiles   int
	start   time.Time

	wg   sync.WaitGroup
	mu   sync.Mutex
	err  error
	done chan struct{}
}

func (d *dispatch) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
}

// HostDevice runs the kernel on a pool of goroutine lanes over a private
// memory arena. Launches are ordered like a single accelerator stream: a new
// launch or copy waits for the previous launch to finish executing.
type HostDevice struct {
	opts Options

	mu       sync.Mutex
	next     Handle
	mem      map[Handle]*allocation
	used     int64
	peak     int64
	pending  *dispatch
	lastErr  error
	closed   bool
	launches uint64
	ntiles   uint64

	work    chan tile
	workers sync.WaitGroup
}

var _ Device = (*HostDevice)(nil)

// NewHostDevice starts the worker lanes.
func NewHostDevice(opts Options) *HostDevice {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.TileSize <= 0 {
		opts.TileSize = DefaultTileSize
	}
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = DefaultMemoryLimit
	}
	d := &HostDevice{
		opts: opts,
		mem:  make(map[Handle]*allocation),
		work: make(chan tile, opts.Workers*4),
	}
	d.workers.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.lane()
	}
	slog.Debug("host device started",
		slog.Int("workers", opts.Workers),
		slog.Int("tile", opts.TileSize),
		slog.Int64("memory_limit", opts.MemoryLimit))
	return d
}

func (d *HostDevice) lane() {
	defer d.workers.Done()
	for t := range d.work {
		d.exec(t)
	}
}

func (d *HostDevice) exec(t tile) {
	defer t.d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.d.fail(fmt.Errorf("%w: fault in tile (%d,%d): %v", ErrLaunch, t.x0, t.y0, r))
		}
	}()
	t.run()
}

func (d *HostDevice) Name() string {
	return fmt.Sprintf("host(%d lanes)", d.opts.Workers)
}

func (d *HostDevice) alloc(kind allocKind, size int64, what string) (Handle, *allocation, error) {
	if d.closed {
		return 0, nil, ErrClosed
	}
	if size <= 0 {
		return 0, nil, &AllocationError{What: what, Requested: size, Available: d.opts.MemoryLimit - d.used}
	}
	if d.used+size > d.opts.MemoryLimit {
		return 0, nil, &AllocationError{What: what, Requested: size, Available: d.opts.MemoryLimit - d.used}
	}
	d.next++
	a := &allocation{kind: kind, size: size}
	d.mem[d.next] = a
	d.used += size
	d.peak = max(d.peak, d.used)
	return d.next, a, nil
}

func (d *HostDevice) UploadCube(cube *lut.Cube) (*CubeHandle, error) {
	if err := cube.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h, a, err := d.alloc(kindCube, int64(len(cube.Data))*4, "lut cube")
	if err != nil {
		return nil, err
	}
	a.floats = append(make([]float32, 0, len(cube.Data)), cube.Data...)
	a.n = cube.Size
	return &CubeHandle{h: h, size: cube.Size}, nil
}

func (d *HostDevice) AllocateFramePair(byteSize int) (*Buffer, *Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.used+2*int64(byteSize) > d.opts.MemoryLimit {
		return nil, nil, &AllocationError{What: "frame pair", Requested: 2 * int64(byteSize), Available: d.opts.MemoryLimit - d.used}
	}
	hin, ain, err := d.alloc(kindBuffer, int64(byteSize), "frame input")
	if err != nil {
		return nil, nil, err
	}
	hout, aout, err := d.alloc(kindBuffer, int64(byteSize), "frame output")
	if err != nil {
		d.release(hin)
		return nil, nil, err
	}
	ain.bytes = make([]byte, byteSize)
	aout.bytes = make([]byte, byteSize)
	return &Buffer{h: hin, size: byteSize}, &Buffer{h: hout, size: byteSize}, nil
}

// awaitLocked lets the outstanding launch finish executing. Its outcome is
// kept for the next Synchronize.
func (d *HostDevice) awaitLocked() {
	p := d.pending
	if p == nil {
		return
	}
	d.mu.Unlock()
	<-p.done
	d.mu.Lock()
}

func (d *HostDevice) buffer(b *Buffer) (*allocation, error) {
	if b == nil {
		return nil, ErrInvalidHandle
	}
	a, ok := d.mem[b.h]
	if !ok || a.kind != kindBuffer {
		return nil, fmt.Errorf("%w: buffer %d", ErrInvalidHandle, b.h)
	}
	return a, nil
}

func (d *HostDevice) Upload(host []byte, dst *Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.awaitLocked()
	a, err := d.buffer(dst)
	if err != nil {
		return err
	}
	if len(host) != len(a.bytes) {
		return fmt.Errorf("%w: upload %d into %d", ErrCopySize, len(host), len(a.bytes))
	}
	copy(a.bytes, host)
	return nil
}

func (d *HostDevice) Download(src *Buffer, host []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.awaitLocked()
	a, err := d.buffer(src)
	if err != nil {
		return err
	}
	if len(host) != len(a.bytes) {
		return fmt.Errorf("%w: download %d into %d", ErrCopySize, len(a.bytes), len(host))
	}
	copy(host, a.bytes)
	return nil
}

func (d *HostDevice) Transform(in, out *Buffer, width, height, stride int, cube *CubeHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.awaitLocked()
	ain, err := d.buffer(in)
	if err != nil {
		return err
	}
	aout, err := d.buffer(out)
	if err != nil {
		return err
	}
	if cube == nil {
		return ErrInvalidHandle
	}
	acube, ok := d.mem[cube.h]
	if !ok || acube.kind != kindCube {
		return fmt.Errorf("%w: cube %d", ErrInvalidHandle, cube.h)
	}
	if ain == aout {
		return fmt.Errorf("%w: input and output alias", ErrLaunch)
	}
	if d.pending != nil {
		// previous launch finished executing but was never synchronised
		if err := d.retireLocked(); d.lastErr == nil {
			d.lastErr = err
		}
	}

	p := &dispatch{
		in:     ain.bytes,
		out:    aout.bytes,
		stride: stride,
		lut:    lattice{n: acube.n, data: acube.floats},
		refs:   []*allocation{ain, aout, acube},
		start:  time.Now(),
		done:   make(chan struct{}),
	}
	for _, a := range p.refs {
		a.refs++
	}
	d.pending = p
	d.launches++

	need := stride*(height-1) + width*3
	if width <= 0 || height <= 0 || stride < width*3 || need > len(p.in) || need > len(p.out) {
		// faults are reported by Synchronize, like an asynchronous launch
		p.fail(fmt.Errorf("%w: %dx%d stride %d exceeds %d byte buffers", ErrLaunch, width, height, stride, len(p.in)))
		close(p.done)
		return nil
	}

	ts := tiles(p, width, height, d.opts.TileSize)
	p.tiles = len(ts)
	d.ntiles += uint64(len(ts))
	p.wg.Add(len(ts))
	go func() {
		for _, t := range ts {
			d.work <- t
		}
		p.wg.Wait()
		close(p.done)
	}()
	return nil
}

// retireLocked drops the references of the finished pending dispatch.
func (d *HostDevice) retireLocked() error {
	p := d.pending
	d.pending = nil
	for _, a := range p.refs {
		a.refs--
	}
	slog.Debug("kernel complete",
		slog.Int("tiles", p.tiles),
		slog.Duration("elapsed", time.Since(p.start)))
	return p.err
}

func (d *HostDevice) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.awaitLocked()
	err := d.lastErr
	d.lastErr = nil
	if d.pending != nil {
		if perr := d.retireLocked(); err == nil {
			err = perr
		}
	}
	return err
}

func (d *HostDevice) release(h Handle) {
	if a, ok := d.mem[h]; ok {
		d.used -= a.size
		delete(d.mem, h)
	}
}

func (d *HostDevice) Free(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.mem[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	if a.refs > 0 {
		return fmt.Errorf("%w: %s %d", ErrBusy, a.kind, h)
	}
	d.release(h)
	return nil
}

func (d *HostDevice) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Live:       len(d.mem),
		InUse:      d.used,
		Peak:       d.peak,
		Dispatches: d.launches,
		Tiles:      d.ntiles,
	}
}

// Close waits for outstanding work, stops the lanes, and releases anything
// still allocated. Leaked allocations are reported as ErrLeak.
func (d *HostDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.awaitLocked()
	if d.pending != nil {
		_ = d.retireLocked()
	}
	d.closed = true
	leaked := len(d.mem)
	for h := range d.mem {
		d.release(h)
	}
	d.mu.Unlock()

	close(d.work)
	d.workers.Wait()
	if leaked > 0 {
		return fmt.Errorf("%w: %d", ErrLeak, leaked)
	}
	return nil
}
