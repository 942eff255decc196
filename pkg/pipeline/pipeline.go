// Package pipeline drives decode, colour transform, and encode for one
// video: packets are read and decoded, every frame is converted to packed
// RGB, graded on the accelerator through a 3D LUT, converted back, encoded,
// and muxed. Decoder and encoder are flushed at end of input.
//
// Errors confined to one packet or frame are logged and counted in Stats;
// the run continues with the next unit. Configuration, LUT, and device
// errors end the run. Every acquired resource is released on every exit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jpfielding/lutgrade.go/pkg/accel"
	"github.com/jpfielding/lutgrade.go/pkg/frame"
	"github.com/jpfielding/lutgrade.go/pkg/logging"
	"github.com/jpfielding/lutgrade.go/pkg/lut"
	"github.com/jpfielding/lutgrade.go/pkg/media"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
	"github.com/jpfielding/lutgrade.go/pkg/util"
)

var (
	ErrConfig = errors.New("pipeline: configuration error")
	ErrDevice = errors.New("pipeline: device error")
)

// Config names the inputs of one run.
type Config struct {
	LUTPath    string
	InputPath  string
	OutputPath string
	Encoder    media.EncoderConfig
}

// Validate checks that every path is set.
func (c Config) Validate() error {
	var errs []error
	if c.LUTPath == "" {
		errs = append(errs, fmt.Errorf("%w: lut path is required", ErrConfig))
	}
	if c.InputPath == "" {
		errs = append(errs, fmt.Errorf("%w: input path is required", ErrConfig))
	}
	if c.OutputPath == "" {
		errs = append(errs, fmt.Errorf("%w: output path is required", ErrConfig))
	}
	if c.InputPath != "" && c.InputPath == c.OutputPath {
		errs = append(errs, fmt.Errorf("%w: input and output are the same file", ErrConfig))
	}
	return errors.Join(errs...)
}

// DeviceOpener starts the accelerator for a run.
type DeviceOpener func() (accel.Device, error)

// HostDevice opens an accel.HostDevice with opts.
func HostDevice(opts accel.Options) DeviceOpener {
	return func() (accel.Device, error) {
		return accel.NewHostDevice(opts), nil
	}
}

// Stats summarises a run.
type Stats struct {
	RunID   string
	LUT     string // fingerprint
	Packets int    // read from the input
	// Discarded counts packets of streams other than the graded video.
	Discarded      int
	Frames         int // decoded
	Graded         int
	Written        int // packets muxed
	SynthesizedPTS int
	DecodeErrors   int
	EncodeErrors   int
	WriteErrors    int
	SkippedFrames  int
	DecoderDrained bool
	EncoderDrained bool
	InputTimeBase  timebase.Rational
	EncodeTimeBase timebase.Rational
	OutputTimeBase timebase.Rational
	Device         accel.Stats
	Elapsed        time.Duration
}

// LogValue groups the counters for slog.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("packets", s.Packets),
		slog.Int("discarded", s.Discarded),
		slog.Int("frames", s.Frames),
		slog.Int("graded", s.Graded),
		slog.Int("written", s.Written),
		slog.Int("synthesized_pts", s.SynthesizedPTS),
		slog.Int("decode_errors", s.DecodeErrors),
		slog.Int("encode_errors", s.EncodeErrors),
		slog.Int("write_errors", s.WriteErrors),
		slog.Int("skipped_frames", s.SkippedFrames),
		slog.Int64("device_peak", s.Device.Peak),
		slog.Uint64("dispatches", s.Device.Dispatches),
		slog.Duration("elapsed", s.Elapsed),
	)
}

// Pipeline is one decode, grade, encode run. It is not reusable.
type Pipeline struct {
	cfg   Config
	svc   media.Service
	open  DeviceOpener
	state atomic.Int32
	ran   atomic.Bool

	demux media.Demuxer
	dec   media.Decoder
	mux   media.Muxer
	dev   accel.Device
	cube  *accel.CubeHandle
	in    *accel.Buffer
	out   *accel.Buffer
	enc   media.Encoder

	video    media.StreamInfo
	outIndex int
	decTB    timebase.Rational
	encTB    timebase.Rational
	outTB    timebase.Rational
	frameDur int64 // one frame in encoder timebase
	lastPTS  int64
	rgb      *frame.RGB
	pic      *image.YCbCr
	conv     frame.Converter
	stats    Stats
}

// New prepares a run. Nothing is opened until Run.
func New(cfg Config, svc media.Service, open DeviceOpener) *Pipeline {
	p := &Pipeline{cfg: cfg, svc: svc, open: open, lastPTS: timebase.NoPTS}
	p.state.Store(int32(Draining))
	return p
}

// State reports the current step.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
}

// Run executes the pipeline to completion. The context carries log
// attributes; the run is not cancelled mid-stream.
func (p *Pipeline) Run(ctx context.Context) (stats Stats, err error) {
	if !p.ran.CompareAndSwap(false, true) {
		return p.stats, fmt.Errorf("%w: pipeline already ran", ErrConfig)
	}
	start := time.Now()
	p.stats.RunID = util.NewRunID()
	ctx = logging.AppendCtx(ctx, slog.String("run", p.stats.RunID))

	var g guard
	defer func() {
		if p.dev != nil {
			p.stats.Device = p.dev.Stats()
		}
		err = errors.Join(err, g.unwind(ctx))
		p.setState(Done)
		p.stats.Elapsed = time.Since(start)
		stats = p.stats
		if err != nil {
			slog.DebugContext(ctx, "pipeline stopped", slog.Any("stats", p.stats), slog.String("state", p.State().String()))
			return
		}
		slog.InfoContext(ctx, "pipeline complete", slog.Any("stats", p.stats))
	}()

	if err := p.acquire(ctx, &g); err != nil {
		return p.stats, err
	}
	if err := p.process(ctx); err != nil {
		return p.stats, err
	}
	return p.stats, nil
}

// acquire opens every resource, pushing its release onto g:
// LUT, demuxer, decoder, muxer, device, cube, frame pair, encoder, header.
func (p *Pipeline) acquire(ctx context.Context, g *guard) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if p.svc == nil || p.open == nil {
		return fmt.Errorf("%w: codec service and device are required", ErrConfig)
	}

	cube, err := lut.Load(p.cfg.LUTPath)
	if err != nil {
		return fmt.Errorf("failed to load LUT: %w", err)
	}
	p.stats.LUT = cube.Fingerprint()

	demux, err := p.svc.OpenInput(p.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	p.demux = demux
	g.push("demuxer", demux.Close)

	vi, err := demux.BestVideo()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	for _, s := range demux.Streams() {
		if s.Index == vi {
			p.video = s
		}
	}
	if err := frame.CheckGeometry(p.video.Width, p.video.Height); err != nil {
		return fmt.Errorf("%w: video stream %d: %w", ErrConfig, vi, err)
	}
	dec, err := p.svc.NewDecoder(p.video)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	p.dec = dec
	g.push("decoder", dec.Close)
	p.decTB = dec.TimeBase()

	mux, err := p.svc.CreateOutput(p.cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	p.mux = mux
	g.push("muxer", mux.Close)

	dev, err := p.open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}
	p.dev = dev
	g.push("device", dev.Close)

	dcube, err := dev.UploadCube(cube)
	if err != nil {
		return fmt.Errorf("%w: upload LUT: %w", ErrDevice, err)
	}
	p.cube = dcube
	g.push("lut cube", func() error { return dev.Free(dcube.Handle()) })

	// device buffers first, host rasters only once the budget allows them
	in, out, err := dev.AllocateFramePair(p.video.Width * 3 * p.video.Height)
	if err != nil {
		return fmt.Errorf("%w: frame buffers: %w", ErrDevice, err)
	}
	p.in, p.out = in, out
	g.push("frame input", func() error { return dev.Free(in.Handle()) })
	g.push("frame output", func() error { return dev.Free(out.Handle()) })
	// no dispatch may be outstanding when the buffers are freed
	g.push("device sync", dev.Synchronize)
	p.rgb = frame.NewRGB(p.video.Width, p.video.Height)
	p.pic = frame.NewYCbCr420(p.video.Width, p.video.Height)

	enc, err := p.svc.NewEncoder(p.video, p.cfg.Encoder)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	p.enc = enc
	g.push("encoder", enc.Close)
	p.encTB = enc.TimeBase()
	p.frameDur = 1
	if fr := enc.Stream().FrameRate; fr.Valid() {
		p.frameDur = max(timebase.Duration(fr.Invert(), p.encTB), 1)
	}

	idx, err := mux.AddStream(enc.Stream())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	p.outIndex = idx
	if err := mux.WriteHeader(); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	p.outTB = mux.StreamTimeBase(idx)

	p.stats.InputTimeBase = p.decTB
	p.stats.EncodeTimeBase = p.encTB
	p.stats.OutputTimeBase = p.outTB
	slog.InfoContext(ctx, "pipeline started",
		slog.String("service", p.svc.Name()),
		slog.String("device", dev.Name()),
		slog.String("input", p.video.String()),
		slog.String("output", enc.Stream().String()),
		slog.Int("lut_size", cube.Size),
		slog.String("lut", p.stats.LUT))
	return nil
}

func isDrained(err error) bool {
	return errors.Is(err, media.ErrAgain) || errors.Is(err, media.ErrEOF)
}

func (p *Pipeline) process(ctx context.Context) error {
	for {
		p.setState(Draining)
		pkt, err := p.demux.ReadPacket()
		if errors.Is(err, media.ErrEOF) {
			break
		}
		if err != nil {
			slog.WarnContext(ctx, "read failed, ending input", slog.Int("packets", p.stats.Packets), slog.Any("error", err))
			break
		}
		p.stats.Packets++
		if pkt.StreamIndex != p.video.Index {
			p.stats.Discarded++
			continue
		}
		if err := p.dec.Send(pkt); err != nil && !isDrained(err) {
			p.stats.DecodeErrors++
			slog.WarnContext(ctx, "decode failed, skipping packet", slog.Int64("pts", pkt.PTS), slog.Any("error", err))
			continue
		}
		if err := p.drainDecoder(ctx, false); err != nil {
			return err
		}
	}

	p.setState(FlushingDecoder)
	if err := p.dec.Send(nil); err != nil && !isDrained(err) {
		slog.WarnContext(ctx, "decoder flush failed", slog.Any("error", err))
	}
	if err := p.drainDecoder(ctx, true); err != nil {
		return err
	}
	p.stats.DecoderDrained = true

	p.setState(FlushingEncoder)
	if err := p.enc.Send(nil); err != nil && !isDrained(err) {
		slog.WarnContext(ctx, "encoder flush failed", slog.Any("error", err))
	}
	p.drainEncoder(ctx)
	p.stats.EncoderDrained = true

	if err := p.mux.WriteTrailer(); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	return nil
}

// maxFlushErrors bounds the decode failures tolerated while flushing.
const maxFlushErrors = 16

// drainDecoder grades and encodes every frame the decoder has ready. Only
// device faults are returned. While flushing, a failed frame does not end
// the drain: frames still buffered behind it are received until EOF.
func (p *Pipeline) drainDecoder(ctx context.Context, flushing bool) error {
	failures := 0
	for {
		p.setState(DecodingFrame)
		f, err := p.dec.Receive()
		if isDrained(err) {
			return nil
		}
		if err != nil {
			p.stats.DecodeErrors++
			slog.WarnContext(ctx, "decode failed, dropping frame", slog.Bool("flushing", flushing), slog.Any("error", err))
			if failures++; !flushing || failures >= maxFlushErrors {
				return nil
			}
			continue
		}
		p.stats.Frames++
		if err := p.grade(ctx, f); err != nil {
			return err
		}
	}
}

func (p *Pipeline) grade(ctx context.Context, f *media.Frame) error {
	p.setState(Transforming)
	p.conv.Range = f.Range
	if err := p.conv.ToRGB(f.Image, p.rgb); err != nil {
		p.stats.SkippedFrames++
		slog.WarnContext(ctx, "frame skipped", slog.Int64("pts", f.PTS), slog.Any("error", err))
		return nil
	}
	if err := p.transform(); err != nil {
		return err
	}
	if err := p.conv.FromRGB(p.rgb, p.pic); err != nil {
		p.stats.SkippedFrames++
		slog.WarnContext(ctx, "frame skipped", slog.Int64("pts", f.PTS), slog.Any("error", err))
		return nil
	}
	p.stats.Graded++

	p.setState(Encoding)
	pts := p.framePTS(f.PTS)
	if err := p.enc.Send(&media.Frame{Image: p.pic, Range: f.Range, PTS: pts, Key: f.Key}); err != nil && !isDrained(err) {
		p.stats.EncodeErrors++
		slog.WarnContext(ctx, "encode failed, dropping frame", slog.Int64("pts", pts), slog.Any("error", err))
		return nil
	}
	p.drainEncoder(ctx)
	return nil
}

// transform round-trips p.rgb through the device.
func (p *Pipeline) transform() error {
	if err := p.dev.Upload(p.rgb.Pix, p.in); err != nil {
		return fmt.Errorf("%w: upload: %w", ErrDevice, err)
	}
	if err := p.dev.Transform(p.in, p.out, p.rgb.Width, p.rgb.Height, p.rgb.Stride, p.cube); err != nil {
		return fmt.Errorf("%w: launch: %w", ErrDevice, err)
	}
	if err := p.dev.Synchronize(); err != nil {
		return fmt.Errorf("%w: synchronize: %w", ErrDevice, err)
	}
	if err := p.dev.Download(p.out, p.rgb.Pix); err != nil {
		return fmt.Errorf("%w: download: %w", ErrDevice, err)
	}
	return nil
}

// framePTS rescales a decoder timestamp into the encoder timebase. Unknown
// timestamps continue one frame after the previous one.
func (p *Pipeline) framePTS(pts int64) int64 {
	if pts == timebase.NoPTS {
		p.stats.SynthesizedPTS++
		if p.lastPTS == timebase.NoPTS {
			pts = 0
		} else {
			pts = p.lastPTS + p.frameDur
		}
	} else {
		pts = timebase.Rescale(pts, p.decTB, p.encTB)
	}
	p.lastPTS = pts
	return pts
}

// drainEncoder muxes every packet the encoder has ready.
func (p *Pipeline) drainEncoder(ctx context.Context) {
	for {
		pkt, err := p.enc.Receive()
		if isDrained(err) {
			return
		}
		if err != nil {
			p.stats.EncodeErrors++
			slog.WarnContext(ctx, "encode failed, dropping packet", slog.Any("error", err))
			return
		}
		pkt.StreamIndex = p.outIndex
		pkt.PTS = timebase.Rescale(pkt.PTS, p.encTB, p.outTB)
		pkt.Duration = timebase.Rescale(pkt.Duration, p.encTB, p.outTB)
		// decode timestamps are left for the muxer to derive
		pkt.DTS = timebase.NoPTS
		if err := p.mux.WritePacket(pkt); err != nil {
			p.stats.WriteErrors++
			slog.WarnContext(ctx, "write failed", slog.Int64("pts", pkt.PTS), slog.Any("error", err))
			continue
		}
		p.stats.Written++
	}
}
