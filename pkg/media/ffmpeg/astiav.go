//go:build ffmpeg

package ffmpeg

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/jpfielding/lutgrade.go/pkg/frame"
	"github.com/jpfielding/lutgrade.go/pkg/media"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
)

// Available reports whether the FFmpeg service was compiled in.
const Available = true

var logOnce sync.Once

// New returns the FFmpeg codec service and routes FFmpeg's log output into
// slog at debug level.
func New() (media.Service, error) {
	logOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelWarning)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, _, msg string) {
			slog.Debug("ffmpeg", slog.Int("level", int(l)), slog.String("msg", strings.TrimSpace(msg)))
		})
	})
	return &Service{}, nil
}

// Service opens containers and codecs through libavformat and libavcodec.
type Service struct {
	mu sync.Mutex
	// globalHeader is set when the last output container wants codec
	// extradata out of band.
	globalHeader bool
}

var _ media.Service = (*Service)(nil)

func (s *Service) Name() string { return Name }

func toAV(r timebase.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func fromAV(r astiav.Rational) timebase.Rational {
	return timebase.New(r.Num(), r.Den())
}

// rangeOf maps FFmpeg's colour range. Unspecified streams are taken to be
// video range.
func rangeOf(r astiav.ColorRange) frame.ColorRange {
	if r == astiav.ColorRangeJpeg {
		return frame.RangeFull
	}
	return frame.RangeLimited
}

func toAVRange(r frame.ColorRange) astiav.ColorRange {
	if r == frame.RangeFull {
		return astiav.ColorRangeJpeg
	}
	return astiav.ColorRangeMpeg
}

// mapErr turns FFmpeg's EAGAIN and EOF into the media sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return media.ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return media.ErrEOF
	case errors.Is(err, astiav.ErrInvaldata):
		return fmt.Errorf("%w: %w", media.ErrInvalidData, err)
	}
	return err
}

func kindOf(t astiav.MediaType) media.Kind {
	switch t {
	case astiav.MediaTypeVideo:
		return media.KindVideo
	case astiav.MediaTypeAudio:
		return media.KindAudio
	case astiav.MediaTypeData, astiav.MediaTypeSubtitle:
		return media.KindData
	}
	return media.KindUnknown
}

type demuxer struct {
	fc      *astiav.FormatContext
	pkt     *astiav.Packet
	streams []media.StreamInfo
}

func (s *Service) OpenInput(path string) (media.Demuxer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("ffmpeg: failed to allocate input context")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("failed to find stream info %s: %w", path, err)
	}
	d := &demuxer{fc: fc, pkt: astiav.AllocPacket()}
	for _, st := range fc.Streams() {
		cp := st.CodecParameters()
		d.streams = append(d.streams, media.StreamInfo{
			Index:     st.Index(),
			Kind:      kindOf(cp.MediaType()),
			Codec:     cp.CodecID().String(),
			TimeBase:  fromAV(st.TimeBase()),
			FrameRate: fromAV(st.AvgFrameRate()),
			Width:     cp.Width(),
			Height:    cp.Height(),
			Range:     rangeOf(cp.ColorRange()),
			Private:   cp,
		})
	}
	return d, nil
}

func (d *demuxer) Streams() []media.StreamInfo {
	return append([]media.StreamInfo(nil), d.streams...)
}

func (d *demuxer) BestVideo() (int, error) {
	for _, s := range d.streams {
		if s.Kind == media.KindVideo {
			return s.Index, nil
		}
	}
	return -1, fmt.Errorf("%w: no video stream", media.ErrUnsupported)
}

func (d *demuxer) ReadPacket() (*media.Packet, error) {
	if err := d.fc.ReadFrame(d.pkt); err != nil {
		return nil, mapErr(err)
	}
	defer d.pkt.Unref()
	return &media.Packet{
		StreamIndex: d.pkt.StreamIndex(),
		PTS:         d.pkt.Pts(),
		DTS:         d.pkt.Dts(),
		Duration:    d.pkt.Duration(),
		Key:         d.pkt.Flags().Has(astiav.PacketFlagKey),
		Data:        append([]byte(nil), d.pkt.Data()...),
	}, nil
}

func (d *demuxer) Close() error {
	if d.fc == nil {
		return nil
	}
	d.pkt.Free()
	d.fc.CloseInput()
	d.fc.Free()
	d.fc = nil
	return nil
}

type decoder struct {
	cc  *astiav.CodecContext
	tb  timebase.Rational
	pkt *astiav.Packet
	frm *astiav.Frame
	// conversion for decoders that do not output yuv420p
	ssc *astiav.SoftwareScaleContext
	yuv *astiav.Frame
}

func (s *Service) NewDecoder(stream media.StreamInfo) (media.Decoder, error) {
	cp, ok := stream.Private.(*astiav.CodecParameters)
	if !ok {
		return nil, fmt.Errorf("%w: stream %d has no codec parameters", media.ErrUnsupported, stream.Index)
	}
	codec := astiav.FindDecoder(cp.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("%w: no decoder for %s", media.ErrUnsupported, stream.Codec)
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("ffmpeg: failed to allocate decoder context")
	}
	if err := cp.ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("failed to copy codec parameters: %w", err)
	}
	cc.SetTimeBase(toAV(stream.TimeBase))
	if stream.FrameRate.Valid() {
		cc.SetFramerate(toAV(stream.FrameRate))
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("failed to open decoder %s: %w", codec.Name(), err)
	}
	return &decoder{
		cc:  cc,
		tb:  stream.TimeBase,
		pkt: astiav.AllocPacket(),
		frm: astiav.AllocFrame(),
	}, nil
}

func (d *decoder) TimeBase() timebase.Rational { return d.tb }

func (d *decoder) Send(p *media.Packet) error {
	if p == nil {
		return mapErr(d.cc.SendPacket(nil))
	}
	if err := d.pkt.FromData(p.Data); err != nil {
		return fmt.Errorf("failed to wrap packet: %w", err)
	}
	defer d.pkt.Unref()
	d.pkt.SetPts(p.PTS)
	d.pkt.SetDts(p.DTS)
	d.pkt.SetDuration(p.Duration)
	return mapErr(d.cc.SendPacket(d.pkt))
}

func (d *decoder) Receive() (*media.Frame, error) {
	if err := d.cc.ReceiveFrame(d.frm); err != nil {
		return nil, mapErr(err)
	}
	defer d.frm.Unref()

	src := d.frm
	rng := rangeOf(d.frm.ColorRange())
	if src.PixelFormat() != astiav.PixelFormatYuv420P {
		if err := d.toYUV(src); err != nil {
			return nil, err
		}
		src = d.yuv
		// swscale rescales yuvj pictures to video range on the way to yuv420p
		if d.frm.PixelFormat() == astiav.PixelFormatYuvj420P {
			rng = frame.RangeLimited
		}
	}
	img := frame.NewYCbCr420(src.Width(), src.Height())
	if err := src.Data().ToImage(img); err != nil {
		return nil, fmt.Errorf("failed to copy picture: %w", err)
	}
	return &media.Frame{
		Image: img,
		Range: rng,
		PTS:   d.frm.Pts(),
		Key:   d.frm.KeyFrame(),
	}, nil
}

func (d *decoder) toYUV(src *astiav.Frame) error {
	if d.ssc == nil {
		ssc, err := astiav.CreateSoftwareScaleContext(
			src.Width(), src.Height(), src.PixelFormat(),
			src.Width(), src.Height(), astiav.PixelFormatYuv420P,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
		if err != nil {
			return fmt.Errorf("failed to create scaler: %w", err)
		}
		d.ssc = ssc
		d.yuv = astiav.AllocFrame()
	}
	d.yuv.Unref()
	if err := d.ssc.ScaleFrame(src, d.yuv); err != nil {
		return fmt.Errorf("failed to convert %s: %w", src.PixelFormat(), err)
	}
	return nil
}

func (d *decoder) Close() error {
	if d.cc == nil {
		return nil
	}
	if d.ssc != nil {
		d.ssc.Free()
		d.yuv.Free()
	}
	d.frm.Free()
	d.pkt.Free()
	d.cc.Free()
	d.cc = nil
	return nil
}

type encoder struct {
	cc     *astiav.CodecContext
	codec  *astiav.Codec
	stream media.StreamInfo
	pkt    *astiav.Packet
	frm    *astiav.Frame
}

// findEncoder prefers the well known library encoders for a codec name.
func findEncoder(name string) *astiav.Codec {
	switch name {
	case "h264":
		if c := astiav.FindEncoderByName("libx264"); c != nil {
			return c
		}
		return astiav.FindEncoder(astiav.CodecIDH264)
	case "hevc", "h265":
		if c := astiav.FindEncoderByName("libx265"); c != nil {
			return c
		}
		return astiav.FindEncoder(astiav.CodecIDHevc)
	}
	return astiav.FindEncoderByName(name)
}

func (s *Service) NewEncoder(stream media.StreamInfo, cfg media.EncoderConfig) (media.Encoder, error) {
	codec := findEncoder(cfg.Codec)
	if codec == nil {
		return nil, fmt.Errorf("%w: no encoder for %s", media.ErrUnsupported, cfg.Codec)
	}
	fps := stream.FrameRate
	if !fps.Valid() {
		fps = stream.TimeBase.Invert()
	}
	if !fps.Valid() {
		return nil, fmt.Errorf("%w: no frame rate", media.ErrInvalidData)
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("ffmpeg: failed to allocate encoder context")
	}
	cc.SetWidth(stream.Width)
	cc.SetHeight(stream.Height)
	cc.SetPixelFormat(astiav.PixelFormatYuv420P)
	cc.SetTimeBase(toAV(fps.Invert()))
	cc.SetFramerate(toAV(fps))
	cc.SetBitRate(cfg.BitRate)
	cc.SetGopSize(cfg.GOPSize)
	cc.SetMaxBFrames(cfg.MaxBFrames)
	s.mu.Lock()
	if s.globalHeader {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}
	s.mu.Unlock()

	opts := astiav.NewDictionary()
	defer opts.Free()
	for k, v := range map[string]string{
		"preset":  cfg.Preset,
		"tune":    cfg.Tune,
		"profile": cfg.Profile,
		"level":   cfg.Level,
	} {
		if v != "" {
			if err := opts.Set(k, v, astiav.NewDictionaryFlags()); err != nil {
				slog.Warn("ffmpeg: encoder option rejected", slog.String("key", k), slog.Any("error", err))
			}
		}
	}
	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, fmt.Errorf("failed to open encoder %s: %w", codec.Name(), err)
	}

	frm := astiav.AllocFrame()
	frm.SetWidth(stream.Width)
	frm.SetHeight(stream.Height)
	frm.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := frm.AllocBuffer(0); err != nil {
		frm.Free()
		cc.Free()
		return nil, fmt.Errorf("failed to allocate encoder frame: %w", err)
	}
	return &encoder{
		cc:    cc,
		codec: codec,
		stream: media.StreamInfo{
			Kind:      media.KindVideo,
			Codec:     codec.Name(),
			TimeBase:  fps.Invert(),
			FrameRate: fps,
			Width:     stream.Width,
			Height:    stream.Height,
			Range:     stream.Range,
			Private:   cc,
		},
		pkt: astiav.AllocPacket(),
		frm: frm,
	}, nil
}

func (e *encoder) Stream() media.StreamInfo { return e.stream }

func (e *encoder) TimeBase() timebase.Rational { return fromAV(e.cc.TimeBase()) }

func (e *encoder) Send(f *media.Frame) error {
	if f == nil {
		return mapErr(e.cc.SendFrame(nil))
	}
	if f.Image == nil || f.Image.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return fmt.Errorf("%w: encoder takes 4:2:0 pictures", media.ErrInvalidData)
	}
	if err := e.frm.MakeWritable(); err != nil {
		return fmt.Errorf("failed to make frame writable: %w", err)
	}
	if err := e.frm.Data().FromImage(f.Image); err != nil {
		return fmt.Errorf("%w: %w", media.ErrInvalidData, err)
	}
	e.frm.SetColorRange(toAVRange(f.Range))
	e.frm.SetPts(f.PTS)
	return mapErr(e.cc.SendFrame(e.frm))
}

func (e *encoder) Receive() (*media.Packet, error) {
	if err := e.cc.ReceivePacket(e.pkt); err != nil {
		return nil, mapErr(err)
	}
	defer e.pkt.Unref()
	return &media.Packet{
		PTS:      e.pkt.Pts(),
		DTS:      e.pkt.Dts(),
		Duration: e.pkt.Duration(),
		Key:      e.pkt.Flags().Has(astiav.PacketFlagKey),
		Data:     append([]byte(nil), e.pkt.Data()...),
	}, nil
}

func (e *encoder) Close() error {
	if e.cc == nil {
		return nil
	}
	e.frm.Free()
	e.pkt.Free()
	e.cc.Free()
	e.cc = nil
	return nil
}

type muxer struct {
	fc  *astiav.FormatContext
	pb  *astiav.IOContext
	pkt *astiav.Packet
}

func (s *Service) CreateOutput(path string) (media.Muxer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, "", path)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate output %s: %w", path, err)
	}
	if fc == nil {
		return nil, errors.New("ffmpeg: failed to allocate output context")
	}
	m := &muxer{fc: fc, pkt: astiav.AllocPacket()}
	if !fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		pb, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			m.pkt.Free()
			fc.Free()
			return nil, fmt.Errorf("failed to create output: %w", err)
		}
		fc.SetPb(pb)
		m.pb = pb
	}
	s.mu.Lock()
	s.globalHeader = fc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader)
	s.mu.Unlock()
	return m, nil
}

func (m *muxer) AddStream(info media.StreamInfo) (int, error) {
	st := m.fc.NewStream(nil)
	if st == nil {
		return 0, errors.New("ffmpeg: failed to add stream")
	}
	switch p := info.Private.(type) {
	case *astiav.CodecContext:
		if err := st.CodecParameters().FromCodecContext(p); err != nil {
			return 0, fmt.Errorf("failed to set stream parameters: %w", err)
		}
		if info.Kind == media.KindVideo {
			st.CodecParameters().SetColorRange(toAVRange(info.Range))
		}
	case *astiav.CodecParameters:
		if err := p.Copy(st.CodecParameters()); err != nil {
			return 0, fmt.Errorf("failed to copy stream parameters: %w", err)
		}
	default:
		return 0, fmt.Errorf("%w: stream without codec parameters", media.ErrUnsupported)
	}
	st.SetTimeBase(toAV(info.TimeBase))
	return st.Index(), nil
}

func (m *muxer) StreamTimeBase(index int) timebase.Rational {
	streams := m.fc.Streams()
	if index < 0 || index >= len(streams) {
		return timebase.Rational{}
	}
	return fromAV(streams[index].TimeBase())
}

func (m *muxer) WriteHeader() error {
	if err := m.fc.WriteHeader(nil); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func (m *muxer) WritePacket(p *media.Packet) error {
	if err := m.pkt.FromData(p.Data); err != nil {
		return fmt.Errorf("failed to wrap packet: %w", err)
	}
	defer m.pkt.Unref()
	m.pkt.SetStreamIndex(p.StreamIndex)
	m.pkt.SetPts(p.PTS)
	m.pkt.SetDts(p.DTS)
	m.pkt.SetDuration(p.Duration)
	if p.Key {
		m.pkt.SetFlags(m.pkt.Flags().Add(astiav.PacketFlagKey))
	}
	return m.fc.WriteInterleavedFrame(m.pkt)
}

func (m *muxer) WriteTrailer() error {
	if err := m.fc.WriteTrailer(); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	return nil
}

func (m *muxer) Close() error {
	if m.fc == nil {
		return nil
	}
	var err error
	if m.pb != nil {
		err = m.pb.Close()
	}
	m.pkt.Free()
	m.fc.Free()
	m.fc = nil
	return err
}
