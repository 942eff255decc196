package lgv

import (
	"fmt"
	"log/slog"

	"github.com/jpfielding/lutgrade.go/pkg/media"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
)

// DecoderDelay is how many frames the decoder holds before releasing one.
const DecoderDelay = 1

// Decoder decodes one LGV video stream.
type Decoder struct {
	stream   media.StreamInfo
	codec    pictureCodec
	queue    []*media.Frame
	flushing bool
}

var _ media.Decoder = (*Decoder)(nil)

// NewDecoder opens a decoder for a video stream.
func NewDecoder(stream media.StreamInfo) (*Decoder, error) {
	if stream.Kind != media.KindVideo {
		return nil, fmt.Errorf("%w: %s stream", media.ErrUnsupported, stream.Kind)
	}
	c, ok := codecsByName[stream.Codec]
	if !ok {
		return nil, fmt.Errorf("%w: codec %q", media.ErrUnsupported, stream.Codec)
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", media.ErrInvalidData, stream.Width, stream.Height)
	}
	return &Decoder{stream: stream, codec: c}, nil
}

func (d *Decoder) TimeBase() timebase.Rational {
	return d.stream.TimeBase
}

// Send decodes pkt. A corrupt payload is reported here and produces no frame.
func (d *Decoder) Send(pkt *media.Packet) error {
	if d.flushing {
		return media.ErrEOF
	}
	if pkt == nil {
		d.flushing = true
		return nil
	}
	img, err := d.codec.Decode(pkt.Data, d.stream.Width, d.stream.Height)
	if err != nil {
		return fmt.Errorf("decode pts %d: %w", pkt.PTS, err)
	}
	d.queue = append(d.queue, &media.Frame{Image: img, PTS: pkt.PTS, Key: pkt.Key})
	return nil
}

func (d *Decoder) Receive() (*media.Frame, error) {
	if len(d.queue) > DecoderDelay || (d.flushing && len(d.queue) > 0) {
		f := d.queue[0]
		d.queue = d.queue[1:]
		return f, nil
	}
	if d.flushing {
		return nil, media.ErrEOF
	}
	return nil, media.ErrAgain
}

func (d *Decoder) Close() error {
	d.queue = nil
	return nil
}

// Encoder encodes pictures into LGV packets. It holds MaxBFrames pictures
// before emitting, like a reordering encoder.
type Encoder struct {
	stream   media.StreamInfo
	codec    pictureCodec
	cfg      media.EncoderConfig
	delay    int
	duration int64
	queue    []*media.Packet
	frames   int64
	emitted  int64
	flushing bool
}

var _ media.Encoder = (*Encoder)(nil)

// NewEncoder opens an encoder producing stream's geometry. The encoder
// timebase is the inverse frame rate.
func NewEncoder(stream media.StreamInfo, cfg media.EncoderConfig) (*Encoder, error) {
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", media.ErrInvalidData, stream.Width, stream.Height)
	}
	c, ok := codecsByName[cfg.Codec]
	if !ok {
		slog.Debug("lgv: codec not available, using default",
			slog.String("requested", cfg.Codec),
			slog.String("codec", DefaultCodec))
		c = codecsByName[DefaultCodec]
	}
	tb := stream.TimeBase
	if stream.FrameRate.Valid() {
		tb = stream.FrameRate.Invert()
	}
	if !tb.Valid() {
		return nil, fmt.Errorf("%w: no frame rate or timebase", media.ErrInvalidData)
	}
	dur := int64(1)
	if stream.FrameRate.Valid() {
		dur = max(timebase.Duration(stream.FrameRate.Invert(), tb), 1)
	}
	return &Encoder{
		stream: media.StreamInfo{
			Kind:      media.KindVideo,
			Codec:     c.Name(),
			TimeBase:  tb,
			FrameRate: stream.FrameRate,
			Width:     stream.Width,
			Height:    stream.Height,
		},
		codec:    c,
		cfg:      cfg,
		delay:    max(cfg.MaxBFrames, 0),
		duration: dur,
	}, nil
}

func (e *Encoder) Stream() media.StreamInfo {
	return e.stream
}

func (e *Encoder) TimeBase() timebase.Rational {
	return e.stream.TimeBase
}

// Send encodes f. Its PTS must be in the encoder timebase.
func (e *Encoder) Send(f *media.Frame) error {
	if e.flushing {
		return media.ErrEOF
	}
	if f == nil {
		e.flushing = true
		return nil
	}
	if f.Image == nil {
		return fmt.Errorf("%w: frame without picture", media.ErrInvalidData)
	}
	if b := f.Image.Rect; b.Dx() != e.stream.Width || b.Dy() != e.stream.Height {
		return fmt.Errorf("%w: %dx%d frame for %dx%d encoder", media.ErrInvalidData, b.Dx(), b.Dy(), e.stream.Width, e.stream.Height)
	}
	data, err := e.codec.Encode(f.Image)
	if err != nil {
		return err
	}
	key := e.cfg.GOPSize <= 1 || e.frames%int64(e.cfg.GOPSize) == 0
	e.frames++
	e.queue = append(e.queue, &media.Packet{
		PTS:      f.PTS,
		DTS:      timebase.NoPTS,
		Duration: e.duration,
		Key:      key,
		Data:     data,
	})
	return nil
}

func (e *Encoder) Receive() (*media.Packet, error) {
	if len(e.queue) > e.delay || (e.flushing && len(e.queue) > 0) {
		p := e.queue[0]
		e.queue = e.queue[1:]
		// decode order trails presentation by the reorder delay
		p.DTS = (e.emitted - int64(e.delay)) * e.duration
		e.emitted++
		return p, nil
	}
	if e.flushing {
		return nil, media.ErrEOF
	}
	return nil, media.ErrAgain
}

func (e *Encoder) Close() error {
	e.queue = nil
	return nil
}
