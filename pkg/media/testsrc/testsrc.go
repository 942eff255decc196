// Package testsrc writes synthetic test-pattern videos through any codec
// service.
package testsrc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpfielding/lutgrade.go/pkg/frame"
	"github.com/jpfielding/lutgrade.go/pkg/media"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
)

// Options shapes the generated video.
type Options struct {
	Width     int
	Height    int
	Frames    int
	FrameRate timebase.Rational
	Codec     string
	// Audio adds a silent audio stream interleaved with the video.
	Audio bool
}

// DefaultOptions is a short CIF clip at 25 fps.
var DefaultOptions = Options{
	Width:     352,
	Height:    288,
	Frames:    25,
	FrameRate: timebase.New(25, 1),
	Codec:     "rle420",
}

var ErrOptions = errors.New("testsrc: invalid options")

var bars = [8][3]uint8{
	{192, 192, 192},
	{192, 192, 0},
	{0, 192, 192},
	{0, 192, 0},
	{192, 0, 192},
	{192, 0, 0},
	{0, 0, 192},
	{16, 16, 16},
}

// Pattern renders frame i: colour bars over the top half, a grey ramp and a
// moving white square below. Every edge falls on an even pixel so chroma
// subsampling does not blur colours across edges.
func Pattern(i, width, height int) *frame.RGB {
	img := frame.NewRGB(width, height)
	split := (height / 2) &^ 1
	barW := max((width/len(bars))&^1, 2)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y < split {
				c := bars[min(x/barW, len(bars)-1)]
				img.SetPixel(x, y, c[0], c[1], c[2])
				continue
			}
			v := uint8((x &^ 1) * 255 / max(width-1, 1))
			img.SetPixel(x, y, v, v, v)
		}
	}
	sq := max((height/8)&^1, 2)
	x0 := ((i * 4) % max(width-sq, 1)) &^ 1
	y0 := split + ((height-split-sq)/2)&^1
	for y := y0; y < min(y0+sq, height); y++ {
		for x := x0; x < min(x0+sq, width); x++ {
			img.SetPixel(x, y, 255, 255, 255)
		}
	}
	return img
}

// Write encodes opts.Frames pattern frames to path.
func Write(svc media.Service, path string, opts Options) (err error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.Frames < 0 || !opts.FrameRate.Valid() {
		return fmt.Errorf("%w: %dx%d %d frames at %s", ErrOptions, opts.Width, opts.Height, opts.Frames, opts.FrameRate)
	}
	mux, err := svc.CreateOutput(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, mux.Close()) }()

	cfg := media.DefaultEncoderConfig
	cfg.Codec = opts.Codec
	cfg.MaxBFrames = 0
	enc, err := svc.NewEncoder(media.StreamInfo{
		Kind:      media.KindVideo,
		TimeBase:  opts.FrameRate.Invert(),
		FrameRate: opts.FrameRate,
		Width:     opts.Width,
		Height:    opts.Height,
	}, cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, enc.Close()) }()

	video, err := mux.AddStream(enc.Stream())
	if err != nil {
		return err
	}
	audio := -1
	audioTB := timebase.New(1, 8000)
	if opts.Audio {
		if audio, err = mux.AddStream(media.StreamInfo{Kind: media.KindAudio, Codec: "pcm_u8", TimeBase: audioTB}); err != nil {
			return err
		}
	}
	if err := mux.WriteHeader(); err != nil {
		return err
	}

	drain := func() error {
		for {
			pkt, err := enc.Receive()
			if errors.Is(err, media.ErrAgain) || errors.Is(err, media.ErrEOF) {
				return nil
			}
			if err != nil {
				return err
			}
			pkt.StreamIndex = video
			pkt.PTS = timebase.Rescale(pkt.PTS, enc.TimeBase(), mux.StreamTimeBase(video))
			pkt.DTS = timebase.Rescale(pkt.DTS, enc.TimeBase(), mux.StreamTimeBase(video))
			pkt.Duration = timebase.Rescale(pkt.Duration, enc.TimeBase(), mux.StreamTimeBase(video))
			if err := mux.WritePacket(pkt); err != nil {
				return err
			}
		}
	}

	var conv frame.Converter
	samples := int(timebase.Duration(opts.FrameRate.Invert(), audioTB))
	for i := 0; i < opts.Frames; i++ {
		pic := frame.NewYCbCr420(opts.Width, opts.Height)
		if err := conv.FromRGB(Pattern(i, opts.Width, opts.Height), pic); err != nil {
			return err
		}
		if err := enc.Send(&media.Frame{Image: pic, PTS: int64(i)}); err != nil {
			return err
		}
		if err := drain(); err != nil {
			return err
		}
		if audio >= 0 {
			silence := make([]byte, samples)
			for k := range silence {
				silence[k] = 128
			}
			if err := mux.WritePacket(&media.Packet{
				StreamIndex: audio,
				PTS:         int64(i * samples),
				DTS:         int64(i * samples),
				Duration:    int64(samples),
				Key:         true,
				Data:        silence,
			}); err != nil {
				return err
			}
		}
	}
	if err := enc.Send(nil); err != nil {
		return err
	}
	if err := drain(); err != nil {
		return err
	}
	if err := mux.WriteTrailer(); err != nil {
		return err
	}
	slog.Debug("test pattern written",
		slog.String("path", path),
		slog.Int("frames", opts.Frames),
		slog.String("service", svc.Name()))
	return nil
}
