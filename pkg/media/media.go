// Package media defines the codec service the grading pipeline drives:
// demuxing, decoding, encoding, and muxing behind a send/receive contract
// modelled on FFmpeg's codec API.
//
// Decoders and encoders are fed with Send and drained with Receive. A nil
// packet or frame passed to Send starts a flush. Receive returns ErrAgain
// when more input is needed and ErrEOF once a flushed codec is exhausted.
package media

import (
	"errors"
	"fmt"
	"image"

	"github.com/jpfielding/lutgrade.go/pkg/frame"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
)

var (
	ErrAgain       = errors.New("media: resource temporarily unavailable")
	ErrEOF         = errors.New("media: end of stream")
	ErrInvalidData = errors.New("media: invalid data")
	ErrUnsupported = errors.New("media: unsupported stream")
)

// Kind is the media type of a stream.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// StreamInfo describes one stream of a container.
type StreamInfo struct {
	Index     int
	Kind      Kind
	Codec     string
	TimeBase  timebase.Rational
	FrameRate timebase.Rational
	Width     int
	Height    int
	// Range is the YCbCr quantisation of a video stream.
	Range frame.ColorRange
	// Private carries service specific parameters, such as codec extradata.
	Private any
}

func (s StreamInfo) String() string {
	if s.Kind == KindVideo {
		return fmt.Sprintf("#%d %s %s %dx%d tb=%s fps=%s", s.Index, s.Kind, s.Codec, s.Width, s.Height, s.TimeBase, s.FrameRate)
	}
	return fmt.Sprintf("#%d %s %s tb=%s", s.Index, s.Kind, s.Codec, s.TimeBase)
}

// Packet is one coded unit. Timestamps are in the timebase of the stream
// the packet belongs to; timebase.NoPTS marks an unknown value.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Key         bool
	Data        []byte
}

// Frame is one decoded picture in planar YCbCr 4:2:0.
type Frame struct {
	Image *image.YCbCr
	Range frame.ColorRange
	PTS   int64
	Key   bool
}

// EncoderConfig is passed opaquely to the codec service.
type EncoderConfig struct {
	Codec      string
	BitRate    int64
	GOPSize    int
	MaxBFrames int
	Preset     string
	Tune       string
	Profile    string
	Level      string
}

// DefaultEncoderConfig is the fixed encoder setup used by the pipeline.
var DefaultEncoderConfig = EncoderConfig{
	Codec:      "h264",
	BitRate:    4_000_000,
	GOPSize:    12,
	MaxBFrames: 2,
	Preset:     "medium",
	Tune:       "film",
	Profile:    "high",
	Level:      "4.1",
}

// Demuxer reads packets from an input container.
type Demuxer interface {
	Streams() []StreamInfo
	// BestVideo returns the index of the primary video stream.
	BestVideo() (int, error)
	// ReadPacket returns the next packet or ErrEOF.
	ReadPacket() (*Packet, error)
	Close() error
}

// Decoder turns packets of one stream into frames.
type Decoder interface {
	// TimeBase is the timebase of frame timestamps.
	TimeBase() timebase.Rational
	// Send queues a packet; nil signals end of input.
	Send(pkt *Packet) error
	// Receive returns the next frame, ErrAgain, or ErrEOF.
	Receive() (*Frame, error)
	Close() error
}

// Encoder turns frames into packets.
type Encoder interface {
	// Stream describes the coded output, for Muxer.AddStream.
	Stream() StreamInfo
	TimeBase() timebase.Rational
	// Send queues a frame; nil signals end of input. The picture is copied,
	// so the caller may reuse it once Send returns.
	Send(frame *Frame) error
	// Receive returns the next packet, ErrAgain, or ErrEOF.
	Receive() (*Packet, error)
	Close() error
}

// Muxer writes packets to an output container.
type Muxer interface {
	// AddStream registers an output stream and returns its index.
	AddStream(info StreamInfo) (int, error)
	// StreamTimeBase is the timebase the container chose for a stream, valid
	// after WriteHeader.
	StreamTimeBase(index int) timebase.Rational
	WriteHeader() error
	WritePacket(pkt *Packet) error
	WriteTrailer() error
	Close() error
}

// Service opens the codec side of a pipeline.
type Service interface {
	Name() string
	OpenInput(path string) (Demuxer, error)
	NewDecoder(stream StreamInfo) (Decoder, error)
	NewEncoder(stream StreamInfo, cfg EncoderConfig) (Encoder, error)
	CreateOutput(path string) (Muxer, error)
}
