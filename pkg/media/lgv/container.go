package lgv

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jpfielding/lutgrade.go/pkg/media"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
)

// Magic opens every LGV file.
var Magic = [4]byte{'L', 'G', 'V', '1'}

const (
	version = 1
	// trailerIndex in a packet record's stream field marks the trailer.
	trailerIndex = 0xFFFF
	maxStreams   = 16
	maxPacket    = 1 << 28
)

// VideoTimeBase is the timebase the muxer assigns to video streams.
var VideoTimeBase = timebase.New(1, 90000)

var (
	ErrNotLGV      = errors.New("lgv: not an LGV file")
	ErrHeader      = errors.New("lgv: header already written")
	ErrNoHeader    = errors.New("lgv: header not written")
	ErrStreamIndex = errors.New("lgv: no such stream")
)

// order is the byte order of every LGV field.
var order = binary.LittleEndian

type fileHeader struct {
	Magic   [4]byte
	Version uint16
	Streams uint16
}

type streamRecord struct {
	Kind     uint8
	CodecLen uint8
	TBNum    int32
	TBDen    int32
	FRNum    int32
	FRDen    int32
	Width    uint32
	Height   uint32
}

type packetRecord struct {
	Stream   uint16
	Flags    uint16
	PTS      int64
	DTS      int64
	Duration int64
	Size     uint32
}

const flagKey = 1

// Muxer writes an LGV file.
type Muxer struct {
	f       *os.File
	w       *bufio.Writer
	streams []media.StreamInfo
	header  bool
	trailer bool
	packets uint64
}

var _ media.Muxer = (*Muxer)(nil)

// Create opens path for writing.
func Create(path string) (*Muxer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	return &Muxer{f: f, w: bufio.NewWriter(f)}, nil
}

// AddStream registers a stream. Video streams are rebased onto VideoTimeBase.
func (m *Muxer) AddStream(info media.StreamInfo) (int, error) {
	if m.header {
		return 0, ErrHeader
	}
	if len(m.streams) >= maxStreams {
		return 0, fmt.Errorf("%w: more than %d streams", media.ErrUnsupported, maxStreams)
	}
	if len(info.Codec) > 255 {
		return 0, fmt.Errorf("%w: codec name too long", media.ErrUnsupported)
	}
	info.Index = len(m.streams)
	if info.Kind == media.KindVideo {
		info.TimeBase = VideoTimeBase
	}
	if !info.TimeBase.Valid() {
		return 0, fmt.Errorf("%w: timebase %s", media.ErrUnsupported, info.TimeBase)
	}
	m.streams = append(m.streams, info)
	return info.Index, nil
}

func (m *Muxer) StreamTimeBase(index int) timebase.Rational {
	if index < 0 || index >= len(m.streams) {
		return timebase.Rational{}
	}
	return m.streams[index].TimeBase
}

func (m *Muxer) WriteHeader() error {
	if m.header {
		return ErrHeader
	}
	if err := binary.Write(m.w, order, fileHeader{Magic: Magic, Version: version, Streams: uint16(len(m.streams))}); err != nil {
		return err
	}
	for _, s := range m.streams {
		rec := streamRecord{
			Kind:     uint8(s.Kind),
			CodecLen: uint8(len(s.Codec)),
			TBNum:    int32(s.TimeBase.Num),
			TBDen:    int32(s.TimeBase.Den),
			FRNum:    int32(s.FrameRate.Num),
			FRDen:    int32(s.FrameRate.Den),
			Width:    uint32(s.Width),
			Height:   uint32(s.Height),
		}
		if err := binary.Write(m.w, order, rec); err != nil {
			return err
		}
		if _, err := m.w.WriteString(s.Codec); err != nil {
			return err
		}
	}
	m.header = true
	return nil
}

func (m *Muxer) WritePacket(pkt *media.Packet) error {
	if !m.header {
		return ErrNoHeader
	}
	if m.trailer {
		return fmt.Errorf("%w: packet after trailer", ErrHeader)
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("%w: %d", ErrStreamIndex, pkt.StreamIndex)
	}
	if len(pkt.Data) > maxPacket {
		return fmt.Errorf("%w: packet of %d bytes", media.ErrInvalidData, len(pkt.Data))
	}
	rec := packetRecord{
		Stream:   uint16(pkt.StreamIndex),
		PTS:      pkt.PTS,
		DTS:      pkt.DTS,
		Duration: pkt.Duration,
		Size:     uint32(len(pkt.Data)),
	}
	if pkt.Key {
		rec.Flags |= flagKey
	}
	if err := binary.Write(m.w, order, rec); err != nil {
		return err
	}
	if _, err := m.w.Write(pkt.Data); err != nil {
		return err
	}
	m.packets++
	return nil
}

func (m *Muxer) WriteTrailer() error {
	if !m.header {
		return ErrNoHeader
	}
	if m.trailer {
		return nil
	}
	if err := binary.Write(m.w, order, packetRecord{Stream: trailerIndex}); err != nil {
		return err
	}
	if err := binary.Write(m.w, order, m.packets); err != nil {
		return err
	}
	m.trailer = true
	return m.w.Flush()
}

// Close flushes buffered output and closes the file.
func (m *Muxer) Close() error {
	if m.f == nil {
		return nil
	}
	err := m.w.Flush()
	err = errors.Join(err, m.f.Close())
	m.f = nil
	return err
}

// Demuxer reads an LGV file.
type Demuxer struct {
	f       *os.File
	r       *bufio.Reader
	streams []media.StreamInfo
	packets uint64
	done    bool
}

var _ media.Demuxer = (*Demuxer)(nil)

// Open reads the LGV header of path.
func Open(path string) (*Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	d := &Demuxer{f: f, r: bufio.NewReader(f)}
	if err := d.readHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func (d *Demuxer) readHeader() error {
	var h fileHeader
	if err := binary.Read(d.r, order, &h); err != nil {
		return fmt.Errorf("%w: %w", ErrNotLGV, err)
	}
	if h.Magic != Magic {
		return fmt.Errorf("%w: magic %q", ErrNotLGV, h.Magic[:])
	}
	if h.Version != version {
		return fmt.Errorf("%w: version %d", ErrNotLGV, h.Version)
	}
	if h.Streams > maxStreams {
		return fmt.Errorf("%w: %d streams", media.ErrInvalidData, h.Streams)
	}
	for i := 0; i < int(h.Streams); i++ {
		var rec streamRecord
		if err := binary.Read(d.r, order, &rec); err != nil {
			return fmt.Errorf("%w: stream %d: %w", media.ErrInvalidData, i, err)
		}
		codec := make([]byte, rec.CodecLen)
		if _, err := io.ReadFull(d.r, codec); err != nil {
			return fmt.Errorf("%w: stream %d codec: %w", media.ErrInvalidData, i, err)
		}
		d.streams = append(d.streams, media.StreamInfo{
			Index:     i,
			Kind:      media.Kind(rec.Kind),
			Codec:     string(codec),
			TimeBase:  timebase.New(int(rec.TBNum), int(rec.TBDen)),
			FrameRate: timebase.New(int(rec.FRNum), int(rec.FRDen)),
			Width:     int(rec.Width),
			Height:    int(rec.Height),
		})
	}
	return nil
}

func (d *Demuxer) Streams() []media.StreamInfo {
	return append([]media.StreamInfo(nil), d.streams...)
}

func (d *Demuxer) BestVideo() (int, error) {
	for _, s := range d.streams {
		if s.Kind == media.KindVideo {
			return s.Index, nil
		}
	}
	return -1, fmt.Errorf("%w: no video stream", media.ErrUnsupported)
}

// ReadPacket returns the next packet. A file that ends without a trailer is
// treated as complete after a warning.
func (d *Demuxer) ReadPacket() (*media.Packet, error) {
	if d.done {
		return nil, media.ErrEOF
	}
	var rec packetRecord
	if err := binary.Read(d.r, order, &rec); err != nil {
		d.done = true
		if errors.Is(err, io.EOF) {
			slog.Warn("lgv: missing trailer", slog.Uint64("packets", d.packets))
			return nil, media.ErrEOF
		}
		return nil, fmt.Errorf("%w: packet %d: %w", media.ErrInvalidData, d.packets, err)
	}
	if rec.Stream == trailerIndex {
		d.done = true
		var count uint64
		if err := binary.Read(d.r, order, &count); err == nil && count != d.packets {
			slog.Warn("lgv: trailer packet count differs",
				slog.Uint64("trailer", count),
				slog.Uint64("read", d.packets))
		}
		return nil, media.ErrEOF
	}
	if int(rec.Stream) >= len(d.streams) || rec.Size > maxPacket {
		d.done = true
		return nil, fmt.Errorf("%w: packet %d stream %d size %d", media.ErrInvalidData, d.packets, rec.Stream, rec.Size)
	}
	data := make([]byte, rec.Size)
	if _, err := io.ReadFull(d.r, data); err != nil {
		d.done = true
		return nil, fmt.Errorf("%w: packet %d payload: %w", media.ErrInvalidData, d.packets, err)
	}
	d.packets++
	return &media.Packet{
		StreamIndex: int(rec.Stream),
		PTS:         rec.PTS,
		DTS:         rec.DTS,
		Duration:    rec.Duration,
		Key:         rec.Flags&flagKey != 0,
		Data:        data,
	}, nil
}

func (d *Demuxer) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
