// Package lgv is a self-contained codec service: a small packet container
// ("LGV1") carrying intra-coded 4:2:0 pictures. It needs no system
// libraries, so it backs the default build and the pipeline tests.
//
// File layout, all fields little endian:
//
//	header   magic "LGV1", version u16, stream count u16
//	streams  kind u8, codec length u8, timebase i32/i32, frame rate i32/i32,
//	         width u32, height u32, codec name
//	packets  stream u16, flags u16, pts i64, dts i64, duration i64, size u32, data
//	trailer  a packet record with stream 0xFFFF, then the packet count u64
package lgv

import (
	"github.com/jpfielding/lutgrade.go/pkg/media"
)

// Ext is the file extension the service claims.
const Ext = ".lgv"

// Service opens LGV files.
type Service struct{}

var _ media.Service = Service{}

func (Service) Name() string { return "lgv" }

func (Service) OpenInput(path string) (media.Demuxer, error) {
	d, err := Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (Service) NewDecoder(stream media.StreamInfo) (media.Decoder, error) {
	d, err := NewDecoder(stream)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (Service) NewEncoder(stream media.StreamInfo, cfg media.EncoderConfig) (media.Encoder, error) {
	e, err := NewEncoder(stream, cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (Service) CreateOutput(path string) (media.Muxer, error) {
	m, err := Create(path)
	if err != nil {
		return nil, err
	}
	return m, nil
}
