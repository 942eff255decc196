// Package rle implements PackBits run-length coding and a segmented layout
// that carries several independently coded planes in one payload.
package rle

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated = errors.New("rle: compressed data truncated")
	ErrOverrun   = errors.New("rle: decoded data exceeds expected length")
	ErrSegments  = errors.New("rle: invalid segment table")
)

// MaxSegments bounds the planes one payload may hold.
const MaxSegments = 15

// Pack appends the PackBits coding of src to dst.
func Pack(dst, src []byte) []byte {
	i := 0
	for i < len(src) {
		runLen := 1
		for i+runLen < len(src) && runLen < 128 && src[i+runLen] == src[i] {
			runLen++
		}
		if runLen > 1 {
			dst = append(dst, byte(int8(-(runLen - 1))), src[i])
			i += runLen
			continue
		}

		// literal until the next run of three or 128 bytes
		litLen := 1
		for i+litLen < len(src) && litLen < 128 {
			if i+litLen+2 < len(src) &&
				src[i+litLen] == src[i+litLen+1] &&
				src[i+litLen] == src[i+litLen+2] {
				break
			}
			litLen++
		}
		dst = append(dst, byte(int8(litLen-1)))
		dst = append(dst, src[i:i+litLen]...)
		i += litLen
	}
	return dst
}

// Unpack decodes PackBits data. When want is positive the output must be
// exactly want bytes long.
func Unpack(data []byte, want int) ([]byte, error) {
	out := make([]byte, 0, max(want, 0))
	i := 0
	for i < len(data) {
		n := int8(data[i])
		i++
		switch {
		case n == -128:
			// no-op
		case n >= 0:
			count := int(n) + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("%w: literal run of %d at %d", ErrTruncated, count, i)
			}
			out = append(out, data[i:i+count]...)
			i += count
		default:
			count := int(-n) + 1
			if i >= len(data) {
				return nil, fmt.Errorf("%w: replicate run at %d", ErrTruncated, i)
			}
			for k := 0; k < count; k++ {
				out = append(out, data[i])
			}
			i++
		}
		if want > 0 && len(out) > want {
			return nil, fmt.Errorf("%w: %d > %d", ErrOverrun, len(out), want)
		}
	}
	if want > 0 && len(out) != want {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, len(out), want)
	}
	return out, nil
}

// EncodeSegments packs each plane and prefixes a table of little-endian
// uint32 values: the segment count followed by each segment's offset.
func EncodeSegments(planes ...[]byte) ([]byte, error) {
	if len(planes) == 0 || len(planes) > MaxSegments {
		return nil, fmt.Errorf("%w: %d segments", ErrSegments, len(planes))
	}
	header := 4 * (1 + len(planes))
	out := make([]byte, header)
	binary.LittleEndian.PutUint32(out, uint32(len(planes)))
	for i, p := range planes {
		binary.LittleEndian.PutUint32(out[4*(i+1):], uint32(len(out)))
		out = Pack(out, p)
	}
	return out, nil
}

// DecodeSegments reverses EncodeSegments. sizes gives the decoded length of
// each plane and must match the segment count.
func DecodeSegments(data []byte, sizes ...int) ([][]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d byte payload", ErrSegments, len(data))
	}
	count := int(binary.LittleEndian.Uint32(data))
	if count != len(sizes) || count > MaxSegments {
		return nil, fmt.Errorf("%w: %d segments, want %d", ErrSegments, count, len(sizes))
	}
	header := 4 * (1 + count)
	if len(data) < header {
		return nil, fmt.Errorf("%w: table cut short", ErrSegments)
	}
	offsets := make([]int, count+1)
	for i := 0; i < count; i++ {
		offsets[i] = int(binary.LittleEndian.Uint32(data[4*(i+1):]))
	}
	offsets[count] = len(data)
	planes := make([][]byte, count)
	for i := 0; i < count; i++ {
		start, end := offsets[i], offsets[i+1]
		if start < header || end < start || end > len(data) {
			return nil, fmt.Errorf("%w: segment %d spans [%d,%d)", ErrSegments, i, start, end)
		}
		p, err := Unpack(data[start:end], sizes[i])
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		planes[i] = p
	}
	return planes, nil
}
