package rle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackBitsRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", []byte{}},
		{"Single", []byte{0xAA}},
		{"Run2", []byte{0xAA, 0xAA}},
		{"Run3", []byte{0xAA, 0xAA, 0xAA}},
		{"Literal", []byte{0x01, 0x02, 0x03}},
		{"Mixed", []byte{0xAA, 0xAA, 0xAA, 0x01, 0x02, 0xBB, 0xBB}},
		{"LongRun", makeBytes(0xCC, 130)},     // > 128
		{"LongLiteral", makeSequence(0, 130)}, // > 128
		{"MaxRun", makeBytes(0xAA, 128)},
		{"MaxRunPlus1", makeBytes(0xAA, 129)},
		{"MaxLiteral", makeSequence(0, 128)},
		{"MaxLiteralPlus1", makeSequence(0, 129)},
		{"Alternating", []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed := Pack(nil, tt.data)
			decompressed, err := Unpack(compressed, len(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.data, decompressed, "Roundtrip mismatch")
		})
	}
}

func TestPack_Appends(t *testing.T) {
	out := Pack([]byte{0x7F}, makeBytes(0x10, 4))
	assert.Equal(t, []byte{0x7F, 0xFD, 0x10}, out)
}

func TestUnpack_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  int
		err   error
	}{
		{"TruncatedLiteral", []byte{0x02, 0x01}, 0, ErrTruncated},   // literal of 3, 1 byte given
		{"TruncatedReplicate", []byte{0xFE}, 0, ErrTruncated},       // replicate of 3, value missing
		{"TruncatedLiteralBoundary", []byte{0x00}, 0, ErrTruncated}, // literal of 1, nothing given
		{"Short", []byte{0xFE, 0x01}, 4, ErrTruncated},              // 3 of 4
		{"Overrun", []byte{0xFD, 0x01}, 3, ErrOverrun},              // 4 of 3
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unpack(tt.input, tt.want)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestUnpack_NoOp(t *testing.T) {
	out, err := Unpack([]byte{0x80, 0x00, 0x42}, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, out)
}

func TestSegments_RoundTrip(t *testing.T) {
	y := bytes.Repeat([]byte{16, 16, 16, 200, 201, 202}, 40)
	cb := makeBytes(128, 60)
	cr := makeSequence(3, 60)

	payload, err := EncodeSegments(y, cb, cr)
	require.NoError(t, err)
	assert.Less(t, len(payload), len(y)+len(cb)+len(cr)+16)

	planes, err := DecodeSegments(payload, len(y), len(cb), len(cr))
	require.NoError(t, err)
	require.Len(t, planes, 3)
	assert.Equal(t, y, planes[0])
	assert.Equal(t, cb, planes[1])
	assert.Equal(t, cr, planes[2])
}

func TestSegments_Errors(t *testing.T) {
	_, err := EncodeSegments()
	assert.ErrorIs(t, err, ErrSegments)

	payload, err := EncodeSegments(makeBytes(1, 10), makeBytes(2, 10))
	require.NoError(t, err)

	_, err = DecodeSegments(payload, 10)
	assert.ErrorIs(t, err, ErrSegments)
	_, err = DecodeSegments(payload[:6], 10, 10)
	assert.ErrorIs(t, err, ErrSegments)
	_, err = DecodeSegments(payload, 10, 11)
	assert.ErrorIs(t, err, ErrTruncated)

	bad := append([]byte(nil), payload...)
	bad[4] = 0xFF // first offset beyond the payload
	_, err = DecodeSegments(bad, 10, 10)
	assert.ErrorIs(t, err, ErrSegments)
}

func makeBytes(val byte, n int) []byte {
	res := make([]byte, n)
	for i := range res {
		res[i] = val
	}
	return res
}

func makeSequence(start byte, n int) []byte {
	res := make([]byte, n)
	val := start
	for i := range res {
		res[i] = val
		val++
	}
	return res
}
