package timebase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRescale(t *testing.T) {
	tests := []struct {
		name     string
		ts       int64
		from, to Rational
		want     int64
	}{
		{"Identity", 42, New(1, 25), New(1, 25), 42},
		{"FrameToMpegClock", 3, New(1, 25), New(1, 90000), 10800},
		{"MpegClockToFrame", 10800, New(1, 90000), New(1, 25), 3},
		{"MsToFrame", 1000, New(1, 1000), New(1, 30), 30},
		{"NTSC", 1001, New(1, 30000), New(1001, 30000), 1},
		{"RoundHalfUp", 1, New(1, 2), New(1, 1), 1},
		{"RoundDown", 1, New(1, 3), New(1, 1), 0},
		{"NegativeHalf", -1, New(1, 2), New(1, 1), -1},
		{"Negative", -3, New(1, 25), New(1, 90000), -10800},
		{"Zero", 0, New(1, 25), New(1, 1000), 0},
		{"NoPTS", NoPTS, New(1, 25), New(1, 1000), NoPTS},
		{"InvalidFrom", 7, New(0, 1), New(1, 1000), 7},
		{"Saturate", math.MaxInt64 / 2, New(1, 1), New(1, 90000), math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rescale(tt.ts, tt.from, tt.to))
		})
	}
}

func TestRescale_TwoStep(t *testing.T) {
	// decoder -> encoder -> container, the path every frame takes
	in, enc, out := New(1, 12800), New(1, 25), New(1, 90000)
	for frame := int64(0); frame < 100; frame++ {
		pts := frame * 512 // 25fps in a 1/12800 stream
		e := Rescale(pts, in, enc)
		assert.Equal(t, frame, e)
		assert.Equal(t, frame*3600, Rescale(e, enc, out))
	}
}

func TestRational(t *testing.T) {
	r := New(30000, 1001)
	assert.Equal(t, New(1001, 30000), r.Invert())
	assert.True(t, r.Valid())
	assert.False(t, New(1, 0).Valid())
	assert.InDelta(t, 29.97, r.Float(), 0.001)
	assert.Equal(t, "30000/1001", r.String())
	assert.Equal(t, 0.0, New(1, 0).Float())
	assert.Equal(t, int64(3600), Duration(New(1, 25), New(1, 90000)))
}
