package accel

import (
	"math"
	"testing"

	"github.com/jpfielding/lutgrade.go/pkg/lut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func absDiff(a, b uint8) int {
	return int(math.Abs(float64(a) - float64(b)))
}

func TestTransformPixel_Identity(t *testing.T) {
	for _, n := range []int{2, 17, 33} {
		c := lut.Identity(n)
		for r := 0; r < 256; r += 5 {
			for g := 0; g < 256; g += 7 {
				for b := 0; b < 256; b += 3 {
					or, og, ob := TransformPixel(c.Data, n, uint8(r), uint8(g), uint8(b))
					require.LessOrEqual(t, absDiff(or, uint8(r)), 1, "n=%d r=%d", n, r)
					require.LessOrEqual(t, absDiff(og, uint8(g)), 1, "n=%d g=%d", n, g)
					require.LessOrEqual(t, absDiff(ob, uint8(b)), 1, "n=%d b=%d", n, b)
				}
			}
		}
	}
}

func TestTransformPixel_WhitePassthrough(t *testing.T) {
	// a lattice that maps everything to black
	c := lut.NewCube(4)
	r, g, b := TransformPixel(c.Data, 4, 255, 255, 255)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})

	r, g, b = TransformPixel(c.Data, 4, 255, 255, 254)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b})
}

func TestTransformPixel_BoundaryClamp(t *testing.T) {
	for _, n := range []int{1, 2, 3, 16, 65} {
		c := lut.NewCube(n)
		for i := range c.Data {
			c.Data[i] = float32(i%251) / 250
		}
		last := n - 1
		// 255 on a channel lands exactly on the last lattice plane
		for _, tt := range []struct {
			r, g, b    uint8
			li, lj, lk int
		}{
			{255, 0, 0, last, 0, 0},
			{0, 255, 0, 0, last, 0},
			{0, 0, 255, 0, 0, last},
			{0, 255, 255, 0, last, last},
			{255, 255, 0, last, last, 0},
		} {
			want := c.Get(tt.li, tt.lj, tt.lk)
			r, g, b := TransformPixel(c.Data, n, tt.r, tt.g, tt.b)
			assert.Equal(t,
				[3]uint8{quantize(want[0]), quantize(want[1]), quantize(want[2])},
				[3]uint8{r, g, b},
				"n=%d in=(%d,%d,%d)", n, tt.r, tt.g, tt.b)
		}
	}

	id := lut.Identity(2)
	r, g, b := TransformPixel(id.Data, 2, 255, 0, 0)
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})
	r, g, b = TransformPixel(id.Data, 2, 0, 0, 255)
	assert.Equal(t, [3]uint8{0, 0, 255}, [3]uint8{r, g, b})
}

func TestTransformPixel_Overrange(t *testing.T) {
	c := lut.NewCube(2)
	for i := range c.Data {
		c.Data[i] = 2
	}
	r, _, _ := TransformPixel(c.Data, 2, 10, 10, 10)
	assert.Equal(t, uint8(255), r)

	for i := range c.Data {
		c.Data[i] = -1
	}
	r, _, _ = TransformPixel(c.Data, 2, 10, 10, 10)
	assert.Equal(t, uint8(0), r)
}

func TestSample_BlendLaw(t *testing.T) {
	// 2-point lattice where only the R axis varies: 0 at r=0, 1 at r=1
	c := lut.NewCube(2)
	for g := 0; g < 2; g++ {
		for b := 0; b < 2; b++ {
			c.Set(1, g, b, [3]float32{1, 1, 1})
		}
	}
	for _, tt := range []float32{0, 0.25, 0.5, 0.75, 1} {
		v := Sample(c.Data, 2, tt, 0.3, 0.6)
		assert.InDelta(t, tt, v[0], 1e-6, "t=%v", tt)
	}

	// blends along G and B follow the same linear law
	c = lut.NewCube(2)
	c.Set(0, 1, 0, [3]float32{0, 1, 0})
	c.Set(0, 1, 1, [3]float32{0, 1, 0})
	c.Set(0, 0, 1, [3]float32{0, 0, 1})
	c.Set(0, 1, 1, [3]float32{0, 1, 1})
	for _, tt := range []float32{0, 0.25, 0.5, 0.75, 1} {
		v := Sample(c.Data, 2, 0, tt, tt)
		assert.InDelta(t, tt, v[1], 1e-6)
		assert.InDelta(t, tt, v[2], 1e-6)
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{0, 0},
		{-0.5, 0},
		{1, 255},
		{1.5, 255},
		{0.5, 128},
		{float32(math.NaN()), 0},
		{127.4 / 255, 127},
		{127.6 / 255, 128},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quantize(tt.in), "in=%v", tt.in)
	}
}

func TestTiles_Cover(t *testing.T) {
	d := &dispatch{}
	ts := tiles(d, 37, 20, 16)
	require.Len(t, ts, 6)

	covered := make([]int, 37*20)
	for _, tl := range ts {
		for y := tl.y0; y < tl.y1; y++ {
			for x := tl.x0; x < tl.x1; x++ {
				covered[y*37+x]++
			}
		}
	}
	for i, c := range covered {
		require.Equal(t, 1, c, "pixel %d", i)
	}
}
