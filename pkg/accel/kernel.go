package accel

import (
	"math"

	"github.com/jpfielding/lutgrade.go/pkg/lut"
)

// DefaultTileSize is the edge of the square pixel tile handed to one lane.
const DefaultTileSize = 16

// lattice is the kernel's read-only view of a device cube.
type lattice struct {
	n    int
	data []float32
}

func (l lattice) corner(r, g, b int) [3]float32 {
	i := lut.Index(l.n, r, g, b)
	return [3]float32{l.data[i], l.data[i+1], l.data[i+2]}
}

func lerp(a, b, t float32) float32 {
	return a + t*(b-a)
}

// Sample trilinearly interpolates the lattice at continuous coordinate
// (fr,fg,fb), each in [0, n-1]. Blends run along R first, then G, then B.
func Sample(data []float32, n int, fr, fg, fb float32) [3]float32 {
	l := lattice{n: n, data: data}
	r0, g0, b0 := int(fr), int(fg), int(fb)
	r1, g1, b1 := min(r0+1, n-1), min(g0+1, n-1), min(b0+1, n-1)
	dr, dg, db := fr-float32(r0), fg-float32(g0), fb-float32(b0)

	c000, c100 := l.corner(r0, g0, b0), l.corner(r1, g0, b0)
	c010, c110 := l.corner(r0, g1, b0), l.corner(r1, g1, b0)
	c001, c101 := l.corner(r0, g0, b1), l.corner(r1, g0, b1)
	c011, c111 := l.corner(r0, g1, b1), l.corner(r1, g1, b1)

	var out [3]float32
	for ch := 0; ch < 3; ch++ {
		// along R
		c00 := lerp(c000[ch], c100[ch], dr)
		c10 := lerp(c010[ch], c110[ch], dr)
		c01 := lerp(c001[ch], c101[ch], dr)
		c11 := lerp(c011[ch], c111[ch], dr)
		// along G
		c0 := lerp(c00, c10, dg)
		c1 := lerp(c01, c11, dg)
		// along B
		out[ch] = lerp(c0, c1, db)
	}
	return out
}

// TransformPixel maps one 8-bit pixel through the lattice. Pure white is
// returned unchanged without consulting the LUT.
func TransformPixel(data []float32, n int, r, g, b uint8) (uint8, uint8, uint8) {
	if r == 255 && g == 255 && b == 255 {
		return 255, 255, 255
	}
	scale := float32(n - 1)
	v := Sample(data, n,
		float32(r)/255*scale,
		float32(g)/255*scale,
		float32(b)/255*scale)
	return quantize(v[0]), quantize(v[1]), quantize(v[2])
}

// quantize scales back to [0,255], rounds half up, and clamps.
func quantize(v float32) uint8 {
	x := v*255 + 0.5
	switch {
	case x != x: // NaN
		return 0
	case x <= 0:
		return 0
	case x >= 255:
		return 255
	}
	return uint8(math.Trunc(float64(x)))
}

// tile is one unit of dispatch: a rectangle of pixels [x0,x1)x[y0,y1).
type tile struct {
	d              *dispatch
	x0, y0, x1, y1 int
}

func (t tile) run() {
	d := t.d
	for y := t.y0; y < t.y1; y++ {
		row := y * d.stride
		for x := t.x0; x < t.x1; x++ {
			i := row + x*3
			src := d.in[i : i+3 : i+3]
			d.out[i], d.out[i+1], d.out[i+2] = TransformPixel(d.lut.data, d.lut.n, src[0], src[1], src[2])
		}
	}
}

// tiles splits a width x height frame into size x size rectangles.
func tiles(d *dispatch, width, height, size int) []tile {
	ts := make([]tile, 0, ((width+size-1)/size)*((height+size-1)/size))
	for y := 0; y < height; y += size {
		for x := 0; x < width; x += size {
			ts = append(ts, tile{
				d:  d,
				x0: x, y0: y,
				x1: min(x+size, width), y1: min(y+size, height),
			})
		}
	}
	return ts
}
