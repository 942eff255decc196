package frame

import (
	"fmt"
	"image"
	"image/color"
)

// NewYCbCr420 allocates a 4:2:0 planar picture, the layout encoders accept.
func NewYCbCr420(width, height int) *image.YCbCr {
	return image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
}

// ColorRange is the quantisation range of YCbCr samples.
type ColorRange int

const (
	// RangeFull uses the whole 0..255 scale, as image/color does.
	RangeFull ColorRange = iota
	// RangeLimited is video range: Y in 16..235, Cb and Cr in 16..240.
	RangeLimited
)

func (r ColorRange) String() string {
	if r == RangeLimited {
		return "limited"
	}
	return "full"
}

// Converter moves pictures between the codec's planar YCbCr layout and the
// packed RGB layout the colour kernel reads. Range selects the BT.601
// quantisation of the YCbCr side. Scratch space for chroma averaging is kept
// between calls so steady-state conversion does not allocate.
type Converter struct {
	Range ColorRange

	sumCb, sumCr, count []int
}

func (c *Converter) toRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	if c.Range == RangeLimited {
		return limitedToRGB(y, cb, cr)
	}
	return color.YCbCrToRGB(y, cb, cr)
}

func (c *Converter) fromRGB(r, g, b uint8) (uint8, uint8, uint8) {
	if c.Range == RangeLimited {
		return rgbToLimited(r, g, b)
	}
	return color.RGBToYCbCr(r, g, b)
}

// limitedToRGB expands video-range BT.601 to full-range RGB in 16.16 fixed
// point.
func limitedToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy := (int32(y) - 16) * 76309
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128
	r := yy + 104597*cr1
	g := yy - 25675*cb1 - 53279*cr1
	b := yy + 132201*cb1
	return clamp16(r), clamp16(g), clamp16(b)
}

// rgbToLimited is the inverse of limitedToRGB.
func rgbToLimited(r, g, b uint8) (uint8, uint8, uint8) {
	r1, g1, b1 := int32(r), int32(g), int32(b)
	y := 16829*r1 + 33039*g1 + 6416*b1 + 16<<16
	cb := -9714*r1 - 19071*g1 + 28784*b1 + 128<<16
	cr := 28784*r1 - 24103*g1 - 4681*b1 + 128<<16
	return clamp16(y), clamp16(cb), clamp16(cr)
}

func clamp16(v int32) uint8 {
	v = (v + 1<<15) >> 16
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

// ToRGB converts any YCbCr subsampling into dst. Sizes must match.
func (c *Converter) ToRGB(src *image.YCbCr, dst *RGB) error {
	b := src.Rect
	if b.Dx() != dst.Width || b.Dy() != dst.Height {
		return fmt.Errorf("%w: %dx%d picture into %dx%d raster", ErrGeometry, b.Dx(), b.Dy(), dst.Width, dst.Height)
	}
	for y := 0; y < dst.Height; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < dst.Width; x++ {
			px, py := b.Min.X+x, b.Min.Y+y
			yi := src.YOffset(px, py)
			ci := src.COffset(px, py)
			r, g, bl := c.toRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
			row[x*3], row[x*3+1], row[x*3+2] = r, g, bl
		}
	}
	return nil
}

// FromRGB converts src into dst. Chroma samples shared by several pixels
// take the rounded mean of those pixels.
func (c *Converter) FromRGB(src *RGB, dst *image.YCbCr) error {
	b := dst.Rect
	if b.Dx() != src.Width || b.Dy() != src.Height {
		return fmt.Errorf("%w: %dx%d raster into %dx%d picture", ErrGeometry, src.Width, src.Height, b.Dx(), b.Dy())
	}
	n := len(dst.Cb)
	c.sumCb = resize(c.sumCb, n)
	c.sumCr = resize(c.sumCr, n)
	c.count = resize(c.count, n)

	for y := 0; y < src.Height; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < src.Width; x++ {
			px, py := b.Min.X+x, b.Min.Y+y
			yy, cb, cr := c.fromRGB(row[x*3], row[x*3+1], row[x*3+2])
			dst.Y[dst.YOffset(px, py)] = yy
			ci := dst.COffset(px, py)
			c.sumCb[ci] += int(cb)
			c.sumCr[ci] += int(cr)
			c.count[ci]++
		}
	}
	for i := 0; i < n; i++ {
		if k := c.count[i]; k > 0 {
			dst.Cb[i] = uint8((c.sumCb[i] + k/2) / k)
			dst.Cr[i] = uint8((c.sumCr[i] + k/2) / k)
		}
	}
	return nil
}

func resize(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	s = s[:n]
	clear(s)
	return s
}
