package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGB_At(t *testing.T) {
	f := NewRGBStride(4, 3, 16)
	assert.Equal(t, 16, f.Stride)
	assert.Equal(t, 48, f.ByteSize())
	assert.Equal(t, 0, f.At(0, 0))
	assert.Equal(t, 9, f.At(3, 0))
	assert.Equal(t, 16+6, f.At(2, 1))

	f.SetPixel(3, 2, 1, 2, 3)
	r, g, b := f.Pixel(3, 2)
	assert.Equal(t, [3]uint8{1, 2, 3}, [3]uint8{r, g, b})

	// stride never shrinks below the packed width
	assert.Equal(t, 12, NewRGBStride(4, 1, 2).Stride)
	assert.Equal(t, "RGB24 4x3 stride 16", f.String())
}

func TestConverter_UniformBlocks(t *testing.T) {
	w, h := 8, 6
	src := NewRGB(w, h)
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			r, g, b := uint8(x*30), uint8(y*40), uint8(200-x*10)
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					src.SetPixel(x+dx, y+dy, r, g, b)
				}
			}
		}
	}

	var conv Converter
	pic := NewYCbCr420(w, h)
	require.NoError(t, conv.FromRGB(src, pic))
	back := NewRGB(w, h)
	require.NoError(t, conv.ToRGB(pic, back))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r0, g0, b0 := src.Pixel(x, y)
			r1, g1, b1 := back.Pixel(x, y)
			assert.InDelta(t, r0, r1, 3, "r at (%d,%d)", x, y)
			assert.InDelta(t, g0, g1, 3, "g at (%d,%d)", x, y)
			assert.InDelta(t, b0, b1, 3, "b at (%d,%d)", x, y)
		}
	}
}

func TestConverter_ChromaAverage(t *testing.T) {
	src := NewRGB(2, 2)
	src.SetPixel(0, 0, 255, 0, 0)
	src.SetPixel(1, 0, 255, 0, 0)
	src.SetPixel(0, 1, 0, 0, 255)
	src.SetPixel(1, 1, 0, 0, 255)

	var conv Converter
	pic := NewYCbCr420(2, 2)
	require.NoError(t, conv.FromRGB(src, pic))

	_, cbR, crR := color.RGBToYCbCr(255, 0, 0)
	_, cbB, crB := color.RGBToYCbCr(0, 0, 255)
	assert.InDelta(t, (int(cbR)+int(cbB))/2, int(pic.Cb[0]), 1)
	assert.InDelta(t, (int(crR)+int(crB))/2, int(pic.Cr[0]), 1)
}

func TestConverter_Geometry(t *testing.T) {
	var conv Converter
	err := conv.ToRGB(NewYCbCr420(4, 4), NewRGB(2, 2))
	assert.ErrorIs(t, err, ErrGeometry)
	err = conv.FromRGB(NewRGB(2, 2), NewYCbCr420(4, 4))
	assert.ErrorIs(t, err, ErrGeometry)
}

func TestConverter_OddSizeAndOffsetRect(t *testing.T) {
	pic := image.NewYCbCr(image.Rect(2, 2, 7, 5), image.YCbCrSubsampleRatio420)
	for i := range pic.Y {
		pic.Y[i] = 235
	}
	for i := range pic.Cb {
		pic.Cb[i], pic.Cr[i] = 128, 128
	}
	var conv Converter
	dst := NewRGB(5, 3)
	require.NoError(t, conv.ToRGB(pic, dst))
	r, g, b := dst.Pixel(4, 2)
	assert.Equal(t, [3]uint8{235, 235, 235}, [3]uint8{r, g, b})
}

func TestConverter_LimitedRange(t *testing.T) {
	pic := NewYCbCr420(2, 2)
	pic.Y[0], pic.Y[1] = 235, 16 // video white, video black
	pic.Y[2], pic.Y[3] = 126, 126
	pic.Cb[0], pic.Cr[0] = 128, 128

	conv := Converter{Range: RangeLimited}
	rgb := NewRGB(2, 2)
	require.NoError(t, conv.ToRGB(pic, rgb))
	r, g, b := rgb.Pixel(0, 0)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
	r, g, b = rgb.Pixel(1, 0)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b})

	// full range reads the same samples without expansion
	require.NoError(t, (&Converter{}).ToRGB(pic, rgb))
	r, _, _ = rgb.Pixel(0, 0)
	assert.Equal(t, uint8(235), r)

	rgb.Fill(255, 255, 255)
	require.NoError(t, conv.FromRGB(rgb, pic))
	assert.Equal(t, uint8(235), pic.Y[0])
	assert.Equal(t, uint8(128), pic.Cb[0])
	assert.Equal(t, uint8(128), pic.Cr[0])

	rgb.Fill(0, 0, 0)
	require.NoError(t, conv.FromRGB(rgb, pic))
	assert.Equal(t, uint8(16), pic.Y[0])
	assert.Equal(t, uint8(128), pic.Cb[0])
}

func TestConverter_LimitedRoundTrip(t *testing.T) {
	conv := Converter{Range: RangeLimited}
	pic := NewYCbCr420(2, 2)
	rgb := NewRGB(2, 2)
	for _, c := range [][3]uint8{{192, 0, 0}, {0, 192, 192}, {16, 16, 16}, {128, 64, 32}} {
		rgb.Fill(c[0], c[1], c[2])
		require.NoError(t, conv.FromRGB(rgb, pic))
		require.NoError(t, conv.ToRGB(pic, rgb))
		r, g, b := rgb.Pixel(1, 1)
		for i, v := range []uint8{r, g, b} {
			assert.InDelta(t, int(c[i]), int(v), 3, "colour %v channel %d", c, i)
		}
	}
	assert.Equal(t, "limited", RangeLimited.String())
	assert.Equal(t, "full", RangeFull.String())
}

func TestCheckGeometry(t *testing.T) {
	assert.NoError(t, CheckGeometry(1, 1))
	assert.NoError(t, CheckGeometry(MaxDimension, MaxDimension))
	for _, wh := range [][2]int{{0, 4}, {4, -1}, {MaxDimension + 1, 4}, {4, 1 << 20}} {
		assert.ErrorIs(t, CheckGeometry(wh[0], wh[1]), ErrGeometry, "%dx%d", wh[0], wh[1])
	}
}
