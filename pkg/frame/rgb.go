// Package frame holds the packed pixel rasters handed between the codec
// service and the accelerator, plus the pixel-layout converters between them.
package frame

import (
	"errors"
	"fmt"
)

var ErrGeometry = errors.New("frame: geometry mismatch")

// MaxDimension bounds either edge of a picture.
const MaxDimension = 1 << 14

// CheckGeometry rejects pictures that are empty or too large to rasterise.
func CheckGeometry(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d is empty", ErrGeometry, width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels per edge", ErrGeometry, width, height, MaxDimension)
	}
	return nil
}

// RGB is a packed 8-bit RGB raster, row-major, three bytes per pixel with
// Stride bytes per row.
type RGB struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewRGB allocates a tightly packed raster.
func NewRGB(width, height int) *RGB {
	return NewRGBStride(width, height, width*3)
}

// NewRGBStride allocates a raster with the given row pitch.
func NewRGBStride(width, height, stride int) *RGB {
	if stride < width*3 {
		stride = width * 3
	}
	return &RGB{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// At returns the offset of pixel (x,y) in Pix.
func (f *RGB) At(x, y int) int {
	return y*f.Stride + x*3
}

// Pixel returns the three channels of (x,y).
func (f *RGB) Pixel(x, y int) (r, g, b uint8) {
	i := f.At(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetPixel stores the three channels of (x,y).
func (f *RGB) SetPixel(x, y int, r, g, b uint8) {
	i := f.At(x, y)
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// ByteSize is the length of one frame as handed to device memory.
func (f *RGB) ByteSize() int {
	return f.Stride * f.Height
}

// Fill paints every pixel with one colour.
func (f *RGB) Fill(r, g, b uint8) {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.SetPixel(x, y, r, g, b)
		}
	}
}

func (f *RGB) String() string {
	return fmt.Sprintf("RGB24 %dx%d stride %d", f.Width, f.Height, f.Stride)
}
