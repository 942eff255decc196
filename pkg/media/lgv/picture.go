package lgv

import (
	"fmt"
	"image"

	"github.com/jpfielding/lutgrade.go/pkg/compress/rle"
	"github.com/jpfielding/lutgrade.go/pkg/frame"
	"github.com/jpfielding/lutgrade.go/pkg/media"
)

// pictureCodec codes a single 4:2:0 picture.
type pictureCodec interface {
	Name() string
	Encode(img *image.YCbCr) ([]byte, error)
	Decode(data []byte, width, height int) (*image.YCbCr, error)
}

// DefaultCodec is used when an encoder asks for a codec lgv does not carry.
const DefaultCodec = "rle420"

// planes copies the visible samples of img into tight Y, Cb, Cr planes.
func planes(img *image.YCbCr) (y, cb, cr []byte) {
	b := img.Rect
	w, h := b.Dx(), b.Dy()
	cw, ch := (w+1)/2, (h+1)/2
	y = make([]byte, 0, w*h)
	for row := 0; row < h; row++ {
		i := img.YOffset(b.Min.X, b.Min.Y+row)
		y = append(y, img.Y[i:i+w]...)
	}
	cb = make([]byte, 0, cw*ch)
	cr = make([]byte, 0, cw*ch)
	for row := 0; row < ch; row++ {
		i := img.COffset(b.Min.X, b.Min.Y+row*2)
		cb = append(cb, img.Cb[i:i+cw]...)
		cr = append(cr, img.Cr[i:i+cw]...)
	}
	return y, cb, cr
}

func check420(img *image.YCbCr) error {
	if img == nil {
		return fmt.Errorf("%w: nil picture", media.ErrInvalidData)
	}
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return fmt.Errorf("%w: subsampling %v", media.ErrUnsupported, img.SubsampleRatio)
	}
	return nil
}

// rleCodec packs each plane with PackBits.
type rleCodec struct{}

func (c *rleCodec) Name() string { return "rle420" }

func (c *rleCodec) Encode(img *image.YCbCr) ([]byte, error) {
	if err := check420(img); err != nil {
		return nil, err
	}
	return rle.EncodeSegments(planes(img))
}

func (c *rleCodec) Decode(data []byte, width, height int) (*image.YCbCr, error) {
	cw, ch := (width+1)/2, (height+1)/2
	ps, err := rle.DecodeSegments(data, width*height, cw*ch, cw*ch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrInvalidData, err)
	}
	img := frame.NewYCbCr420(width, height)
	copy(img.Y, ps[0])
	copy(img.Cb, ps[1])
	copy(img.Cr, ps[2])
	return img, nil
}

// rawCodec stores planes uncompressed.
type rawCodec struct{}

func (c *rawCodec) Name() string { return "raw420" }

func (c *rawCodec) Encode(img *image.YCbCr) ([]byte, error) {
	if err := check420(img); err != nil {
		return nil, err
	}
	y, cb, cr := planes(img)
	out := make([]byte, 0, len(y)+len(cb)+len(cr))
	out = append(out, y...)
	out = append(out, cb...)
	return append(out, cr...), nil
}

func (c *rawCodec) Decode(data []byte, width, height int) (*image.YCbCr, error) {
	cw, ch := (width+1)/2, (height+1)/2
	want := width*height + 2*cw*ch
	if len(data) != want {
		return nil, fmt.Errorf("%w: raw picture of %d bytes, want %d", media.ErrInvalidData, len(data), want)
	}
	img := frame.NewYCbCr420(width, height)
	n := copy(img.Y, data)
	n += copy(img.Cb, data[n:])
	copy(img.Cr, data[n:])
	return img, nil
}

// codecsByName maps codec names to implementations
var codecsByName = map[string]pictureCodec{
	"rle420": &rleCodec{},
	"raw420": &rawCodec{},
	"rle":    &rleCodec{}, // alias
}

// Codecs lists the picture codecs lgv can read and write.
func Codecs() []string {
	return []string{"raw420", "rle420"}
}
