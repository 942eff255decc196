package testsrc

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jpfielding/lutgrade.go/pkg/media"
	"github.com/jpfielding/lutgrade.go/pkg/media/lgv"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPattern(t *testing.T) {
	img := Pattern(0, 64, 32)
	require.Equal(t, 64, img.Width)
	require.Equal(t, 32, img.Height)

	r, g, b := img.Pixel(0, 0)
	assert.Equal(t, [3]uint8{192, 192, 192}, [3]uint8{r, g, b})
	r, g, b = img.Pixel(63, 0)
	assert.Equal(t, [3]uint8{16, 16, 16}, [3]uint8{r, g, b})

	// square of frame 0 starts at the left edge of the lower half
	r, g, b = img.Pixel(0, 22)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})

	// 2x2 blocks aligned on even pixels are uniform
	for y := 0; y < img.Height; y += 2 {
		for x := 0; x < img.Width; x += 2 {
			r, g, b := img.Pixel(x, y)
			for _, d := range [][2]int{{1, 0}, {0, 1}, {1, 1}} {
				r2, g2, b2 := img.Pixel(x+d[0], y+d[1])
				require.Equal(t, [3]uint8{r, g, b}, [3]uint8{r2, g2, b2}, "block at %d,%d", x, y)
			}
		}
	}
}

func TestPattern_Moves(t *testing.T) {
	a := Pattern(0, 64, 32)
	b := Pattern(1, 64, 32)
	assert.NotEqual(t, a.Pix, b.Pix)
	r, g, bl := b.Pixel(4, 22)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, bl})
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.lgv")
	opts := Options{Width: 16, Height: 8, Frames: 3, FrameRate: timebase.New(30, 1), Codec: "raw420", Audio: true}
	require.NoError(t, Write(lgv.Service{}, path, opts))

	d, err := lgv.Open(path)
	require.NoError(t, err)
	defer d.Close()

	streams := d.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, media.KindVideo, streams[0].Kind)
	assert.Equal(t, "raw420", streams[0].Codec)
	assert.Equal(t, 16, streams[0].Width)
	assert.Equal(t, timebase.New(30, 1), streams[0].FrameRate)
	assert.Equal(t, media.KindAudio, streams[1].Kind)

	var video, audio []int64
	for {
		p, err := d.ReadPacket()
		if errors.Is(err, media.ErrEOF) {
			break
		}
		require.NoError(t, err)
		if p.StreamIndex == 0 {
			video = append(video, p.PTS)
		} else {
			audio = append(audio, p.PTS)
		}
	}
	assert.Equal(t, []int64{0, 3000, 6000}, video)
	assert.Equal(t, []int64{0, 267, 534}, audio)
}

func TestWrite_BadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.lgv")
	err := Write(lgv.Service{}, path, Options{Width: 0, Height: 8, FrameRate: timebase.New(25, 1)})
	assert.ErrorIs(t, err, ErrOptions)
	err = Write(lgv.Service{}, path, Options{Width: 8, Height: 8})
	assert.ErrorIs(t, err, ErrOptions)
}
