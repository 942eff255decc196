//go:build !ffmpeg

package ffmpeg

import "github.com/jpfielding/lutgrade.go/pkg/media"

// Available reports whether the FFmpeg service was compiled in.
const Available = false

// New returns ErrNotCompiled. This is the build without the ffmpeg tag.
func New() (media.Service, error) {
	return nil, ErrNotCompiled
}
