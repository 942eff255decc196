// Package ffmpeg is the codec service backed by the FFmpeg libraries through
// go-astiav. It is compiled only with the ffmpeg build tag; without it New
// reports ErrNotCompiled.
package ffmpeg

import "errors"

var ErrNotCompiled = errors.New("ffmpeg: support not compiled, build with -tags ffmpeg")

// Name identifies the service.
const Name = "ffmpeg"
