//go:build !ffmpeg

package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NotCompiled(t *testing.T) {
	svc, err := New()
	assert.Nil(t, svc)
	assert.ErrorIs(t, err, ErrNotCompiled)
	assert.False(t, Available)
}
