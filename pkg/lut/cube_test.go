package lut

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	assert.Equal(t, 0, Index(4, 0, 0, 0))
	assert.Equal(t, 3, Index(4, 0, 0, 1))
	assert.Equal(t, 12, Index(4, 0, 1, 0))
	assert.Equal(t, 48, Index(4, 1, 0, 0))
	assert.Equal(t, Len(4)-3, Index(4, 3, 3, 3))
}

func TestCube_SetGet(t *testing.T) {
	c := NewCube(3)
	require.Len(t, c.Data, 81)
	c.Set(2, 1, 0, [3]float32{0.1, 0.2, 0.3})
	assert.Equal(t, [3]float32{0.1, 0.2, 0.3}, c.Get(2, 1, 0))
	assert.Equal(t, float32(0.1), c.Data[Index(3, 2, 1, 0)])
	require.NoError(t, c.Validate())
}

func TestIdentity(t *testing.T) {
	c := Identity(17)
	assert.True(t, c.IsIdentity(1e-6))
	assert.Equal(t, [3]float32{1, 0, 0.5}, c.Get(16, 0, 8))

	c.Set(0, 0, 0, [3]float32{0.2, 0, 0})
	assert.False(t, c.IsIdentity(1e-3))
}

func TestCube_Range(t *testing.T) {
	lo, hi := Identity(4).Range()
	assert.Equal(t, [3]float32{0, 0, 0}, lo)
	assert.Equal(t, [3]float32{1, 1, 1}, hi)
}

func TestCube_Fingerprint(t *testing.T) {
	a, b := Identity(3), Identity(3)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.Set(1, 1, 1, [3]float32{0, 0, 0})
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestGenerate_Presets(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			g, ok := Preset(name)
			require.True(t, ok)
			c, err := Generate(g, 9, name)
			require.NoError(t, err)
			require.NoError(t, c.Validate())
			lo, hi := c.Range()
			for ch := 0; ch < 3; ch++ {
				assert.GreaterOrEqual(t, lo[ch], float32(0))
				assert.LessOrEqual(t, hi[ch], float32(1))
			}
			assert.False(t, c.IsIdentity(1e-3))
		})
	}
}

func TestPreset_Fallback(t *testing.T) {
	g, ok := Preset("does-not-exist")
	assert.False(t, ok)
	cinematic, _ := Preset("cinematic")
	assert.Equal(t, cinematic, g)
}

func TestGradeConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultGrade().Validate())

	g := DefaultGrade()
	g.Gamma = 0.9
	g.Temperature = 100
	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGrade)
	assert.Contains(t, err.Error(), "gamma")
	assert.Contains(t, err.Error(), "temperature")

	_, err = Generate(g, 8, "bad")
	assert.ErrorIs(t, err, ErrInvalidGrade)

	_, err = Generate(DefaultGrade(), 1, "tiny")
	assert.ErrorIs(t, err, ErrMissingSize)
}

func TestLoadGrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "look.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contrast: 1.5\ntemperature: 4800\n"), 0644))

	g, err := LoadGrade(path, DefaultGrade())
	require.NoError(t, err)
	assert.Equal(t, 1.5, g.Contrast)
	assert.Equal(t, 4800.0, g.Temperature)
	assert.Equal(t, DefaultGrade().Gamma, g.Gamma)

	require.NoError(t, os.WriteFile(path, []byte("gamma: 3\n"), 0644))
	_, err = LoadGrade(path, DefaultGrade())
	assert.ErrorIs(t, err, ErrInvalidGrade)
}
