package lut

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultGenerateSize is the lattice resolution used by the generator.
const DefaultGenerateSize = 32

var ErrInvalidGrade = errors.New("lut: grade parameter out of range")

// GradeConfig holds the colour grading parameters a generated cube encodes.
type GradeConfig struct {
	Brightness       float64 `yaml:"brightness" json:"brightness"`
	Contrast         float64 `yaml:"contrast" json:"contrast"`
	Saturation       float64 `yaml:"saturation" json:"saturation"`
	Temperature      float64 `yaml:"temperature" json:"temperature"` // Kelvin
	Tint             float64 `yaml:"tint" json:"tint"`
	HighlightRolloff float64 `yaml:"highlight_rolloff" json:"highlight_rolloff"`
	ShadowLift       float64 `yaml:"shadow_lift" json:"shadow_lift"`
	BlackPoint       float64 `yaml:"black_point" json:"black_point"`
	HighlightWarmth  float64 `yaml:"highlight_warmth" json:"highlight_warmth"`
	ShadowCoolness   float64 `yaml:"shadow_coolness" json:"shadow_coolness"`
	MidtoneContrast  float64 `yaml:"midtone_contrast" json:"midtone_contrast"`
	Gamma            float64 `yaml:"gamma" json:"gamma"`
}

// DefaultGrade mirrors the neutral-ish defaults of the grading model.
func DefaultGrade() GradeConfig {
	return GradeConfig{
		Brightness:       1.0,
		Contrast:         1.3,
		Saturation:       1.1,
		Temperature:      5500,
		Tint:             0.0,
		HighlightRolloff: 0.7,
		ShadowLift:       0.02,
		BlackPoint:       0.002,
		HighlightWarmth:  1.05,
		ShadowCoolness:   0.95,
		MidtoneContrast:  1.2,
		Gamma:            0.42,
	}
}

var presets = map[string]GradeConfig{
	"cinematic": {
		Brightness:       1.1,
		Contrast:         1.3,
		Saturation:       1.1,
		Temperature:      5600,
		Tint:             0.0,
		HighlightRolloff: 0.7,
		ShadowLift:       0.02,
		BlackPoint:       0.002,
		HighlightWarmth:  1.05,
		ShadowCoolness:   0.95,
		MidtoneContrast:  1.2,
		Gamma:            0.42,
	},
	"warm_vintage": {
		Brightness:       1.05,
		Contrast:         1.4,
		Saturation:       0.9,
		Temperature:      5000,
		Tint:             0.1,
		HighlightRolloff: 0.8,
		ShadowLift:       0.03,
		BlackPoint:       0.005,
		HighlightWarmth:  1.1,
		ShadowCoolness:   0.9,
		MidtoneContrast:  1.3,
		Gamma:            0.45,
	},
}

// Preset returns a named grade. Unknown names fall back to "cinematic".
func Preset(name string) (GradeConfig, bool) {
	g, ok := presets[name]
	if !ok {
		return presets["cinematic"], false
	}
	return g, true
}

// PresetNames lists the built-in grades.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LoadGrade reads a YAML grade. Fields left out keep the values of base.
func LoadGrade(path string, base GradeConfig) (GradeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read grade: %w", err)
	}
	g := base
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return base, fmt.Errorf("failed to parse grade %s: %w", path, err)
	}
	return g, g.Validate()
}

type bound struct {
	name   string
	v      float64
	lo, hi float64
}

// Validate enforces the supported parameter ranges.
func (g GradeConfig) Validate() error {
	var errs []error
	for _, b := range []bound{
		{"brightness", g.Brightness, 0.5, 2.0},
		{"contrast", g.Contrast, 0.8, 2.0},
		{"saturation", g.Saturation, 0.0, 2.0},
		{"temperature", g.Temperature, 3200, 7500},
		{"tint", g.Tint, -1.0, 1.0},
		{"highlight_rolloff", g.HighlightRolloff, 0.5, 1.0},
		{"shadow_lift", g.ShadowLift, 0.0, 0.1},
		{"black_point", g.BlackPoint, 0.0, 0.02},
		{"highlight_warmth", g.HighlightWarmth, 1.0, 1.2},
		{"shadow_coolness", g.ShadowCoolness, 0.8, 1.0},
		{"midtone_contrast", g.MidtoneContrast, 1.0, 1.5},
		{"gamma", g.Gamma, 0.3, 0.6},
	} {
		if b.v < b.lo || b.v > b.hi || math.IsNaN(b.v) {
			errs = append(errs, fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrInvalidGrade, b.name, b.v, b.lo, b.hi))
		}
	}
	return errors.Join(errs...)
}

// Generate bakes g into a cube of n points per axis.
func Generate(g GradeConfig, n int, title string) (*Cube, error) {
	if n < 2 || n > maxSize {
		return nil, fmt.Errorf("%w: generator size %d", ErrMissingSize, n)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	c := NewCube(n)
	c.Title = title
	scale := float64(n - 1)
	for r := 0; r < n; r++ {
		for gi := 0; gi < n; gi++ {
			for b := 0; b < n; b++ {
				rgb := [3]float64{float64(r) / scale, float64(gi) / scale, float64(b) / scale}
				out := g.toDisplay(g.enhance(toLinear(rgb)))
				c.Set(r, gi, b, [3]float32{
					float32(clamp01(out[0])),
					float32(clamp01(out[1])),
					float32(clamp01(out[2])),
				})
			}
		}
	}
	return c, nil
}

func toLinear(rgb [3]float64) [3]float64 {
	for i := range rgb {
		rgb[i] = math.Pow(rgb[i], 2.4)
	}
	return rgb
}

func (g GradeConfig) toDisplay(rgb [3]float64) [3]float64 {
	for i, x := range rgb {
		x = math.Max(0, x*g.Brightness)
		x = math.Max(0, math.Pow(x, g.Contrast))
		rgb[i] = math.Max(0, math.Pow(x, g.Gamma))
	}
	return rgb
}

func (g GradeConfig) enhance(rgb [3]float64) [3]float64 {
	lum := math.Max(0, 0.2126*rgb[0]+0.7152*rgb[1]+0.0722*rgb[2])

	highlight := 1.0 - (1.0-g.HighlightRolloff)*lum
	shadow := g.ShadowLift * (1.0 - lum)
	for i := range rgb {
		rgb[i] = math.Max(0, rgb[i]*highlight)
		rgb[i] = math.Max(0, rgb[i]+shadow)
		rgb[i] = math.Max(rgb[i], g.BlackPoint)
	}

	// temperature is normalised around 5500K
	temp := (g.Temperature - 5500) / 1000
	rgb[0] = math.Max(0, rgb[0]*(1+0.1*temp))
	rgb[2] = math.Max(0, rgb[2]*(1-0.1*temp))

	if g.Saturation != 1.0 {
		if sum := rgb[0] + rgb[1] + rgb[2]; sum > 0 {
			for i := range rgb {
				rgb[i] = math.Max(0, ((rgb[i]/sum)*g.Saturation+(1-g.Saturation)/3)*sum)
			}
		}
	}

	if lum > 0.5 {
		f := (lum - 0.5) * 2 * (g.HighlightWarmth - 1.0)
		rgb[0] = math.Max(0, rgb[0]*(1+f))
		rgb[2] = math.Max(0, rgb[2]*(1-f))
	} else {
		f := (0.5 - lum) * 2 * (1.0 - g.ShadowCoolness)
		rgb[0] = math.Max(0, rgb[0]*(1-f))
		rgb[2] = math.Max(0, rgb[2]*(1+f))
	}
	return rgb
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
