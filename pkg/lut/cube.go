package lut

import (
	"fmt"
	"math"

	"github.com/jpfielding/lutgrade.go/pkg/util"
)

// Cube is an immutable-after-load 3D colour lattice of Size^3 RGB triples.
// Data is laid out flat in file order and addressed through Index.
type Cube struct {
	Title string
	Size  int
	Data  []float32
}

// NewCube allocates a zeroed cube with n lattice points per axis.
func NewCube(n int) *Cube {
	return &Cube{
		Size: n,
		Data: make([]float32, 3*n*n*n),
	}
}

// Identity returns a cube mapping every lattice coordinate onto itself.
func Identity(n int) *Cube {
	c := NewCube(n)
	c.Title = fmt.Sprintf("identity %d", n)
	scale := float32(max(n-1, 1))
	for r := 0; r < n; r++ {
		for g := 0; g < n; g++ {
			for b := 0; b < n; b++ {
				c.Set(r, g, b, [3]float32{float32(r) / scale, float32(g) / scale, float32(b) / scale})
			}
		}
	}
	return c
}

// Index returns the flat offset of lattice point (r,g,b) in a cube of size n.
func Index(n, r, g, b int) int {
	return ((r*n+g)*n + b) * 3
}

// Len is the number of float components a cube of size n must hold.
func Len(n int) int {
	return 3 * n * n * n
}

// Get returns the output triple at lattice point (r,g,b).
func (c *Cube) Get(r, g, b int) [3]float32 {
	i := Index(c.Size, r, g, b)
	return [3]float32{c.Data[i], c.Data[i+1], c.Data[i+2]}
}

// Set stores the output triple at lattice point (r,g,b).
func (c *Cube) Set(r, g, b int, v [3]float32) {
	i := Index(c.Size, r, g, b)
	c.Data[i], c.Data[i+1], c.Data[i+2] = v[0], v[1], v[2]
}

// Validate checks the element count invariant.
func (c *Cube) Validate() error {
	if c.Size <= 0 {
		return ErrMissingSize
	}
	if len(c.Data) != Len(c.Size) {
		return &MismatchError{Size: c.Size, Want: Len(c.Size), Got: len(c.Data)}
	}
	return nil
}

// Fingerprint is a stable identifier for the cube contents.
func (c *Cube) Fingerprint() string {
	return util.HashUUID(struct {
		Size int
		Data []float32
	}{c.Size, c.Data})
}

// IsIdentity reports whether every lattice point maps onto itself within tol.
func (c *Cube) IsIdentity(tol float64) bool {
	scale := float64(max(c.Size-1, 1))
	for r := 0; r < c.Size; r++ {
		for g := 0; g < c.Size; g++ {
			for b := 0; b < c.Size; b++ {
				v := c.Get(r, g, b)
				if math.Abs(float64(v[0])-float64(r)/scale) > tol ||
					math.Abs(float64(v[1])-float64(g)/scale) > tol ||
					math.Abs(float64(v[2])-float64(b)/scale) > tol {
					return false
				}
			}
		}
	}
	return true
}

// Range returns the per-channel minimum and maximum output values.
func (c *Cube) Range() (lo, hi [3]float32) {
	if len(c.Data) < 3 {
		return lo, hi
	}
	for ch := 0; ch < 3; ch++ {
		lo[ch], hi[ch] = c.Data[ch], c.Data[ch]
	}
	for i := 0; i+2 < len(c.Data); i += 3 {
		for ch := 0; ch < 3; ch++ {
			v := c.Data[i+ch]
			lo[ch] = min(lo[ch], v)
			hi[ch] = max(hi[ch], v)
		}
	}
	return lo, hi
}
