package lut

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	ErrMissingSize        = errors.New("lut: missing or invalid LUT_3D_SIZE header")
	ErrMalformedEntry     = errors.New("lut: malformed entry")
	ErrSizeMismatch       = errors.New("lut: entry count does not match LUT_3D_SIZE")
	ErrUnsupportedDomain  = errors.New("lut: only a [0,1] input domain is supported")
	ErrUnsupportedLUTType = errors.New("lut: 1D LUTs are not supported")
)

// maxSize keeps a hostile header from triggering a huge allocation.
const maxSize = 256

// MismatchError reports a cube whose parsed element count differs from 3*N^3.
// Malformed holds the line numbers of data lines that were skipped.
type MismatchError struct {
	Size      int
	Want, Got int
	Malformed []int
}

func (e *MismatchError) Error() string {
	msg := fmt.Sprintf("lut: LUT_3D_SIZE %d expects %d values, parsed %d", e.Size, e.Want, e.Got)
	if len(e.Malformed) > 0 {
		msg += fmt.Sprintf(" (%d malformed lines skipped, first at line %d)", len(e.Malformed), e.Malformed[0])
	}
	return msg
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrSizeMismatch || (target == ErrMalformedEntry && len(e.Malformed) > 0)
}

// Load reads and validates a .cube file.
func Load(path string) (*Cube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open LUT: %w", err)
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse reads a .cube description. Comment ('#') and blank lines are ignored
// anywhere. Data lines that are not three floats are skipped and logged; the
// final count check turns any shortfall into a *MismatchError.
func Parse(r io.Reader) (*Cube, error) {
	var (
		c         = &Cube{}
		data      []float32
		malformed []int
		lineNo    int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "TITLE":
			c.Title = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "TITLE")), `"`)
			continue
		case "LUT_3D_SIZE":
			if c.Size > 0 || len(data) > 0 {
				return nil, fmt.Errorf("line %d: duplicate or late size header: %w", lineNo, ErrMissingSize)
			}
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: %w", lineNo, ErrMissingSize)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n <= 0 || n > maxSize {
				return nil, fmt.Errorf("line %d: size %q: %w", lineNo, fields[1], ErrMissingSize)
			}
			c.Size = n
			data = make([]float32, 0, Len(n))
			continue
		case "LUT_1D_SIZE":
			return nil, fmt.Errorf("line %d: %w", lineNo, ErrUnsupportedLUTType)
		case "DOMAIN_MIN", "DOMAIN_MAX":
			want := 0.0
			if fields[0] == "DOMAIN_MAX" {
				want = 1.0
			}
			v, ok := parseTriple(fields[1:])
			if !ok || v[0] != float32(want) || v[1] != float32(want) || v[2] != float32(want) {
				return nil, fmt.Errorf("line %d: %s: %w", lineNo, line, ErrUnsupportedDomain)
			}
			continue
		}
		if c.Size == 0 {
			return nil, fmt.Errorf("line %d: data before header: %w", lineNo, ErrMissingSize)
		}
		v, ok := parseTriple(fields)
		if !ok {
			slog.Warn("skipping malformed LUT entry", "line", lineNo, "text", line, "error", ErrMalformedEntry)
			malformed = append(malformed, lineNo)
			continue
		}
		data = append(data, v[0], v[1], v[2])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read LUT: %w", err)
	}
	if c.Size == 0 {
		return nil, ErrMissingSize
	}
	if len(data) != Len(c.Size) {
		return nil, &MismatchError{Size: c.Size, Want: Len(c.Size), Got: len(data), Malformed: malformed}
	}
	c.Data = data
	slog.Debug("loaded LUT",
		slog.Int("size", c.Size),
		slog.String("title", c.Title),
		slog.Int("skipped", len(malformed)))
	return c, nil
}

func parseTriple(fields []string) ([3]float32, bool) {
	var v [3]float32
	if len(fields) != 3 {
		return v, false
	}
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return v, false
		}
		v[i] = float32(x)
	}
	return v, true
}

// Write emits c in .cube format, one triple per line in flat order.
func Write(w io.Writer, c *Cube) error {
	if err := c.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if c.Title != "" {
		fmt.Fprintf(bw, "TITLE %q\n", c.Title)
	}
	fmt.Fprintf(bw, "LUT_3D_SIZE %d\n\n", c.Size)
	for i := 0; i < len(c.Data); i += 3 {
		fmt.Fprintf(bw, "%.6f %.6f %.6f\n", c.Data[i], c.Data[i+1], c.Data[i+2])
	}
	return bw.Flush()
}

// Save writes c to path.
func Save(path string, c *Cube) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create LUT: %w", err)
	}
	if err := Write(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
