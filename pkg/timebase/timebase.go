// Package timebase rescales media timestamps between rational time units.
package timebase

import (
	"fmt"
	"math"
	"math/big"
)

// NoPTS marks an unknown timestamp. It matches the FFmpeg sentinel so values
// cross the codec boundary unchanged.
const NoPTS int64 = math.MinInt64

// Rational is a time unit of Num/Den seconds.
type Rational struct {
	Num int
	Den int
}

// New returns num/den.
func New(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

// Valid reports whether r can be used as a timebase.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Invert returns den/num, turning a frame rate into a timebase and back.
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Float returns r as seconds.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Rescale converts ts from one timebase to another: ts*from/to, rounded to
// the nearest integer with halves away from zero. NoPTS passes through and
// invalid timebases leave ts untouched.
func Rescale(ts int64, from, to Rational) int64 {
	if ts == NoPTS || !from.Valid() || !to.Valid() || from == to {
		return ts
	}
	// ts * from.Num * to.Den / (from.Den * to.Num)
	num := big.NewInt(ts)
	num.Mul(num, big.NewInt(int64(from.Num)))
	num.Mul(num, big.NewInt(int64(to.Den)))
	den := big.NewInt(int64(from.Den))
	den.Mul(den, big.NewInt(int64(to.Num)))

	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	// |2m| >= den rounds away from zero
	m.Abs(m).Lsh(m, 1)
	if m.Cmp(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	if !q.IsInt64() {
		if q.Sign() < 0 {
			return math.MinInt64 + 1
		}
		return math.MaxInt64
	}
	return q.Int64()
}

// Duration returns the length of one tick of tb expressed in to units.
func Duration(tb, to Rational) int64 {
	return Rescale(1, tb, to)
}
