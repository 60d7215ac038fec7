package parity

import (
	"fmt"
	"math"
	"slices"

	"github.com/samcharles93/mingpt/internal/tensor"
)

// Tolerance is an element-wise closeness bound: |a-b| <= ATol + RTol*|b|.
type Tolerance struct {
	RTol float64 `json:"rtol"`
	ATol float64 `json:"atol"`
}

// DefaultTolerance matches torch.allclose.
var DefaultTolerance = Tolerance{RTol: 1e-5, ATol: 1e-8}

// Diff summarises how far two tensors are apart.
type Diff struct {
	MaxAbs float64 `json:"max_abs"`
	MaxRel float64 `json:"max_rel"`
	// FirstViolation is the flat index of the first element outside the
	// tolerance, or -1.
	FirstViolation int  `json:"first_violation"`
	Violations     int  `json:"violations"`
	Elements       int  `json:"elements"`
	NonFinite      bool `json:"non_finite,omitempty"`
}

// AllClose compares a against the reference b. Shapes must match exactly.
// A NaN on either side is never close; equal infinities are.
func AllClose(a, b *tensor.Tensor, tol Tolerance) (Diff, bool) {
	d := Diff{FirstViolation: -1}
	if a == nil || b == nil || !slices.Equal(a.Shape, b.Shape) || len(a.Data) != len(b.Data) {
		return d, false
	}
	d.Elements = len(a.Data)
	for i := range a.Data {
		x, y := float64(a.Data[i]), float64(b.Data[i])
		if x == y {
			continue
		}
		abs := math.Abs(x - y)
		if !(abs <= tol.ATol+tol.RTol*math.Abs(y)) {
			if d.FirstViolation < 0 {
				d.FirstViolation = i
			}
			d.Violations++
		}
		if math.IsNaN(abs) || math.IsInf(abs, 0) {
			d.NonFinite = true
			continue
		}
		if abs > d.MaxAbs {
			d.MaxAbs = abs
		}
		if y != 0 {
			if rel := abs / math.Abs(y); rel > d.MaxRel {
				d.MaxRel = rel
			}
		}
	}
	return d, d.Violations == 0
}

func (d Diff) String() string {
	s := fmt.Sprintf("max abs %.3g, max rel %.3g, %d/%d elements outside tolerance",
		d.MaxAbs, d.MaxRel, d.Violations, d.Elements)
	if d.NonFinite {
		s += ", non-finite values present"
	}
	return s
}

// EqualTokens reports whether two batches hold the same ids. On a mismatch
// it returns the first differing position within the first differing row,
// or the shorter length when one row is a prefix of the other.
func EqualTokens(a, b [][]int) (int, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	for r := range a {
		n := min(len(a[r]), len(b[r]))
		for i := 0; i < n; i++ {
			if a[r][i] != b[r][i] {
				return i, false
			}
		}
		if len(a[r]) != len(b[r]) {
			return n, false
		}
	}
	return -1, true
}
