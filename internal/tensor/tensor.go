package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a dense row-major float32 array.
//
// Shape lists the dimensions from outermost to innermost. Data holds exactly
// Numel(Shape) values; the last dimension is contiguous.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor with the given shape.
func New(shape ...int) *Tensor {
	n := mustNumel(shape)
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, n),
	}
}

// FromData wraps data without copying. len(data) must match the shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n, err := Numel(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Numel returns the number of elements described by shape.
func Numel(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dim %d", ErrShapeMismatch, d)
		}
		if d != 0 && n > (int(^uint(0)>>1))/d {
			return 0, ErrTooLarge
		}
		n *= d
	}
	return n, nil
}

func mustNumel(shape []int) int {
	n, err := Numel(shape)
	if err != nil {
		panic(err)
	}
	return n
}

// Dim returns the size of dimension i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Reshape returns a view over the same data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	return FromData(t.Data, shape...)
}

// Row returns the contiguous innermost vector at flat row index i, treating
// the tensor as a matrix of [Numel/last, last].
func (t *Tensor) Row(i int) []float32 {
	c := t.Shape[len(t.Shape)-1]
	return t.Data[i*c : (i+1)*c]
}

// Rows is the number of innermost vectors.
func (t *Tensor) Rows() int {
	c := t.Shape[len(t.Shape)-1]
	if c == 0 {
		return 0
	}
	return len(t.Data) / c
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// FillNormal fills dst with samples from N(mean, std) drawn from rng.
func FillNormal(dst []float32, rng *rand.Rand, mean, std float64) {
	for i := range dst {
		dst[i] = float32(rng.NormFloat64()*std + mean)
	}
}

// Fill sets every element of dst to v.
func Fill(dst []float32, v float32) {
	for i := range dst {
		dst[i] = v
	}
}

var (
	ErrShapeMismatch = fmtError("tensor shape mismatch")
	ErrTooLarge      = fmtError("tensor too large")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
