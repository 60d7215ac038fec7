package tensor

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func matMulTNaive(x, w []float32, rows, in, out int) []float32 {
	dst := make([]float32, rows*out)
	for n := 0; n < rows; n++ {
		for o := 0; o < out; o++ {
			var sum float32
			for i := 0; i < in; i++ {
				sum += x[n*in+i] * w[o*in+i]
			}
			dst[n*out+o] = sum
		}
	}
	return dst
}

func TestMatMulTMatchesNaive(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	for _, tc := range []struct{ rows, in, out int }{
		{1, 1, 1},
		{3, 5, 7},
		{7, 64, 300},
		{16, 96, 512},
	} {
		x := make([]float32, tc.rows*tc.in)
		w := make([]float32, tc.out*tc.in)
		FillNormal(x, rng, 0, 1)
		FillNormal(w, rng, 0, 1)
		want := matMulTNaive(x, w, tc.rows, tc.in, tc.out)
		got := make([]float32, tc.rows*tc.out)
		MatMulT(got, x, w, tc.rows, tc.in, tc.out)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%dx%dx%d: element %d: expected %v, got %v", tc.rows, tc.in, tc.out, i, want[i], got[i])
			}
		}
	}
}

func TestMatMulTShapePanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on short input")
		}
	}()
	MatMulT(make([]float32, 4), make([]float32, 1), make([]float32, 4), 2, 2, 2)
}

func TestLayerNorm(t *testing.T) {
	t.Parallel()
	src := []float32{1, 2, 3, 4}
	gamma := []float32{1, 1, 1, 1}
	beta := []float32{0, 0, 0, 0}
	dst := make([]float32, 4)
	LayerNorm(dst, src, gamma, beta, 1e-5)

	var mean, sq float64
	for _, v := range dst {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range dst {
		sq += (float64(v) - mean) * (float64(v) - mean)
	}
	if math.Abs(mean) > 1e-6 {
		t.Fatalf("expected zero mean, got %v", mean)
	}
	if math.Abs(sq/4-1) > 1e-4 {
		t.Fatalf("expected unit variance, got %v", sq/4)
	}

	// gamma and beta are applied after normalisation.
	LayerNorm(dst, src, []float32{2, 2, 2, 2}, []float32{1, 1, 1, 1}, 1e-5)
	if dst[0] >= 0 || dst[3] <= 2 {
		t.Fatalf("unexpected affine output %v", dst)
	}
}

func TestGELUTanh(t *testing.T) {
	t.Parallel()
	x := []float32{0, 1, -1, 3}
	GELUTanh(x)
	want := []float64{0, 0.8411920, -0.1588080, 2.9963627}
	for i := range want {
		if math.Abs(float64(x[i])-want[i]) > 1e-5 {
			t.Errorf("GELUTanh[%d]: expected %v, got %v", i, want[i], x[i])
		}
	}
}

func TestSoftmaxMaskedEntries(t *testing.T) {
	t.Parallel()
	x := []float32{1, float32(math.Inf(-1)), 1}
	Softmax(x)
	if x[1] != 0 {
		t.Fatalf("masked entry should be 0, got %v", x[1])
	}
	if math.Abs(float64(x[0])-0.5) > 1e-6 || math.Abs(float64(x[2])-0.5) > 1e-6 {
		t.Fatalf("unexpected softmax %v", x)
	}
}

func TestArgmaxFirstOnTies(t *testing.T) {
	t.Parallel()
	if got := Argmax([]float32{1, 5, 5, 2}); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestLogSumExp(t *testing.T) {
	t.Parallel()
	got := LogSumExp([]float32{0, 0})
	if math.Abs(got-math.Log(2)) > 1e-9 {
		t.Fatalf("expected log 2, got %v", got)
	}
}

func TestTranspose(t *testing.T) {
	t.Parallel()
	src := []float32{1, 2, 3, 4, 5, 6} // [2,3]
	got := Transpose(src, 2, 3)
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transpose: expected %v, got %v", want, got)
		}
	}
}

func TestFromDataShapeMismatch(t *testing.T) {
	t.Parallel()
	_, err := FromData(make([]float32, 5), 2, 3)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	tt, err := FromData(make([]float32, 6), 2, 3)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	if tt.Rows() != 2 || len(tt.Row(1)) != 3 {
		t.Fatalf("unexpected rows %d", tt.Rows())
	}
	if tt.Dim(-1) != 3 {
		t.Fatalf("expected last dim 3, got %d", tt.Dim(-1))
	}
}

func TestNumel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape   []int
		want    int
		wantErr bool
	}{
		{[]int{2, 3}, 6, false},
		{[]int{1, 7, 9}, 63, false},
		{[]int{0, 4}, 0, false},
		{[]int{}, 0, true},
		{[]int{-1}, 0, true},
	}
	for _, tc := range tests {
		n, err := Numel(tc.shape)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Numel(%v): expected error", tc.shape)
			}
			continue
		}
		if err != nil || n != tc.want {
			t.Errorf("Numel(%v): expected %d, got %d (%v)", tc.shape, tc.want, n, err)
		}
	}
}
