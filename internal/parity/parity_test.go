package parity

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samcharles93/mingpt/internal/gpt"
	"github.com/samcharles93/mingpt/internal/hfgpt2"
	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/safetensors"
	"github.com/samcharles93/mingpt/internal/tensor"
	"github.com/samcharles93/mingpt/internal/tokenizer"
)

func mustTensor(t *testing.T, data []float32, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromData(data, shape...)
	if err != nil {
		t.Fatal(err)
	}
	return x
}

func TestAllClose(t *testing.T) {
	t.Parallel()
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name      string
		a, b      []float32
		tol       Tolerance
		want      bool
		violation int
	}{
		{"identical", []float32{1, -2, 3}, []float32{1, -2, 3}, DefaultTolerance, true, -1},
		{"within rtol", []float32{100.0005}, []float32{100}, DefaultTolerance, true, -1},
		{"outside rtol", []float32{100.01}, []float32{100}, DefaultTolerance, false, 0},
		{"atol near zero", []float32{1e-9}, []float32{0}, DefaultTolerance, true, -1},
		{"outside atol", []float32{0, 1e-6}, []float32{0, 0}, DefaultTolerance, false, 1},
		{"nan", []float32{nan}, []float32{nan}, DefaultTolerance, false, 0},
		{"equal inf", []float32{inf}, []float32{inf}, DefaultTolerance, true, -1},
		{"loose", []float32{1.1}, []float32{1}, Tolerance{RTol: 0.2}, true, -1},
	}
	for _, tt := range tests {
		a := mustTensor(t, tt.a, len(tt.a))
		b := mustTensor(t, tt.b, len(tt.b))
		d, ok := AllClose(a, b, tt.tol)
		if ok != tt.want {
			t.Fatalf("%s: expected %v, got %v (%s)", tt.name, tt.want, ok, d)
		}
		if d.FirstViolation != tt.violation {
			t.Fatalf("%s: expected first violation %d, got %d", tt.name, tt.violation, d.FirstViolation)
		}
	}
}

func TestAllCloseShapeMismatch(t *testing.T) {
	t.Parallel()
	a := mustTensor(t, []float32{1, 2}, 2)
	b := mustTensor(t, []float32{1, 2}, 1, 2)
	if _, ok := AllClose(a, b, DefaultTolerance); ok {
		t.Fatal("expected shape mismatch to fail")
	}
	if _, ok := AllClose(nil, b, DefaultTolerance); ok {
		t.Fatal("expected nil tensor to fail")
	}
}

func TestEqualTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b [][]int
		pos  int
		ok   bool
	}{
		{"equal", [][]int{{1, 2, 3}}, [][]int{{1, 2, 3}}, -1, true},
		{"differ", [][]int{{1, 2, 3}}, [][]int{{1, 5, 3}}, 1, false},
		{"prefix", [][]int{{1, 2}}, [][]int{{1, 2, 3}}, 2, false},
		{"batch size", [][]int{{1}}, [][]int{{1}, {1}}, 0, false},
	}
	for _, tt := range tests {
		pos, ok := EqualTokens(tt.a, tt.b)
		if pos != tt.pos || ok != tt.ok {
			t.Fatalf("%s: expected (%d, %v), got (%d, %v)", tt.name, tt.pos, tt.ok, pos, ok)
		}
	}
}

// fakeModel returns fixed logits and a fixed continuation.
type fakeModel struct {
	name   string
	logits []float32
	next   []int
}

func (f fakeModel) Name() string { return f.name }

func (f fakeModel) Logits(_ context.Context, ids [][]int) (*tensor.Tensor, error) {
	v := len(f.logits) / len(ids[0])
	return tensor.FromData(append([]float32(nil), f.logits...), 1, len(ids[0]), v)
}

func (f fakeModel) Greedy(_ context.Context, ids [][]int, steps int) ([][]int, error) {
	return [][]int{append(append([]int(nil), ids[0]...), f.next[:steps]...)}, nil
}

func TestHarnessReportsMismatches(t *testing.T) {
	t.Parallel()
	tok := tokenizer.NewByteLevel()
	logits := []float32{1, 2, 3, 4}
	tests := []struct {
		name      string
		cand, ref fakeModel
		want      error
	}{
		{
			"match",
			fakeModel{"a", logits, []int{'x', 'y'}},
			fakeModel{"b", logits, []int{'x', 'y'}},
			nil,
		},
		{
			"logits",
			fakeModel{"a", []float32{1, 2, 3, 5}, []int{'x', 'y'}},
			fakeModel{"b", logits, []int{'x', 'y'}},
			ErrLogitsMismatch,
		},
		{
			"tokens",
			fakeModel{"a", logits, []int{'x', 'y'}},
			fakeModel{"b", logits, []int{'x', 'z'}},
			ErrTokensMismatch,
		},
	}
	for _, tt := range tests {
		h := &Harness{Candidate: tt.cand, Reference: tt.ref, Tokenizer: tok, Steps: 2, Log: logger.Discard()}
		rep, err := h.Run(context.Background(), "ab")
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
		if rep == nil {
			t.Fatalf("%s: expected a report", tt.name)
		}
		if rep.OK != (tt.want == nil) {
			t.Fatalf("%s: expected ok=%v, got %v", tt.name, tt.want == nil, rep.OK)
		}
		if got := Outcome(err); (got == "ok") != (tt.want == nil) {
			t.Fatalf("%s: unexpected outcome %q", tt.name, got)
		}
		if rep.ID == "" || rep.Steps != 2 || rep.Tolerance != DefaultTolerance {
			t.Fatalf("%s: incomplete report %+v", tt.name, rep)
		}
	}
}

func TestHarnessZeroToleranceIsExact(t *testing.T) {
	t.Parallel()
	tok := tokenizer.NewByteLevel()
	cand := fakeModel{"a", []float32{100.0005, 2, 3, 4}, []int{'x'}}
	ref := fakeModel{"b", []float32{100, 2, 3, 4}, []int{'x'}}

	h := &Harness{Candidate: cand, Reference: ref, Tokenizer: tok, Steps: 1, Log: logger.Discard()}
	rep, err := h.Run(context.Background(), "ab")
	if err != nil {
		t.Fatalf("expected the default tolerance to accept the difference, got %v", err)
	}
	if rep.Tolerance != DefaultTolerance {
		t.Fatalf("expected %+v, got %+v", DefaultTolerance, rep.Tolerance)
	}

	h.Tolerance = &Tolerance{}
	rep, err = h.Run(context.Background(), "ab")
	if !errors.Is(err, ErrLogitsMismatch) {
		t.Fatalf("expected ErrLogitsMismatch with zero tolerance, got %v", err)
	}
	if rep.Tolerance != (Tolerance{}) || rep.OK {
		t.Fatalf("expected an exact failing comparison, got tolerance %+v ok=%v", rep.Tolerance, rep.OK)
	}
}

func TestHarnessEmptyPromptUsesEndOfText(t *testing.T) {
	t.Parallel()
	tok := tokenizer.NewByteLevel()
	m := fakeModel{"a", make([]float32, 7), []int{'o', 'k'}}
	h := &Harness{Candidate: m, Reference: m, Tokenizer: tok, Steps: 2, Log: logger.Discard()}
	rep, err := h.Run(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.InputIDs) != 1 || rep.InputIDs[0] != tok.EOT() {
		t.Fatalf("expected [%d], got %v", tok.EOT(), rep.InputIDs)
	}
	if rep.CandidateText != tokenizer.EndOfText+"ok" {
		t.Fatalf("unexpected text %q", rep.CandidateText)
	}
}

// nanoPair exports a random gpt-nano model and loads it into both
// implementations.
func nanoPair(t *testing.T, seed int64) (*gpt.GPT, *hfgpt2.Model, uint64) {
	t.Helper()
	m, err := gpt.New(gpt.Config{ModelType: "gpt-nano", VocabSize: 257, BlockSize: 128}, seed)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := m.SaveHF(dir); err != nil {
		t.Fatal(err)
	}
	ref, err := hfgpt2.FromPretrained(dir)
	if err != nil {
		t.Fatal(err)
	}
	sf, err := safetensors.Open(filepath.Join(dir, hfgpt2.WeightsFile))
	if err != nil {
		t.Fatal(err)
	}
	defer sf.Close()
	fp, err := sf.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	return m, ref, fp
}

func TestNanoParity(t *testing.T) {
	t.Parallel()
	cand, ref, fp := nanoPair(t, 1337)
	h := &Harness{
		Candidate: FromGPT(cand),
		Reference: FromHF(ref),
		Tokenizer: tokenizer.NewByteLevel(),
		// random-init logits sit close to zero, where the default absolute
		// tolerance is below float32 rounding between the two kernels
		Tolerance:   &Tolerance{RTol: 1e-4, ATol: 1e-5},
		Fingerprint: fp,
		Log:         logger.Discard(),
	}
	for _, prompt := range []string{"Hello, my dog is a little", "", "a", "Go is expressive, concise, clean, and efficient."} {
		rep, err := h.Run(context.Background(), prompt)
		if err != nil {
			t.Fatalf("prompt %q: %v", prompt, err)
		}
		if len(rep.CandidateTokens) != len(rep.InputIDs)+DefaultSteps {
			t.Fatalf("prompt %q: expected %d tokens, got %d", prompt, len(rep.InputIDs)+DefaultSteps, len(rep.CandidateTokens))
		}
		if rep.Fingerprint == "" {
			t.Fatal("expected the fingerprint in the report")
		}
	}
}

func TestNanoParityDetectsPerturbation(t *testing.T) {
	t.Parallel()
	cand, ref, _ := nanoPair(t, 7)
	cand.Blocks[0].MLP.CFc.B[0] += 0.5
	h := &Harness{
		Candidate: FromGPT(cand),
		Reference: FromHF(ref),
		Tokenizer: tokenizer.NewByteLevel(),
		Tolerance: &Tolerance{RTol: 1e-4, ATol: 1e-5},
		Log:       logger.Discard(),
	}
	rep, err := h.Run(context.Background(), "perturbed")
	if !errors.Is(err, ErrLogitsMismatch) {
		t.Fatalf("expected ErrLogitsMismatch, got %v", err)
	}
	if rep.Logits.Violations == 0 {
		t.Fatal("expected violations in the report")
	}
}

// TestGPT2Parity checks the published gpt2 checkpoint. Set MINGPT_GPT2_DIR to
// a directory holding config.json, model.safetensors, vocab.json and
// merges.txt.
func TestGPT2Parity(t *testing.T) {
	dir := os.Getenv("MINGPT_GPT2_DIR")
	if dir == "" {
		t.Skip("MINGPT_GPT2_DIR not set")
	}
	cand, err := gpt.FromPretrained(dir, "gpt2")
	if err != nil {
		t.Fatal(err)
	}
	ref, err := hfgpt2.FromPretrained(dir)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := tokenizer.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	h := &Harness{
		Candidate: FromGPT(cand),
		Reference: FromHF(ref),
		Tokenizer: tok,
		Log:       logger.Discard(),
	}
	rep, err := h.Run(context.Background(), "Hello, my dog is a little")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{15496, 11, 616, 3290, 318, 257, 1310}
	for i, id := range want {
		if rep.InputIDs[i] != id {
			t.Fatalf("expected prompt ids %v, got %v", want, rep.InputIDs)
		}
	}
	t.Logf("%s", rep.CandidateText)

	for _, prompt := range []string{"", "The quick brown fox", "  leading spaces\nand a newline"} {
		if _, err := h.Run(context.Background(), prompt); err != nil {
			t.Fatalf("prompt %q: %v", prompt, err)
		}
	}
}

func TestDivergenceIdentical(t *testing.T) {
	t.Parallel()

	a := mustTensor(t, []float32{1, 3, 2, 0, -1, 4, 0.5, 0.25}, 2, 4)
	d, ok := Diverge(a, a.Clone())
	if !ok {
		t.Fatal("expected divergence to be computed")
	}
	if d.Rows != 2 || d.RMSE != 0 || d.MeanAbs != 0 {
		t.Fatalf("expected zero error over 2 rows, got %+v", d)
	}
	if math.Abs(d.MinCosine-1) > 1e-12 || d.Top1Agreement != 1 || d.TopKOverlap != 1 || d.FirstTop1Miss != -1 {
		t.Fatalf("expected full agreement, got %+v", d)
	}
}

func TestDivergenceTop1Miss(t *testing.T) {
	t.Parallel()

	a := mustTensor(t, []float32{1, 3, 2, 0, 4, 1, 0, 0}, 2, 4)
	b := mustTensor(t, []float32{1, 3, 2, 0, 1, 4, 0, 0}, 2, 4)
	d, ok := Diverge(a, b)
	if !ok {
		t.Fatal("expected divergence to be computed")
	}
	if d.Top1Agreement != 0.5 {
		t.Fatalf("expected top-1 agreement 0.5, got %v", d.Top1Agreement)
	}
	if d.FirstTop1Miss != 1 {
		t.Fatalf("expected first miss at row 1, got %d", d.FirstTop1Miss)
	}
	// Both rows have 4 ids, so the top-5 sets are the whole vocabulary.
	if d.TopKOverlap != 1 {
		t.Fatalf("expected full top-k overlap, got %v", d.TopKOverlap)
	}
	if d.MinCosine >= 1 {
		t.Fatalf("expected cosine below 1, got %v", d.MinCosine)
	}
}

func TestDivergenceRejects(t *testing.T) {
	t.Parallel()

	a := mustTensor(t, []float32{1, 2, 3, 4}, 2, 2)
	if _, ok := Diverge(a, mustTensor(t, []float32{1, 2, 3, 4}, 1, 4)); ok {
		t.Fatal("expected vocab mismatch to be rejected")
	}
	nan := mustTensor(t, []float32{1, float32(math.NaN()), 3, 4}, 2, 2)
	if _, ok := Diverge(a, nan); ok {
		t.Fatal("expected NaN to be rejected")
	}
	if _, ok := Diverge(nil, a); ok {
		t.Fatal("expected nil to be rejected")
	}
}

func TestTopKIndices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		vals []float32
		k    int
		want []int
	}{
		{[]float32{0.1, 0.9, 0.5, 0.7}, 2, []int{1, 3}},
		{[]float32{3, 3, 1}, 2, []int{0, 1}},
		{[]float32{1, 2}, 5, []int{1, 0}},
		{[]float32{1, 2}, 0, nil},
	}
	for _, tt := range tests {
		if got := topKIndices(tt.vals, tt.k); !slices.Equal(got, tt.want) {
			t.Fatalf("topKIndices(%v, %d): expected %v, got %v", tt.vals, tt.k, tt.want, got)
		}
	}
}
