package gpt

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/mingpt/internal/tensor"
)

var (
	ErrSequenceTooLong = errors.New("sequence longer than block size")
	ErrTokenOutOfRange = errors.New("token id out of range")
	ErrRaggedBatch     = errors.New("batch rows differ in length")
)

// IgnoreIndex marks target positions that do not contribute to the loss.
const IgnoreIndex = -1

// Forward runs the model over a batch of equal-length token sequences and
// returns logits shaped [B, T, VocabSize]. When targets is non-nil the mean
// cross-entropy over all positions whose target is not IgnoreIndex is
// returned as well; otherwise the loss is NaN.
func (m *GPT) Forward(idx [][]int, targets [][]int) (*tensor.Tensor, float32, error) {
	b, t, err := m.checkBatch(idx)
	if err != nil {
		return nil, 0, err
	}
	v := m.cfg.VocabSize
	logits := tensor.New(b, t, v)
	for i, seq := range idx {
		h := m.hidden(seq)
		m.LMHead.Forward(logits.Data[i*t*v:(i+1)*t*v], h, t)
	}

	loss := float32(math.NaN())
	if targets != nil {
		loss, err = crossEntropy(logits, targets)
		if err != nil {
			return nil, 0, err
		}
	}
	return logits, loss, nil
}

// lastLogits returns the [B, VocabSize] logits of the final position only.
// Each row equals the last row Forward would produce.
func (m *GPT) lastLogits(idx [][]int) (*tensor.Tensor, error) {
	b, t, err := m.checkBatch(idx)
	if err != nil {
		return nil, err
	}
	c, v := m.cfg.NEmbd, m.cfg.VocabSize
	out := tensor.New(b, v)
	for i, seq := range idx {
		h := m.hidden(seq)
		m.LMHead.Forward(out.Row(i), h[(t-1)*c:t*c], 1)
	}
	return out, nil
}

func (m *GPT) checkBatch(idx [][]int) (int, int, error) {
	if len(idx) == 0 || len(idx[0]) == 0 {
		return 0, 0, fmt.Errorf("%w: empty input", tensor.ErrShapeMismatch)
	}
	t := len(idx[0])
	if t > m.cfg.BlockSize {
		return 0, 0, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, t, m.cfg.BlockSize)
	}
	for _, seq := range idx {
		if len(seq) != t {
			return 0, 0, ErrRaggedBatch
		}
		if err := m.checkIDs(seq); err != nil {
			return 0, 0, err
		}
	}
	return len(idx), t, nil
}

func (m *GPT) checkIDs(seq []int) error {
	for _, id := range seq {
		if id < 0 || id >= m.cfg.VocabSize {
			return fmt.Errorf("%w: %d", ErrTokenOutOfRange, id)
		}
	}
	return nil
}

// hidden returns the final-LayerNorm activations [T, C] for one sequence.
func (m *GPT) hidden(seq []int) []float32 {
	c := m.cfg.NEmbd
	t := len(seq)
	x := make([]float32, t*c)
	for pos, id := range seq {
		row := x[pos*c : (pos+1)*c]
		copy(row, m.WTE[id*c:(id+1)*c])
		tensor.AddInPlace(row, m.WPE[pos*c:(pos+1)*c])
	}

	s := newScratch(t, c)
	for i := range m.Blocks {
		m.Blocks[i].forward(x, t, s)
	}
	m.LNF.Forward(x, x)
	return x
}

type scratch struct {
	norm []float32 // [T, C]
	qkv  []float32 // [T, 3C]
	att  []float32 // [T, C]
	proj []float32 // [T, C]
	ff   []float32 // [T, 4C]
	prob []float32 // [T]
}

func newScratch(t, c int) *scratch {
	return &scratch{
		norm: make([]float32, t*c),
		qkv:  make([]float32, t*3*c),
		att:  make([]float32, t*c),
		proj: make([]float32, t*c),
		ff:   make([]float32, t*4*c),
		prob: make([]float32, t),
	}
}

// forward applies x = x + attn(ln_1(x)); x = x + mlp(ln_2(x)) in place.
func (b *Block) forward(x []float32, t int, s *scratch) {
	b.LN1.Forward(s.norm, x)
	b.Attn.forward(s.att, s.norm, t, s)
	tensor.AddInPlace(x, s.att)

	b.LN2.Forward(s.norm, x)
	b.MLP.CFc.Forward(s.ff, s.norm, t)
	tensor.GELUTanh(s.ff)
	b.MLP.CProj.Forward(s.proj, s.ff, t)
	tensor.AddInPlace(x, s.proj)
}

// forward writes the projected attention output for [T, C] input x to dst.
func (a *CausalSelfAttention) forward(dst, x []float32, t int, s *scratch) {
	c := a.CProj.Out
	hs := c / a.NHead
	scale := float32(1.0 / math.Sqrt(float64(hs)))
	a.CAttn.Forward(s.qkv, x, t)

	y := s.proj
	for h := 0; h < a.NHead; h++ {
		qo, ko, vo := h*hs, c+h*hs, 2*c+h*hs
		for i := 0; i < t; i++ {
			q := s.qkv[i*3*c+qo : i*3*c+qo+hs]
			att := s.prob[:i+1]
			// positions after i are masked out
			for j := 0; j <= i; j++ {
				k := s.qkv[j*3*c+ko : j*3*c+ko+hs]
				att[j] = tensor.Dot(q, k) * scale
			}
			tensor.Softmax(att)
			out := y[i*c+qo : i*c+qo+hs]
			tensor.Fill(out, 0)
			for j, p := range att {
				v := s.qkv[j*3*c+vo : j*3*c+vo+hs]
				for d, vv := range v {
					out[d] += p * vv
				}
			}
		}
	}
	a.CProj.Forward(dst, y, t)
}

// crossEntropy averages -log softmax(logits)[target] over non-ignored positions.
func crossEntropy(logits *tensor.Tensor, targets [][]int) (float32, error) {
	b, t, v := logits.Shape[0], logits.Shape[1], logits.Shape[2]
	if len(targets) != b {
		return 0, fmt.Errorf("%w: %d target rows for batch %d", tensor.ErrShapeMismatch, len(targets), b)
	}
	var sum float64
	n := 0
	for i, row := range targets {
		if len(row) != t {
			return 0, fmt.Errorf("%w: target row %d has %d positions, want %d", tensor.ErrShapeMismatch, i, len(row), t)
		}
		for pos, y := range row {
			if y == IgnoreIndex {
				continue
			}
			if y < 0 || y >= v {
				return 0, fmt.Errorf("%w: target %d", ErrTokenOutOfRange, y)
			}
			l := logits.Row(i*t + pos)
			sum += tensor.LogSumExp(l) - float64(l[y])
			n++
		}
	}
	if n == 0 {
		return float32(math.NaN()), nil
	}
	return float32(sum / float64(n)), nil
}
