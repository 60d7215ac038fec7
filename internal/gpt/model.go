// Package gpt is a from-scratch GPT language model: token and position
// embeddings, a stack of pre-norm transformer blocks, and a linear head
// over the vocabulary. Weights are held in nn.Linear layout ([out, in]).
package gpt

import (
	"math"
	"math/rand"

	"github.com/samcharles93/mingpt/internal/tensor"
)

// Linear is y = x·Wᵀ + b with W stored as [Out, In].
type Linear struct {
	W   []float32
	B   []float32 // nil when the layer has no bias
	In  int
	Out int
}

func newLinear(in, out int, bias bool) Linear {
	l := Linear{W: make([]float32, out*in), In: in, Out: out}
	if bias {
		l.B = make([]float32, out)
	}
	return l
}

// Forward writes rows×Out outputs for rows×In inputs.
func (l *Linear) Forward(dst, x []float32, rows int) {
	tensor.MatMulT(dst, x, l.W, rows, l.In, l.Out)
	if l.B != nil {
		tensor.AddBias(dst[:rows*l.Out], l.B)
	}
}

type LayerNorm struct {
	Weight []float32
	Bias   []float32
	Eps    float32
}

func newLayerNorm(n int, eps float32) LayerNorm {
	ln := LayerNorm{Weight: make([]float32, n), Bias: make([]float32, n), Eps: eps}
	tensor.Fill(ln.Weight, 1)
	return ln
}

// Forward normalises each row of x into dst.
func (ln *LayerNorm) Forward(dst, x []float32) {
	n := len(ln.Weight)
	for off := 0; off < len(x); off += n {
		tensor.LayerNorm(dst[off:off+n], x[off:off+n], ln.Weight, ln.Bias, ln.Eps)
	}
}

// CausalSelfAttention is multi-head masked self-attention with a fused
// query/key/value projection.
type CausalSelfAttention struct {
	CAttn Linear // C -> 3C
	CProj Linear // C -> C
	NHead int
}

type MLP struct {
	CFc   Linear // C -> 4C
	CProj Linear // 4C -> C
}

// Block is one pre-norm transformer layer.
type Block struct {
	LN1  LayerNorm
	Attn CausalSelfAttention
	LN2  LayerNorm
	MLP  MLP
}

// GPT is the language model. Its methods are safe for concurrent use as
// long as the weights are not mutated.
type GPT struct {
	cfg Config

	WTE    []float32 // [VocabSize, NEmbd]
	WPE    []float32 // [BlockSize, NEmbd]
	Blocks []Block
	LNF    LayerNorm
	LMHead Linear // no bias
}

// New builds a randomly initialised model. Linear and embedding weights are
// drawn from N(0, 0.02); residual projections use a 1/sqrt(2*n_layer)
// scaled std; biases start at zero and LayerNorms at identity.
func New(cfg Config, seed int64) (*GPT, error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	m := allocate(cfg)
	rng := rand.New(rand.NewSource(seed))
	projStd := 0.02 / math.Sqrt(float64(2*cfg.NLayer))

	tensor.FillNormal(m.WTE, rng, 0, 0.02)
	tensor.FillNormal(m.WPE, rng, 0, 0.02)
	for i := range m.Blocks {
		b := &m.Blocks[i]
		tensor.FillNormal(b.Attn.CAttn.W, rng, 0, 0.02)
		tensor.FillNormal(b.Attn.CProj.W, rng, 0, projStd)
		tensor.FillNormal(b.MLP.CFc.W, rng, 0, 0.02)
		tensor.FillNormal(b.MLP.CProj.W, rng, 0, projStd)
	}
	if cfg.TieWordEmbeddings {
		m.TieHead()
	} else {
		tensor.FillNormal(m.LMHead.W, rng, 0, 0.02)
	}
	return m, nil
}

// allocate creates zeroed parameters with identity LayerNorms.
func allocate(cfg Config) *GPT {
	c := cfg.NEmbd
	m := &GPT{
		cfg:    cfg,
		WTE:    make([]float32, cfg.VocabSize*c),
		WPE:    make([]float32, cfg.BlockSize*c),
		Blocks: make([]Block, cfg.NLayer),
		LNF:    newLayerNorm(c, cfg.LayerNormEps),
		LMHead: newLinear(c, cfg.VocabSize, false),
	}
	for i := range m.Blocks {
		m.Blocks[i] = Block{
			LN1: newLayerNorm(c, cfg.LayerNormEps),
			Attn: CausalSelfAttention{
				CAttn: newLinear(c, 3*c, true),
				CProj: newLinear(c, c, true),
				NHead: cfg.NHead,
			},
			LN2: newLayerNorm(c, cfg.LayerNormEps),
			MLP: MLP{
				CFc:   newLinear(c, 4*c, true),
				CProj: newLinear(4*c, c, true),
			},
		}
	}
	return m
}

func (m *GPT) Config() Config { return m.cfg }

// NumParams counts the transformer parameters. The lm_head is excluded, as
// it is usually tied to the token embedding.
func (m *GPT) NumParams() int {
	n := len(m.WTE) + len(m.WPE) + len(m.LNF.Weight) + len(m.LNF.Bias)
	for i := range m.Blocks {
		b := &m.Blocks[i]
		for _, l := range []*Linear{&b.Attn.CAttn, &b.Attn.CProj, &b.MLP.CFc, &b.MLP.CProj} {
			n += len(l.W) + len(l.B)
		}
		n += 2*len(b.LN1.Weight) + 2*len(b.LN2.Weight)
	}
	return n
}

// TiedHead reports whether the lm_head shares storage with the token embedding.
func (m *GPT) TiedHead() bool {
	return len(m.LMHead.W) > 0 && &m.LMHead.W[0] == &m.WTE[0]
}

// CropBlockSize shrinks the context window to n positions, dropping the
// tail of the position embedding table.
func (m *GPT) CropBlockSize(n int) error {
	if n <= 0 || n > m.cfg.BlockSize {
		return ErrInvalidConfig
	}
	m.cfg.BlockSize = n
	m.WPE = m.WPE[:n*m.cfg.NEmbd]
	return nil
}
