package hfgpt2

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/samcharles93/mingpt/internal/safetensors"
	"github.com/samcharles93/mingpt/internal/tensor"
)

// WeightsFile is the checkpoint file name inside a model directory.
const WeightsFile = "model.safetensors"

// conv1D is y = x·W + b with W stored as [nx, nf].
type conv1D struct {
	w      []float32
	b      []float32
	nx, nf int
}

// forward writes rows×nf outputs to dst.
func (c *conv1D) forward(dst, x []float32, rows int) {
	for r := 0; r < rows; r++ {
		copy(dst[r*c.nf:(r+1)*c.nf], c.b)
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(x, rows, c.nx, c.nx),
		general(c.w, c.nx, c.nf, c.nf),
		1, general(dst, rows, c.nf, c.nf))
}

type layerNorm struct {
	w, b []float32
	eps  float32
}

func (ln *layerNorm) forward(dst, x []float32) {
	n := len(ln.w)
	for off := 0; off < len(x); off += n {
		tensor.LayerNorm(dst[off:off+n], x[off:off+n], ln.w, ln.b, ln.eps)
	}
}

type block struct {
	ln1   layerNorm
	cAttn conv1D // c_attn: n_embd -> 3*n_embd
	cProj conv1D // attn.c_proj
	ln2   layerNorm
	cFc   conv1D
	mProj conv1D // mlp.c_proj
}

// Model is a GPT2LMHeadModel. It is safe for concurrent use; each caller
// supplies its own Cache.
type Model struct {
	cfg    Config
	act    func([]float32)
	wte    []float32 // [vocab, n_embd]
	wpe    []float32 // [n_positions, n_embd]
	blocks []block
	lnF    layerNorm
	lmHead []float32 // [vocab, n_embd]; aliases wte when tied
}

func (m *Model) Config() Config { return m.cfg }

// FromPretrained loads config.json and model.safetensors from dir.
func FromPretrained(dir string) (*Model, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, WeightsFile), cfg)
}

// Load reads HuggingFace GPT-2 weights from a safetensors file. Tensor names
// may carry a "transformer." prefix; the attention mask buffers are ignored.
func Load(path string, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, _ := activation(cfg.ActivationFunction)
	sf, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer func() { _ = sf.Close() }()

	w := weights{sf: sf}
	c := cfg.NEmbd
	m := &Model{
		cfg:    cfg,
		act:    act,
		wte:    w.get("wte.weight", cfg.VocabSize, c),
		wpe:    w.get("wpe.weight", cfg.NPositions, c),
		blocks: make([]block, cfg.NLayer),
	}
	for i := range m.blocks {
		p := fmt.Sprintf("h.%d.", i)
		m.blocks[i] = block{
			ln1:   w.layerNorm(p+"ln_1", c, cfg.LayerNormEpsilon),
			cAttn: w.conv1D(p+"attn.c_attn", c, 3*c),
			cProj: w.conv1D(p+"attn.c_proj", c, c),
			ln2:   w.layerNorm(p+"ln_2", c, cfg.LayerNormEpsilon),
			cFc:   w.conv1D(p+"mlp.c_fc", c, 4*c),
			mProj: w.conv1D(p+"mlp.c_proj", 4*c, c),
		}
	}
	m.lnF = w.layerNorm("ln_f", c, cfg.LayerNormEpsilon)
	if cfg.TieWordEmbeddings {
		m.lmHead = m.wte
	} else {
		m.lmHead = w.get("lm_head.weight", cfg.VocabSize, c)
	}
	if w.err != nil {
		return nil, w.err
	}
	return m, nil
}

type weights struct {
	sf  *safetensors.File
	err error
}

func (w *weights) get(name string, shape ...int) []float32 {
	if w.err != nil {
		return nil
	}
	full := name
	if _, ok := w.sf.Tensor(full); !ok {
		full = "transformer." + name
	}
	data, info, err := w.sf.ReadTensorF32(full)
	if err != nil {
		w.err = fmt.Errorf("load %s: %w", name, err)
		return nil
	}
	if !slices.Equal(info.Shape, shape) {
		w.err = fmt.Errorf("load %s: %w: shape %v, expected %v", name, tensor.ErrShapeMismatch, info.Shape, shape)
		return nil
	}
	return data
}

func (w *weights) layerNorm(prefix string, n int, eps float32) layerNorm {
	return layerNorm{w: w.get(prefix+".weight", n), b: w.get(prefix+".bias", n), eps: eps}
}

func (w *weights) conv1D(prefix string, nx, nf int) conv1D {
	return conv1D{w: w.get(prefix+".weight", nx, nf), b: w.get(prefix+".bias", nf), nx: nx, nf: nf}
}

func activation(name string) (func([]float32), error) {
	switch strings.ToLower(name) {
	case "gelu_new", "gelu_pytorch_tanh", "":
		return tensor.GELUTanh, nil
	case "gelu":
		return geluErf, nil
	case "relu":
		return relu, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownActivation, name)
}

func geluErf(x []float32) {
	for i, v := range x {
		f := float64(v)
		x[i] = float32(0.5 * f * (1 + math.Erf(f/math.Sqrt2)))
	}
}

func relu(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

func general(data []float32, rows, cols, stride int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: stride, Data: data}
}
