package gpt

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/mingpt/internal/safetensors"
	"github.com/samcharles93/mingpt/internal/tensor"
)

// WeightsFile is the checkpoint file name inside a model directory.
const WeightsFile = "model.safetensors"

// FromPretrained loads one of the published GPT-2 checkpoints from dir.
// The architecture comes from the model type; the vocabulary is always
// 50257 tokens, the context 1024 positions and the head is tied.
func FromPretrained(dir, modelType string) (*GPT, error) {
	if !IsPretrained(modelType) {
		return nil, fmt.Errorf("%w: %q has no pretrained weights (want one of %s)",
			ErrUnknownModelType, modelType, strings.Join(pretrainedTypes, ", "))
	}
	cfg, err := ConfigFor(modelType)
	if err != nil {
		return nil, err
	}
	cfg.TieWordEmbeddings = true
	return Load(filepath.Join(dir, WeightsFile), cfg)
}

// Load reads HuggingFace-layout GPT-2 weights into a model built from cfg.
//
// The checkpoint stores its projections as Conv1D ([in, out]); they are
// transposed into Linear layout. The causal-mask buffers are skipped. The
// head shares the token embedding when cfg.TieWordEmbeddings is set or the
// file has no lm_head.weight.
func Load(path string, cfg Config) (*GPT, error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	sf, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer func() { _ = sf.Close() }()

	m := allocate(cfg)
	l := loader{sf: sf, seen: make(map[string]bool)}
	c := cfg.NEmbd

	l.copy("wte.weight", m.WTE, cfg.VocabSize, c)
	l.copy("wpe.weight", m.WPE, cfg.BlockSize, c)
	for i := range m.Blocks {
		b := &m.Blocks[i]
		p := fmt.Sprintf("h.%d.", i)
		l.layerNorm(p+"ln_1", &b.LN1)
		l.conv1D(p+"attn.c_attn", &b.Attn.CAttn)
		l.conv1D(p+"attn.c_proj", &b.Attn.CProj)
		l.layerNorm(p+"ln_2", &b.LN2)
		l.conv1D(p+"mlp.c_fc", &b.MLP.CFc)
		l.conv1D(p+"mlp.c_proj", &b.MLP.CProj)
	}
	l.layerNorm("ln_f", &m.LNF)
	switch name, ok := l.lookup("lm_head.weight"); {
	case ok && !cfg.TieWordEmbeddings:
		l.copy("lm_head.weight", m.LMHead.W, cfg.VocabSize, c)
	case ok:
		l.seen[name] = true
		m.TieHead()
	default:
		m.TieHead()
	}
	if l.err != nil {
		return nil, l.err
	}

	var extra []string
	for name := range sf.Tensors {
		base := strings.TrimPrefix(name, "transformer.")
		if l.seen[name] || strings.HasSuffix(base, ".attn.bias") || strings.HasSuffix(base, ".attn.masked_bias") {
			continue
		}
		extra = append(extra, name)
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		return nil, fmt.Errorf("unexpected tensors in checkpoint: %s", strings.Join(extra, ", "))
	}
	return m, nil
}

// loader records the first error so the mapping above reads linearly.
type loader struct {
	sf   *safetensors.File
	seen map[string]bool
	err  error
}

// lookup resolves a HuggingFace name with or without the "transformer." prefix.
func (l *loader) lookup(name string) (string, bool) {
	for _, n := range []string{name, "transformer." + name} {
		if _, ok := l.sf.Tensor(n); ok {
			return n, true
		}
	}
	return "", false
}

func (l *loader) read(name string, dims ...int) []float32 {
	if l.err != nil {
		return nil
	}
	full, ok := l.lookup(name)
	if !ok {
		l.err = fmt.Errorf("missing tensor %s", name)
		return nil
	}
	data, info, err := l.sf.ReadTensorF32(full)
	if err != nil {
		l.err = err
		return nil
	}
	if !slices.Equal(info.Shape, dims) {
		l.err = fmt.Errorf("tensor %s: %w: have %v, want %v", name, tensor.ErrShapeMismatch, info.Shape, dims)
		return nil
	}
	l.seen[full] = true
	return data
}

func (l *loader) copy(name string, dst []float32, dims ...int) {
	if data := l.read(name, dims...); data != nil {
		copy(dst, data)
	}
}

func (l *loader) layerNorm(prefix string, ln *LayerNorm) {
	n := len(ln.Weight)
	l.copy(prefix+".weight", ln.Weight, n)
	l.copy(prefix+".bias", ln.Bias, n)
}

func (l *loader) conv1D(prefix string, lin *Linear) {
	if w := l.read(prefix+".weight", lin.In, lin.Out); w != nil {
		copy(lin.W, tensor.Transpose(w, lin.In, lin.Out))
	}
	l.copy(prefix+".bias", lin.B, lin.Out)
}
