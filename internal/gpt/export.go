package gpt

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/mingpt/internal/safetensors"
	"github.com/samcharles93/mingpt/internal/tensor"
)

// hfConfig is the subset of a HuggingFace GPT2Config that SaveHF writes.
type hfConfig struct {
	Architectures      []string `json:"architectures"`
	ModelType          string   `json:"model_type"`
	ActivationFunction string   `json:"activation_function"`
	VocabSize          int      `json:"vocab_size"`
	NPositions         int      `json:"n_positions"`
	NCtx               int      `json:"n_ctx"`
	NEmbd              int      `json:"n_embd"`
	NLayer             int      `json:"n_layer"`
	NHead              int      `json:"n_head"`
	LayerNormEpsilon   float32  `json:"layer_norm_epsilon"`
	BOSTokenID         int      `json:"bos_token_id"`
	EOSTokenID         int      `json:"eos_token_id"`
	TieWordEmbeddings  bool     `json:"tie_word_embeddings"`
}

// SaveHF writes the model to dir as a HuggingFace GPT-2 checkpoint:
// config.json plus model.safetensors with Conv1D-layout projections. The
// last vocabulary id is recorded as both BOS and EOS, as in GPT-2. An untied
// lm_head is stored explicitly.
func (m *GPT) SaveHF(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cfg := m.cfg
	c := cfg.NEmbd
	tied := m.TiedHead()

	tensors := map[string]safetensors.Entry{
		"wte.weight":  {Shape: []int{cfg.VocabSize, c}, Data: m.WTE},
		"wpe.weight":  {Shape: []int{cfg.BlockSize, c}, Data: m.WPE},
		"ln_f.weight": {Shape: []int{c}, Data: m.LNF.Weight},
		"ln_f.bias":   {Shape: []int{c}, Data: m.LNF.Bias},
	}
	if !tied {
		tensors["lm_head.weight"] = safetensors.Entry{Shape: []int{cfg.VocabSize, c}, Data: m.LMHead.W}
	}
	putLN := func(name string, ln *LayerNorm) {
		tensors[name+".weight"] = safetensors.Entry{Shape: []int{c}, Data: ln.Weight}
		tensors[name+".bias"] = safetensors.Entry{Shape: []int{c}, Data: ln.Bias}
	}
	putConv := func(name string, l *Linear) {
		tensors[name+".weight"] = safetensors.Entry{Shape: []int{l.In, l.Out}, Data: tensor.Transpose(l.W, l.Out, l.In)}
		tensors[name+".bias"] = safetensors.Entry{Shape: []int{l.Out}, Data: l.B}
	}
	for i := range m.Blocks {
		b := &m.Blocks[i]
		p := fmt.Sprintf("h.%d.", i)
		putLN(p+"ln_1", &b.LN1)
		putConv(p+"attn.c_attn", &b.Attn.CAttn)
		putConv(p+"attn.c_proj", &b.Attn.CProj)
		putLN(p+"ln_2", &b.LN2)
		putConv(p+"mlp.c_fc", &b.MLP.CFc)
		putConv(p+"mlp.c_proj", &b.MLP.CProj)
	}
	if err := safetensors.Write(filepath.Join(dir, WeightsFile), tensors, map[string]string{"format": "pt"}); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}

	hc := hfConfig{
		Architectures:      []string{"GPT2LMHeadModel"},
		ModelType:          "gpt2",
		ActivationFunction: "gelu_new",
		VocabSize:          cfg.VocabSize,
		NPositions:         cfg.BlockSize,
		NCtx:               cfg.BlockSize,
		NEmbd:              c,
		NLayer:             cfg.NLayer,
		NHead:              cfg.NHead,
		LayerNormEpsilon:   cfg.LayerNormEps,
		BOSTokenID:         cfg.VocabSize - 1,
		EOSTokenID:         cfg.VocabSize - 1,
		TieWordEmbeddings:  tied,
	}
	raw, err := json.MarshalIndent(hc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), append(raw, '\n'), 0o644)
}

// TieHead makes the lm_head share the token embedding.
func (m *GPT) TieHead() {
	m.LMHead.W = m.WTE
}
