package hfgpt2

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/samcharles93/mingpt/internal/tensor"
)

// Output is the result of a forward pass.
type Output struct {
	Logits *tensor.Tensor // [batch, new positions, vocab]
	Cache  *Cache         // past key/values including the new positions
}

// Forward runs ids, a batch of equal-length rows, through the model. With a
// non-nil cache the ids continue the cached sequences: positions start at
// cache.Len() and attention also covers the cached keys. The cache passed in
// is extended in place and returned in Output.
func (m *Model) Forward(ids [][]int, cache *Cache) (Output, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return Output{}, fmt.Errorf("%w: empty input", ErrBatchShapeMismatch)
	}
	t := len(ids[0])
	if cache == nil || cache.Batch() == 0 {
		cache = newCache(len(ids), m.cfg.NLayer)
	}
	if cache.Batch() != len(ids) {
		return Output{}, fmt.Errorf("%w: cache holds %d rows, got %d", ErrBatchShapeMismatch, cache.Batch(), len(ids))
	}
	past := cache.Len()
	if past+t > m.cfg.NPositions {
		return Output{}, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, past+t, m.cfg.NPositions)
	}
	for _, row := range ids {
		if len(row) != t {
			return Output{}, ErrBatchShapeMismatch
		}
		for _, id := range row {
			if id < 0 || id >= m.cfg.VocabSize {
				return Output{}, fmt.Errorf("%w: %d", ErrTokenOutOfRange, id)
			}
		}
	}

	v := m.cfg.VocabSize
	logits := tensor.New(len(ids), t, v)
	for b, row := range ids {
		h := m.transformer(row, &cache.rows[b], past)
		// lm_head: h · wteᵀ
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			general(h, t, m.cfg.NEmbd, m.cfg.NEmbd),
			general(m.lmHead, v, m.cfg.NEmbd, m.cfg.NEmbd),
			0, general(logits.Data[b*t*v:(b+1)*t*v], t, v, v))
	}
	return Output{Logits: logits, Cache: cache}, nil
}

// transformer returns the ln_f output [t, n_embd] for one row.
func (m *Model) transformer(ids []int, rc *rowCache, past int) []float32 {
	c := m.cfg.NEmbd
	t := len(ids)
	hidden := make([]float32, t*c)
	for i, id := range ids {
		dst := hidden[i*c : (i+1)*c]
		tok := m.wte[id*c : (id+1)*c]
		pos := m.wpe[(past+i)*c : (past+i+1)*c]
		for j := range dst {
			dst[j] = tok[j] + pos[j]
		}
	}

	ws := newWorkspace(t, past+t, c)
	for l := range m.blocks {
		m.blocks[l].forward(hidden, &rc.layers[l], past, m.cfg.NHead, m.act, ws)
	}
	rc.n = past + t
	m.lnF.forward(hidden, hidden)
	return hidden
}

type workspace struct {
	normed []float32 // [t, c]
	qkv    []float32 // [t, 3c]
	ctx    []float32 // [t, c]
	out    []float32 // [t, c]
	inner  []float32 // [t, 4c]
	scores []float32 // [t, total]
}

func newWorkspace(t, total, c int) *workspace {
	return &workspace{
		normed: make([]float32, t*c),
		qkv:    make([]float32, t*3*c),
		ctx:    make([]float32, t*c),
		out:    make([]float32, t*c),
		inner:  make([]float32, t*4*c),
		scores: make([]float32, t*total),
	}
}

func (b *block) forward(hidden []float32, cache *kv, past, nHead int, act func([]float32), ws *workspace) {
	c := b.cAttn.nx
	t := len(hidden) / c

	b.ln1.forward(ws.normed, hidden)
	b.cAttn.forward(ws.qkv, ws.normed, t)
	for i := 0; i < t; i++ {
		row := ws.qkv[i*3*c : (i+1)*3*c]
		cache.k = append(cache.k, row[c:2*c]...)
		cache.v = append(cache.v, row[2*c:]...)
	}
	attend(ws.ctx, ws.qkv, cache, past, t, c, nHead, ws.scores)
	b.cProj.forward(ws.out, ws.ctx, t)
	tensor.AddInPlace(hidden, ws.out)

	b.ln2.forward(ws.normed, hidden)
	b.cFc.forward(ws.inner, ws.normed, t)
	act(ws.inner)
	b.mProj.forward(ws.out, ws.inner, t)
	tensor.AddInPlace(hidden, ws.out)
}

// attend computes softmax(q·kᵀ/sqrt(d) + mask)·v per head for t queries at
// positions past..past+t-1 against every cached key, writing the merged
// heads to dst [t, c].
func attend(dst, qkv []float32, cache *kv, past, t, c, nHead int, scores []float32) {
	d := c / nHead
	total := past + t
	scale := float32(1 / math.Sqrt(float64(d)))
	scores = scores[:t*total]
	for h := 0; h < nHead; h++ {
		off := h * d
		q := general(qkv[off:off+(t-1)*3*c+d], t, d, 3*c)
		k := general(cache.k[off:off+(total-1)*c+d], total, d, c)
		v := general(cache.v[off:off+(total-1)*c+d], total, d, c)
		s := general(scores, t, total, total)
		blas32.Gemm(blas.NoTrans, blas.Trans, scale, q, k, 0, s)
		for i := 0; i < t; i++ {
			row := scores[i*total : (i+1)*total]
			for j := past + i + 1; j < total; j++ {
				row[j] = float32(math.Inf(-1))
			}
			tensor.Softmax(row)
		}
		out := general(dst[off:off+(t-1)*c+d], t, d, c)
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, s, v, 0, out)
	}
}
