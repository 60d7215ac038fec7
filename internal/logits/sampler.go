package logits

import (
	"math"
	"math/rand"
	"sort"

	"github.com/samcharles93/mingpt/internal/tensor"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	TopK        int
	DoSample    bool
}

// Sampler turns a next-token logits row into a token id. It is not safe for
// concurrent use.
type Sampler struct {
	rng     *rand.Rand
	cfg     SamplerConfig
	scratch []float32
	sorted  []float32
}

// NewSampler returns a new sampler with the provided configuration. A
// non-positive temperature is treated as 1.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	return &Sampler{
		rng: rand.New(rand.NewSource(cfg.Seed)),
		cfg: cfg,
	}
}

// Greedy reports whether Sample always returns the argmax.
func (s *Sampler) Greedy() bool { return !s.cfg.DoSample }

// Sample picks the next token from logits, which is left unmodified.
//
//  1. Scale by the inverse temperature.
//  2. With TopK>0, push every value below the k-th largest to -Inf. Values
//     tied with the k-th largest survive.
//  3. Without DoSample return the argmax; the softmax is monotonic so it is
//     skipped.
//  4. Otherwise draw from the softmax distribution.
func (s *Sampler) Sample(logits []float32) int {
	if !s.cfg.DoSample {
		return tensor.Argmax(logits)
	}
	if cap(s.scratch) < len(logits) {
		s.scratch = make([]float32, len(logits))
	}
	probs := s.scratch[:len(logits)]
	inv := 1 / s.cfg.Temperature
	for i, v := range logits {
		probs[i] = v * inv
	}
	if s.cfg.TopK > 0 && s.cfg.TopK < len(probs) {
		kth := s.kthLargest(probs, s.cfg.TopK)
		negInf := float32(math.Inf(-1))
		for i, v := range probs {
			if v < kth {
				probs[i] = negInf
			}
		}
	}
	tensor.Softmax(probs)
	return multinomial(probs, s.rng.Float64())
}

func (s *Sampler) kthLargest(x []float32, k int) float32 {
	if cap(s.sorted) < len(x) {
		s.sorted = make([]float32, len(x))
	}
	sorted := s.sorted[:len(x)]
	copy(sorted, x)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return sorted[k-1]
}

// multinomial picks the first index whose cumulative probability exceeds r.
func multinomial(probs []float32, r float64) int {
	var c float64
	last := 0
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		c += float64(p)
		last = i
		if r < c {
			return i
		}
	}
	return last
}
