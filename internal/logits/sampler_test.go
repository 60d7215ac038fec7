package logits

import "testing"

// TestSamplerDeterminism ensures that two samplers configured identically
// produce identical draws on the same logits.
func TestSamplerDeterminism(t *testing.T) {
	t.Parallel()
	logs := []float32{0, 1, 2, 3, 4, 5}
	s1 := NewSampler(SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, DoSample: true})
	s2 := NewSampler(SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, DoSample: true})
	for i := 0; i < 20; i++ {
		a := s1.Sample(logs)
		b := s2.Sample(logs)
		if a != b {
			t.Fatalf("draw %d: expected deterministic sample, got %d vs %d", i, a, b)
		}
	}
}

func TestSamplerGreedy(t *testing.T) {
	t.Parallel()
	logs := []float32{-1, 5, 3, 7, 2}
	s := NewSampler(SamplerConfig{Seed: 99})
	if !s.Greedy() {
		t.Fatal("expected greedy sampler without DoSample")
	}
	if idx := s.Sample(logs); idx != 3 {
		t.Fatalf("expected greedy index 3, got %d", idx)
	}
	if logs[3] != 7 {
		t.Fatal("Sample must not modify its input")
	}
}

// TestSamplerTopK checks that with TopK=2 only the two best candidates are
// ever drawn, even at a high temperature.
func TestSamplerTopK(t *testing.T) {
	t.Parallel()
	logs := []float32{0, 3, 1, 2.9, -4}
	s := NewSampler(SamplerConfig{Seed: 7, Temperature: 5, TopK: 2, DoSample: true})
	seen := map[int]int{}
	for i := 0; i < 500; i++ {
		seen[s.Sample(logs)]++
	}
	for idx := range seen {
		if idx != 1 && idx != 3 {
			t.Fatalf("top-k sampling returned excluded index %d", idx)
		}
	}
	if seen[1] == 0 || seen[3] == 0 {
		t.Fatalf("expected both candidates to be drawn, got %v", seen)
	}
}

func TestSamplerLowTemperatureConcentrates(t *testing.T) {
	t.Parallel()
	logs := []float32{1, 2, 1.5}
	s := NewSampler(SamplerConfig{Seed: 1, Temperature: 0.01, DoSample: true})
	for i := 0; i < 50; i++ {
		if idx := s.Sample(logs); idx != 1 {
			t.Fatalf("expected index 1 at near-zero temperature, got %d", idx)
		}
	}
}

func TestMultinomialSkipsZeroMass(t *testing.T) {
	t.Parallel()
	probs := []float32{0, 0.25, 0, 0.75, 0}
	if got := multinomial(probs, 0.1); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := multinomial(probs, 0.5); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := multinomial(probs, 0.99999999); got != 3 {
		t.Fatalf("expected last nonzero index 3, got %d", got)
	}
}
