package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissing(t *testing.T) {
	t.Parallel()

	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if c.ModelType != "" || c.Steps != nil {
		t.Fatalf("expected zero config, got %+v", c)
	}

	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("expected no error for an empty path, got %v", err)
	}
}

func TestLoadConfigValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `models_dir: /srv/models
model_type: gpt2-medium
log_level: debug
steps: 40
temperature: 0.8
top_k: 50
rtol: 0.001
server_address: 0.0.0.0:9000
rate: 2.5
burst: 3
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ModelsDir != "/srv/models" || c.ModelType != "gpt2-medium" || c.LogLevel != "debug" {
		t.Fatalf("unexpected strings: %+v", c)
	}
	if c.Steps == nil || *c.Steps != 40 {
		t.Fatalf("expected steps 40, got %v", c.Steps)
	}
	if c.Temperature == nil || *c.Temperature != 0.8 {
		t.Fatalf("expected temperature 0.8, got %v", c.Temperature)
	}
	if c.TopK == nil || *c.TopK != 50 {
		t.Fatalf("expected top_k 50, got %v", c.TopK)
	}
	if c.Seed != nil || c.ATol != nil {
		t.Fatalf("expected unset seed and atol, got %v %v", c.Seed, c.ATol)
	}
	if c.RTol == nil || *c.RTol != 0.001 {
		t.Fatalf("expected rtol 0.001, got %v", c.RTol)
	}
	if c.ServerAddress != "0.0.0.0:9000" || c.Rate == nil || *c.Rate != 2.5 || c.Burst == nil || *c.Burst != 3 {
		t.Fatalf("unexpected server settings: %+v", c)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("steps: [1, 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
