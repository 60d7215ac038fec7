package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/mingpt/internal/hub"
)

func TestResolveModelsDir(t *testing.T) {
	t.Parallel()

	got, err := resolveModelsDir("  /srv/models/ ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "/srv/models" {
		t.Fatalf("expected /srv/models, got %q", got)
	}
}

func TestResolveModelDirExplicit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got, err := resolveModelDir("gpt2", dir, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Clean(dir) {
		t.Fatalf("expected %q, got %q", dir, got)
	}

	file := filepath.Join(dir, "weights")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := resolveModelDir("gpt2", file, ""); err == nil {
		t.Fatal("expected error for a file path")
	}
	if _, err := resolveModelDir("gpt2", filepath.Join(dir, "missing"), ""); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}

func TestResolveModelDirNotFetched(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := resolveModelDir("gpt2", "", root)
	if !errors.Is(err, hub.ErrNotCached) {
		t.Fatalf("expected ErrNotCached, got %v", err)
	}
	if !strings.Contains(err.Error(), "mingpt fetch") {
		t.Fatalf("expected fetch hint, got %q", err)
	}

	_, err = resolveModelDir("gpt-nano", "", root)
	if !errors.Is(err, hub.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}
