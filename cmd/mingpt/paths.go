package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/mingpt/internal/hub"
)

// resolveModelsDir picks the models directory: the flag (or its env var),
// then the user cache directory.
func resolveModelsDir(flag string) (string, error) {
	if dir := strings.TrimSpace(flag); dir != "" {
		return filepath.Clean(dir), nil
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("--models-dir or %s is required: %w", envModelsDir, err)
	}
	return filepath.Join(cache, "mingpt", "models"), nil
}

// resolveModelDir returns the directory to load modelType from. An explicit
// --model-dir is used as is; otherwise the model must have been fetched.
func resolveModelDir(modelType, modelDir, modelsFlag string) (string, error) {
	if dir := strings.TrimSpace(modelDir); dir != "" {
		st, err := os.Stat(dir)
		if err != nil {
			return "", err
		}
		if !st.IsDir() {
			return "", fmt.Errorf("model path is not a directory: %s", dir)
		}
		return filepath.Clean(dir), nil
	}
	root, err := resolveModelsDir(modelsFlag)
	if err != nil {
		return "", err
	}
	dir, err := hub.Resolve(modelType, root)
	if errors.Is(err, hub.ErrNotCached) {
		return "", fmt.Errorf("%w; run `mingpt fetch --model-type %s` first", err, modelType)
	}
	return dir, err
}
