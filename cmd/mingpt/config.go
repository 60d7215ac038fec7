package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional ~/.config/mingpt/config.yaml. Pointer fields
// distinguish "not set" from zero values; a flag given on the command line
// always wins over the file.
type Config struct {
	ModelsDir string `yaml:"models_dir"`
	ModelType string `yaml:"model_type"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Generation defaults
	Steps       *int64   `yaml:"steps"`
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	Seed        *int64   `yaml:"seed"`

	// Parity tolerance
	RTol *float64 `yaml:"rtol"`
	ATol *float64 `yaml:"atol"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	Rate          *float64 `yaml:"rate"`
	Burst         *int64   `yaml:"burst"`

	HFToken string `yaml:"hf_token"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mingpt", "config.yaml")
}

// LoadConfig reads path. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !c.IsSet("models-dir") {
		modelsDir = cfg.ModelsDir
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyModelConfig(c *cli.Command, cfg Config, modelType *string) {
	if cfg.ModelType != "" && !c.IsSet("model-type") {
		*modelType = cfg.ModelType
	}
}

func applyGenerateConfig(c *cli.Command, cfg Config, steps *int64, temp *float64, topK *int64, seed *int64) {
	if cfg.Steps != nil && !c.IsSet("steps") {
		*steps = *cfg.Steps
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		*temp = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.TopK
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

func applyParityConfig(c *cli.Command, cfg Config, steps *int64, rtol, atol *float64) {
	if cfg.Steps != nil && !c.IsSet("steps") {
		*steps = *cfg.Steps
	}
	if cfg.RTol != nil && !c.IsSet("rtol") {
		*rtol = *cfg.RTol
	}
	if cfg.ATol != nil && !c.IsSet("atol") {
		*atol = *cfg.ATol
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string, rate *float64, burst *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.Rate != nil && !c.IsSet("rate") {
		*rate = *cfg.Rate
	}
	if cfg.Burst != nil && !c.IsSet("burst") {
		*burst = *cfg.Burst
	}
}
