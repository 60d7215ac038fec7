package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mingpt/internal/logger"
)

const envModelsDir = "MINGPT_MODELS_DIR"

var (
	modelsDir  string
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	// cfg is the loaded config file, available to every command.
	cfg Config
)

func globalFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:        "models-dir",
			Usage:       "directory holding downloaded models, one sub-directory per model type",
			Sources:     cli.EnvVars(envModelsDir),
			Destination: &modelsDir,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Destination: &configFile,
		},
	}, loggingFlags()...)
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// modelFlags selects a model by type, or by an explicit directory.
func modelFlags(modelType, modelDir *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-type",
			Aliases:     []string{"m"},
			Usage:       "gpt2, gpt2-medium, gpt2-large, gpt2-xl, or any preset when --model-dir is set",
			Value:       "gpt2",
			Destination: modelType,
		},
		&cli.StringFlag{
			Name:        "model-dir",
			Usage:       "load the model from this directory instead of the models dir",
			Destination: modelDir,
		},
	}
}

// setup loads the config file and installs the logger in the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	cfg, err = LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	applyGlobalConfig(cmd, cfg)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, err
	}
	if debug {
		level = slog.LevelDebug
	}
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, err
	}
	log := logger.New(os.Stderr, logger.Options{Level: level, Format: format, AddSource: debug})
	log.Debug("configured", "config", configFile, "models_dir", modelsDir)
	return logger.WithContext(ctx, log), nil
}
