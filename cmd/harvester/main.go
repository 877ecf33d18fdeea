package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adda-Baaj/isd-harvester/internal/config"
	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file (ignored when missing)")
	outputPath := flag.String("output", "", "Override output.path (\"-\" for stdout)")
	flag.Parse()

	os.Exit(run(*configPath, *envPath, *outputPath))
}

func run(configPath, envPath, outputPath string) int {
	if err := config.LoadDotEnv(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		return 2
	}
	if out := strings.TrimSpace(outputPath); out != "" {
		cfg.Output.Path = out
	}

	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := pipeline.New(cfg, log).Run(ctx)
	if err != nil {
		log.ErrorObj("gather run failed", "pipeline_error", map[string]any{
			"run_id": report.RunID,
			"error":  err.Error(),
		})
		return exitCode(err)
	}
	return 0
}

// exitCode maps a run error to 2 for configuration problems and 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrConfig):
		return 2
	default:
		return 1
	}
}
