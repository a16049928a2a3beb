// tracelab serves the trace ingestion and QA evaluation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tracelab-ai/tracelab/internal/config"
	"github.com/tracelab-ai/tracelab/internal/judge"
	"github.com/tracelab-ai/tracelab/internal/llm"
	"github.com/tracelab-ai/tracelab/internal/pipeline"
	"github.com/tracelab-ai/tracelab/internal/sandbox"
	"github.com/tracelab-ai/tracelab/internal/server"
	"github.com/tracelab-ai/tracelab/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", "err", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("tracelab starting", "version", version, "port", cfg.Port)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	provider, err := newJudgeProvider(cfg)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	rubricJudge, err := judge.New(provider, cfg.JudgeModel, logger)
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}

	runner := sandbox.NewRunner(cfg.SandboxWorkRoot, cfg.CloneTimeout, cfg.TestTimeout, logger)

	orch := pipeline.New(runner, rubricJudge, db, logger)
	orch.TestCommand = cfg.TestCommand

	srv := server.New(server.Config{
		Store:               db,
		Pipeline:            orch,
		Logger:              logger,
		Version:             version,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("tracelab shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}
	return nil
}

// newJudgeProvider builds the rate-limited LLM client for the judge.
func newJudgeProvider(cfg config.Config) (llm.Provider, error) {
	inner, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:  cfg.JudgeAPIKey,
		Model:   cfg.JudgeModel,
		BaseURL: cfg.JudgeBaseURL,
		Timeout: cfg.JudgeTimeout,
	})
	if err != nil {
		return nil, err
	}
	// Retry policy lives in the judge (one retry on top of the first
	// attempt); the wrapper only paces requests so it must not add its own
	// attempts.
	return llm.NewRateLimitedProvider(inner, llm.RateLimiterConfig{
		RequestsPerMinute: cfg.JudgeRequestsPerMinute,
		Burst:             1,
		MaxRetries:        0,
	})
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
