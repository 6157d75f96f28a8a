package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antoniostano/switchboard/internal/bridge"
	"github.com/antoniostano/switchboard/internal/calls"
	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/control"
	"github.com/antoniostano/switchboard/internal/httpapi"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/realtime"
	"github.com/antoniostano/switchboard/internal/transcript"
	"github.com/antoniostano/switchboard/internal/twilio"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatalf("OPENAI_API_KEY is required")
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	transcripts, err := transcript.NewStore(ctx, cfg.RedisURL, 0)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}

	callStore, err := calls.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("call store init failed: %v", err)
	}
	defer callStore.Close()

	state := control.NewState(cfg.SessionDefaults())

	var minterOpts []realtime.MinterOption
	if cfg.MintURL != "" {
		minterOpts = append(minterOpts, realtime.WithMintURL(cfg.MintURL))
	}
	if cfg.OpenAIOrgID != "" || cfg.OpenAIProjectID != "" {
		minterOpts = append(minterOpts, realtime.WithOrg(cfg.OpenAIOrgID, cfg.OpenAIProjectID))
	}
	minter := realtime.NewMinter(cfg.OpenAIAPIKey, minterOpts...)

	dialer := bridge.NewModelDialer(cfg.ModelWSBaseURL)
	bridgeHandler := bridge.NewHandler(state, transcripts, dialer, cfg.Model, metrics, logger)
	dispatcher := twilio.NewDispatcher(cfg.TwilioAccountSid, cfg.TwilioAuthToken)

	api := httpapi.New(cfg, state, transcripts, minter, bridgeHandler, dispatcher, callStore, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.BindAddr, "model", cfg.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
