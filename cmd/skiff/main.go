package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	skiff "github.com/avitkov/skiff"
	"github.com/avitkov/skiff/frontend/telegram"
	"github.com/avitkov/skiff/httpapi"
	"github.com/avitkov/skiff/internal/config"
	"github.com/avitkov/skiff/observer"
	"github.com/avitkov/skiff/provider/anthropic"
	"github.com/avitkov/skiff/provider/openaicompat"
	"github.com/avitkov/skiff/store/postgres"
	"github.com/avitkov/skiff/store/sqlite"
	"github.com/avitkov/skiff/tools/fetch"
	"github.com/avitkov/skiff/tools/file"
	"github.com/avitkov/skiff/tools/search"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg := config.Load(os.Getenv("SKIFF_CONFIG"))

	// 2. Observability (optional)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	// 3. Event log
	var eventLog skiff.EventLog
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.Database.PostgresURL, postgres.WithLogger(logger))
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Init(ctx); err != nil {
			return err
		}
		eventLog = pg
	default:
		sq := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		defer sq.Close()
		if err := sq.Init(ctx); err != nil {
			return err
		}
		eventLog = sq
	}

	// 4. Tools
	registry := skiff.NewToolRegistry()
	registry.Add(search.New(cfg.Search.BraveAPIKey, search.WithLogger(logger)))
	registry.Add(fetch.New())
	registry.Add(file.New(cfg.Workspace.Path, file.WithWriteDir(cfg.Workspace.WriteDir)))

	var exec skiff.ToolExecutor = registry
	if inst != nil {
		exec = observer.WrapExecutor(registry, inst)
	}

	// 5. Provider
	var provider skiff.Provider
	if cfg.LLM.APIKey != "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			opts := []anthropic.Option{anthropic.WithLogger(logger)}
			if cfg.LLM.BaseURL != "" {
				opts = append(opts, anthropic.WithBaseURL(cfg.LLM.BaseURL))
			}
			provider = anthropic.New(cfg.LLM.APIKey, cfg.LLM.Model, exec, opts...)
		default:
			provider = openaicompat.New(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, exec,
				openaicompat.WithLogger(logger))
		}
		if inst != nil {
			provider = observer.WrapProvider(provider, inst)
		}
	} else {
		logger.Warn("no LLM API key configured; chat endpoints will report not configured")
	}

	// 6. Engine
	engine := skiff.NewEngine(provider, eventLog,
		skiff.WithWorkspace(cfg.Workspace.Path),
		skiff.WithHistoryLimit(cfg.Workspace.HistoryLimit),
		skiff.WithLogger(logger),
	)

	// 7. Channel adapter (optional)
	serverOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	var channel *telegram.Adapter
	if cfg.Telegram.Token != "" {
		channel = telegram.New(cfg.Telegram.Token, engine, telegram.WithLogger(logger))
		if err := channel.Start(); err != nil {
			return err
		}
		defer channel.Stop()
		serverOpts = append(serverOpts, httpapi.WithChannel(channel))
	}

	// 8. HTTP server
	api := httpapi.NewServer(engine, serverOpts...)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
