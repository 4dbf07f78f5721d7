package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/skyreader/internal/app"
	"github.com/blackmichael/skyreader/internal/config"
	"github.com/blackmichael/skyreader/internal/firehose"
	"github.com/blackmichael/skyreader/internal/httpserver"
	"github.com/blackmichael/skyreader/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	a, err := app.New(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("opened database", "path", cfg.DBPath)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.SignIn(ctx); err != nil {
		return err
	}
	a.LoadModeration(ctx)

	server := httpserver.NewServer(cfg, httpserver.Deps{
		Feeds:         a.Feeds,
		Threads:       a.Threads,
		Notifications: a.Notifications,
		Posts:         a.Client,
		Meta:          a.Meta,
		Mutations:     a.Mutations,
		Metrics:       a.Metrics,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if a.Client.Authenticated() {
		g.Go(func() error {
			a.RefreshSessions(gctx)
			return nil
		})
	}

	if cfg.FirehoseEnabled {
		subscriber := firehose.NewSubscriber(cfg.FirehoseURL, a.Meta, a.Repo, a.Client.DID, logger, a.Metrics)
		g.Go(func() error {
			if err := subscriber.Start(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("firehose subscriber: %w", err)
			}
			return nil
		})
	}

	logger.Info("server started",
		"port", cfg.Port,
		"did", a.Client.DID(),
		"firehose", cfg.FirehoseEnabled,
	)

	return g.Wait()
}
