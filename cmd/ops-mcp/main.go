// Copyright 2025 Joseph Cumines
//
// MCP server for google.longrunning.Operations - JSON-RPC 2.0 over stdio

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

	"go.uber.org/zap"

	"github.com/joeycumines/lro-client/internal/config"
	"github.com/joeycumines/lro-client/internal/operations"
	"github.com/joeycumines/lro-client/internal/server"
	"github.com/joeycumines/lro-client/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ops-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := transport.NewMetrics(true)
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, metrics, logger)
		defer shutdown()
	}

	audit, err := server.NewAuditLogger(cfg.AuditLogFile)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer audit.Close()

	client, err := operations.NewClient(cfg,
		operations.WithLogger(logger.Named("client")),
		operations.WithRecorder(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations client: %w", err)
	}
	defer client.Close()

	srv := server.NewServer(client, cfg,
		server.WithLogger(logger.Named("mcp")),
		server.WithAuditLogger(audit),
		server.WithMetrics(metrics),
	)

	logger.Info("serving MCP over stdio",
		zap.String("server_addr", cfg.ServerAddr),
		zap.Bool("tls", cfg.ServerTLS),
		zap.Bool("audit", audit.IsEnabled()),
		zap.Float64("rate_limit", cfg.RateLimit),
	)

	// a blocked stdin read is abandoned on shutdown
	tr := transport.NewStdioTransport(os.Stdin, os.Stdout)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, tr) }()

	select {
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		_ = tr.Close()
		return nil
	}
}

// serveMetrics exposes metrics on addr in the background, returning a
// function that stops the listener.
func serveMetrics(addr string, metrics *transport.Metrics, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}
}
