// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command fakeapi serves a seeded in-memory SquidBay marketplace for trying
// the console without touching production:
//
//	fakeapi --addr 127.0.0.1:8089 &
//	SQUIDOPS_API_URL=http://127.0.0.1:8089 squidops
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/apitest"
)

var (
	addr     string
	adminKey string
	totpKey  string
	backup   []string
	empty    bool
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "fakeapi",
	Short: "Serve a fake SquidBay marketplace API",
	Long: `fakeapi serves the admin and public marketplace endpoints from memory.
State is lost on exit. Every write is accepted and visible to later reads.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         serve,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8089", "listen address")
	f.StringVar(&adminKey, "admin-key", apitest.DefaultAdminKey, "accepted admin key")
	f.StringVar(&totpKey, "totp-secret", "", "base32 TOTP secret; enables two-factor login")
	f.StringSliceVar(&backup, "backup-code", nil, "one-time backup code (repeatable)")
	f.BoolVar(&empty, "empty", false, "start with no seed data")
	f.BoolVarP(&verbose, "verbose", "v", false, "log every request")
}

func serve(cmd *cobra.Command, args []string) error {
	logCfg := zap.NewDevelopmentConfig()
	if !verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	opts := []apitest.Option{apitest.WithAdminKey(adminKey)}
	if !empty {
		opts = append(opts, apitest.WithSeed())
	}
	if totpKey != "" {
		opts = append(opts, apitest.WithTOTP(totpKey))
	}
	if len(backup) > 0 {
		opts = append(opts, apitest.WithBackupCodes(backup...))
	}
	market := apitest.NewMarketplace(opts...)

	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, market),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("FAKEAPI_LISTENING", zap.String("addr", addr), zap.Bool("seeded", !empty), zap.Bool("totp", totpKey != ""))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("FAKEAPI_SHUTDOWN")
	return srv.Shutdown(ctx)
}

func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
