// Package main is the entrypoint for the licverify license verification server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MacJediWizard/licverify/internal/api"
	"github.com/MacJediWizard/licverify/internal/app"
	"github.com/MacJediWizard/licverify/internal/config"
	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/MacJediWizard/licverify/internal/metrics"
	"github.com/MacJediWizard/licverify/internal/shutdown"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "licverify",
		Short: "licverify - JSON license verification server",
		Long: `licverify answers "is this license key valid right now?" over HTTP.

Keys are looked up in the configured store (static, file, postgres, sqlite
or redis) and classified as active, expired, banned or invalid.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_FILE")
	if defaultConfig == "" {
		defaultConfig = config.DefaultConfigPath
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig,
		"path to a YAML config file (env: CONFIG_FILE)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newCheckCmd(&configPath),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "licverify %s\n", Version)
			fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			fmt.Fprintf(out, "  Built:      %s\n", BuildDate)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP verification server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg, os.Stdout, Version)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			if err := serve(ctx, cfg, reg, logger); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			return nil
		},
	}
}

// openStore is swapped in tests.
var openStore = app.OpenStoreWithTimeout

// serve runs the HTTP server until ctx is cancelled, then shuts it down.
// Every resource opened here is released before serve returns.
func serve(ctx context.Context, cfg config.ServerConfig, reg *prometheus.Registry, logger zerolog.Logger) error {
	logger.Info().
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("env", string(cfg.Environment)).
		Str("store", string(cfg.Store)).
		Msg("Starting licverify server")

	shutdownCfg := shutdown.DefaultConfig()
	if cfg.ShutdownTimeout > 0 {
		shutdownCfg.Timeout = cfg.ShutdownTimeout
	}
	shutdownCfg.DrainTimeout = cfg.ShutdownDrain
	shutdownMgr := shutdown.NewManager(shutdownCfg, logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	shutdownMgr.Register("store", func(context.Context) error {
		store.Close()
		return nil
	})
	defer shutdownMgr.Shutdown(context.Background())

	promMetrics, err := metrics.NewPrometheusMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	promMetrics.SetStoreKind(string(store.Kind))

	verifier := license.NewVerifier(store, logger, license.WithRecorder(promMetrics))

	router := api.NewRouter(api.Config{
		AllowedOrigins: cfg.CORSOrigins,
		VerifyTimeout:  cfg.VerifyTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		StoreKind:      string(store.Kind),
		Gatherer:       reg,
		Shutdown:       shutdownMgr,
		Version:        Version,
		Commit:         Commit,
		BuildDate:      BuildDate,
	}, verifier, store.Pinger, promMetrics, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	shutdownMgr.Register("http", srv.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}

	if err := shutdownMgr.Shutdown(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		if serveErr == nil {
			serveErr = err
		}
	}

	if serveErr == nil {
		logger.Info().Msg("Server stopped gracefully")
	}
	return serveErr
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check <key>",
		Short: "Verify one license key against the configured store",
		Long: `Verify one license key and print the outcome as JSON.

Exit status is 0 for an active key, 2 for an expired, banned or unknown key,
and 1 when the store could not be consulted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg, cmd.ErrOrStderr(), Version)

			store, err := app.OpenStoreWithTimeout(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open %s store: %w", cfg.Store, err)
			}
			defer store.Close()

			return check(cmd.Context(), license.NewVerifier(store, logger), cfg.VerifyTimeout, args[0], cmd.OutOrStdout())
		},
	}
}

// check verifies key, writes the outcome body to out and maps it to an exit status.
func check(ctx context.Context, verifier *license.Verifier, timeout time.Duration, key string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome, err := verifier.Verify(ctx, key)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}

	switch outcome.Status {
	case license.OutcomeActive:
		return nil
	case license.OutcomeError:
		return exitError{code: 1}
	default:
		return exitError{code: 2}
	}
}
