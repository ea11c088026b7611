package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/claudebridge/internal/api"
	"github.com/user/claudebridge/internal/config"
	"github.com/user/claudebridge/internal/gateway"
	"github.com/user/claudebridge/internal/observability"
	"github.com/user/claudebridge/internal/prompt"
	"github.com/user/claudebridge/internal/runtime"
	"github.com/user/claudebridge/internal/scheduler"
	"github.com/user/claudebridge/internal/state"
)

// drainTimeout bounds how long shutdown waits for in-flight runs.
const drainTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "claudebridge.pid")
}

func writePIDFile(cfg *config.Config) (string, error) {
	path := pidPath(cfg)
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runtimeOptions(cfg *config.Config) runtime.Options {
	return runtime.Options{
		Path:               cfg.Claude.Path,
		Entry:              cfg.Claude.Entry,
		Script:             cfg.Claude.Script,
		Timeout:            cfg.Timeout(),
		MaxBudgetUSD:       cfg.Claude.MaxBudgetUSD,
		AllowedTools:       cfg.Claude.AllowedTools,
		SkipPermissions:    cfg.Claude.SkipPermissions,
		AllowedDirectories: cfg.Claude.AllowedDirectories,
		ExtraPath:          cfg.Claude.ExtraPath,
		APIKey:             cfg.Claude.APIKey,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidFile, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.RegisterMetrics()

	registry := state.NewFileRegistry(cfg.SessionsFile(), cfg.SessionMaxAge())
	registry.Open(ctx)

	queue := gateway.NewQueue(int64(cfg.MaxConcurrent))
	gw := gateway.New(registry, runtime.New(runtimeOptions(cfg)), queue,
		gateway.WithTokenCounter(prompt.NewEngine(cfg.Tokenizer)),
	)

	sched := scheduler.New(registry, cfg.Sessions.PruneSchedule)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewServer(gw, registry, cfg.Server.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func(errc chan<- error) {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}(serveErr)

	slog.Info("claudebridge started",
		"addr", cfg.Addr(),
		"data_dir", cfg.DataDir,
		"sessions_file", cfg.SessionsFile(),
		"max_concurrent", cfg.MaxConcurrent,
		"claude", cfg.Claude.Path,
		"timeout", cfg.Timeout(),
		"pid_file", pidFile,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err, ok := <-serveErr:
			if ok {
				shutdown(ctx, httpServer, queue, registry)
				return fmt.Errorf("http server: %w", err)
			}
			serveErr = nil
		case sig := <-sigChan:
			shutdown(ctx, httpServer, queue, registry)
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					return fmt.Errorf("get executable path: %w", err)
				}
				// Clean up PID file before re-exec
				os.Remove(pidFile)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					return fmt.Errorf("re-exec: %w", err)
				}
			}
			slog.Info("shut down", "signal", sig)
			return nil
		}
	}
}

// shutdown stops accepting requests, waits for in-flight runs and flushes
// the registry.
func shutdown(ctx context.Context, srv *http.Server, queue *gateway.Queue, registry *state.Registry) {
	slog.Info("shutting down", "active_runs", queue.ActiveCount(), "queued_keys", queue.Len())

	shutdownCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if !queue.WaitIdle(drainTimeout) {
		slog.Warn("runs still active after drain timeout", "active_runs", queue.ActiveCount())
	}
	if err := registry.Flush(ctx); err != nil {
		slog.Error("failed to flush session registry", "error", err)
	}
}
