package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/muaalem/internal/app"
	"github.com/MrWong99/muaalem/internal/config"
	"github.com/MrWong99/muaalem/internal/observe"
)

type serveOptions struct {
	configPath string
	envFiles   []string
	watch      bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, cmd.Flags().Changed("config"))
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default: .env when present)")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "reload the configuration file when it changes")
	return cmd
}

func runServe(parent context.Context, opts serveOptions, explicitConfig bool) error {
	if parent == nil {
		parent = context.Background()
	}

	// ── Environment ───────────────────────────────────────────────────────────
	if err := config.LoadEnv(opts.envFiles...); err != nil {
		return err
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, fromFile, err := loadConfig(opts.configPath, explicitConfig)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return err
	}
	effective := cfg.WithDefaults()

	// ── Logger ────────────────────────────────────────────────────────────────
	levels := new(slog.LevelVar)
	levels.Set(observe.ParseLevel(string(effective.Server.LogLevel)))
	slog.SetDefault(observe.NewLogger(os.Stderr, string(effective.Server.LogFormat), levels))

	slog.Info("muaalem starting",
		"version", app.Version,
		"config", configSource(opts.configPath, fromFile),
		"listen_addr", effective.Server.ListenAddr,
		"vocabulary", vocabularySource(effective.Engine.VocabularyPath),
		"workers", effective.Engine.Workers,
		"log_level", effective.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.WithLevelVar(levels))
	if err != nil {
		return err
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if fromFile && opts.watch {
		w, err := config.NewWatcher(opts.configPath, func(_, next *config.Config) {
			if err := application.Reload(next); err != nil {
				slog.Error("config reload failed", "err", err)
			}
		}, config.WithEnv(os.LookupEnv))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), effective.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	shutdownErr := application.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(runErr, shutdownErr)
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	slog.Info("goodbye")
	return nil
}

// loadConfig reads path. A missing file is only an error when the path was
// given explicitly; otherwise defaults are used.
func loadConfig(path string, explicit bool) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return &config.Config{}, false, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return nil, false, err
}

func configSource(path string, fromFile bool) string {
	if fromFile {
		return path
	}
	return "(defaults)"
}

func vocabularySource(path string) string {
	if path == "" {
		return "(built-in)"
	}
	return path
}
