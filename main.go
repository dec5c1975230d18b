package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/genesoup/config"
	"github.com/pthm-cable/genesoup/observer"
	"github.com/pthm-cable/genesoup/sim"
	"github.com/pthm-cable/genesoup/telemetry"
	"github.com/pthm-cable/genesoup/trace"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, trace and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = until interrupted)")
	statsWindow := flag.Int("stats-window", 0, "Stats window size in ticks (0 = use config)")
	traceEvery := flag.Int("trace-every", -1, "Trace published outputs every N ticks (0 = off, -1 = use config)")
	observerAddr := flag.String("observer", "", "Observer listen address, e.g. 127.0.0.1:8090 (empty = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// CLI overrides
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	if *traceEvery >= 0 {
		cfg.Trace.Every = *traceEvery
	}
	if *observerAddr != "" {
		cfg.Observer.Addr = *observerAddr
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rngSeed, *outputDir, *maxTicks); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, seed int64, outputDir string, maxTicks int64) error {
	om, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return err
	}
	if cfg.Telemetry.SQLite {
		if om == nil {
			slog.Warn("sqlite stats require an output directory, skipping")
		} else if err := om.EnableStatsDB(); err != nil {
			om.Close()
			return err
		}
	}

	opts := []sim.Option{sim.WithOutput(om)}
	if cfg.Trace.Every > 0 && om == nil {
		slog.Warn("trace requires an output directory, tracing disabled")
	}
	if cfg.Trace.Every > 0 && om != nil {
		f, err := om.Create("trace.jsonl.zst")
		if err != nil {
			om.Close()
			return err
		}
		tw, err := trace.NewWriter(f, cfg.Trace.Every)
		if err != nil {
			f.Close()
			om.Close()
			return err
		}
		opts = append(opts, sim.WithTrace(tw))
	}

	s, err := sim.New(cfg, seed, opts...)
	if err != nil {
		om.Close()
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("closing simulation", "error", err)
		}
	}()

	if cfg.Observer.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Observer.Addr,
			Handler:           observer.NewServer(s, cfg.Observer).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("observer listening", "addr", cfg.Observer.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("observer server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	slog.Info("starting simulation",
		"seed", seed,
		"max_ticks", maxTicks,
		"output_dir", om.Dir(),
	)

	err = s.Run(ctx, maxTicks)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted", "tick", s.Tick())
		return nil
	case err != nil:
		return err
	}
	slog.Info("max ticks reached", "tick", s.Tick())
	return nil
}
