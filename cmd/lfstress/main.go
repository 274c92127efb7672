package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	lferrors "github.com/23skdu/lockfree/internal/errors"
	"github.com/23skdu/lockfree/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, an optional .env file, LOCKFREE_* environment
// variables and finally command line flags.
func loadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, lferrors.WrapConfigurationError(err, "lfstress.loadConfig", "load .env")
	}

	cfg := DefaultConfig()
	if err := envconfig.Process("LOCKFREE", &cfg); err != nil {
		return Config{}, lferrors.WrapConfigurationError(err, "lfstress.loadConfig", "process LOCKFREE_ environment")
	}

	fs := flag.NewFlagSet("lfstress", flag.ContinueOnError)
	fs.StringVar(&cfg.Structure, "structure", cfg.Structure, "Container to stress: "+strings.Join(StructureNames(), ", "))
	fs.IntVar(&cfg.Producers, "producers", cfg.Producers, "Number of producer goroutines")
	fs.IntVar(&cfg.Consumers, "consumers", cfg.Consumers, "Number of consumer goroutines")
	fs.IntVar(&cfg.ItemsPerProducer, "items", cfg.ItemsPerProducer, "Distinct values pushed by each producer")
	fs.IntVar(&cfg.HazardSlots, "hazard-slots", cfg.HazardSlots, "Hazard pointer table size (hazard_stack)")
	fs.IntVar(&cfg.PushRate, "push-rate", cfg.PushRate, "Pushes per second per producer, 0 for unlimited")
	fs.IntVar(&cfg.PushBurst, "push-burst", cfg.PushBurst, "Pushes a producer may make back to back when paced, 0 for one second's worth")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Abort the run after this long")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Address for the Prometheus /metrics endpoint, empty to disable")
	fs.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "Write a parquet run report to this path")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or console")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := ValidateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: os.Stdout})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := Run(ctx, cfg, logger)
	if res == nil {
		return runErr
	}

	if cfg.ReportPath != "" {
		if err := WriteReport(cfg.ReportPath, []RunReport{NewRunReport(res)}); err != nil {
			logger.Error().Err(err).Str("path", cfg.ReportPath).Msg("Failed to write report")
			return err
		}
		logger.Info().Str("path", cfg.ReportPath).Msg("Report written")
	}

	if runErr != nil {
		return runErr
	}
	if !res.Passed() {
		return fmt.Errorf("stress run %s failed verification", res.RunID)
	}
	return nil
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("address", addr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Failed to start metrics server")
		}
	}()
	return srv
}
