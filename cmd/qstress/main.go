// Command qstress hammers a WorkQueue with concurrent producers and consumers
// and verifies that nothing is lost or delivered twice.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ordoaetheris/workqueue/internal/stress"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "qstress: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	v, err := loadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger := newLogger(v.GetString("log-format"), v.GetBool("verbose"))
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		logger.Debug(fmt.Sprintf(format, a...))
	})); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}

	cfg := stress.Config{
		Producers:   v.GetInt("producers"),
		Consumers:   v.GetInt("consumers"),
		Items:       v.GetInt("items"),
		Runs:        v.GetInt("runs"),
		JitterOneIn: v.GetInt("jitter-one-in"),
		MaxJitter:   v.GetDuration("max-jitter"),
		Timeout:     v.GetDuration("timeout"),
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to shut down meter provider", "error", err)
		}
	}()

	runner, err := stress.NewRunner(cfg, logger, mp, os.Stderr)
	if err != nil {
		return err
	}

	logger.Info("starting stress runs",
		"producers", cfg.Producers,
		"consumers", cfg.Consumers,
		"items", cfg.Items,
		"runs", cfg.Runs)

	start := time.Now()
	results, err := runner.RunAll(ctx)
	logMetrics(context.Background(), reader, logger)
	if err != nil {
		logger.Error("stress failed", "completed_runs", len(results), "error", err)
		return err
	}

	logger.Info("stress passed", "runs", len(results), "elapsed", time.Since(start))
	return nil
}

func loadConfig(args []string) (*viper.Viper, error) {
	def := stress.DefaultConfig()

	flags := pflag.NewFlagSet("qstress", pflag.ContinueOnError)
	flags.Int("producers", def.Producers, "number of producer goroutines")
	flags.Int("consumers", def.Consumers, "number of consumer goroutines")
	flags.Int("items", def.Items, "distinct items put per run")
	flags.Int("runs", def.Runs, "number of runs, each on a fresh queue")
	flags.Int("jitter-one-in", def.JitterOneIn, "pause before roughly one in N operations (0 disables)")
	flags.Duration("max-jitter", def.MaxJitter, "upper bound of a single pause")
	flags.Duration("timeout", def.Timeout, "deadline for a single run")
	flags.String("log-format", "text", "log format: text or json")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("QSTRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

func newLogger(format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// logMetrics reports the queue counters accumulated over all runs.
func logMetrics(ctx context.Context, reader *sdkmetric.ManualReader, logger *slog.Logger) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		logger.Warn("failed to collect metrics", "error", err)
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			logger.Info("metric", "name", m.Name, "value", total)
		}
	}
}
