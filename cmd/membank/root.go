package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hupe1980/membank"
	"github.com/hupe1980/membank/config"
	mprom "github.com/hupe1980/membank/metrics/prometheus"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configFile  string
	envFile     string
	metricsAddr string
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg     config.Config
	logger  *membank.Logger
	metrics membank.MetricsCollector
	compute membank.ComputeContext
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "membank",
		Short:         "Memory bank nearest neighbor mining",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML config file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :2112)")

	cmd.AddCommand(newMineCmd(&flags), newPredictCmd(&flags), newEvalCmd(&flags), newTranslateCmd())
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

func newLogger(l config.Log) (*membank.Logger, error) {
	lvl, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	if l.Format == "json" {
		return membank.NewJSONLogger(lvl), nil
	}
	return membank.NewTextLogger(lvl), nil
}

// setup loads the environment, config, logger and metrics shared by every
// subcommand. The returned stop function shuts the metrics server down.
func setup(ctx context.Context, flags *rootFlags) (*app, func(), error) {
	if err := loadEnv(flags.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(flags.configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: membank.NoopMetricsCollector{},
		compute: computeContext(cfg.Compute),
	}
	stop := func() {}

	if flags.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		a.metrics = mprom.New(reg)
		srv := &http.Server{
			Addr:              flags.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorContext(ctx, "metrics server", "error", err)
			}
		}()
		logger.InfoContext(ctx, "serving metrics", slog.String("addr", flags.metricsAddr))
		stop = func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
	}
	return a, stop, nil
}

func (a *app) bankOptions() []membank.Option {
	return []membank.Option{
		membank.WithLogger(a.logger),
		membank.WithMetricsCollector(a.metrics),
		membank.WithComputeContext(a.compute),
	}
}
