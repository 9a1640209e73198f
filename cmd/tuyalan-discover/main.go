// Command tuyalan-discover runs the UDP scanner for a configurable
// duration and prints discovered devices as JSON, per SPEC_FULL.md §2.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	tuyalan "github.com/nexus-edge/tuyalan"
	"github.com/nexus-edge/tuyalan/config"
	"github.com/nexus-edge/tuyalan/metrics"
)

func main() {
	logger := newLogger("info", "console")

	configPath := os.Getenv("TUYALAN_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = newLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry(prometheus.DefaultRegisterer)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	scanner := tuyalan.NewScannerFromConfig(*cfg)
	logger.Info().Dur("timeout", cfg.Scanner.Timeout).Ints("ports", cfg.Scanner.Ports).Msg("starting scan")

	found, err := scanner.Scan(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("scan failed")
	}
	if reg != nil {
		reg.ScanDevicesFound.Set(float64(len(found)))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(found); err != nil {
		logger.Fatal().Err(err).Msg("failed to encode results")
	}
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}
