package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cloudmock/internal/blob"
	"cloudmock/internal/config"
	"cloudmock/internal/core"
	"cloudmock/internal/presets"
	"cloudmock/internal/server"
	"cloudmock/internal/snapshot"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mock API and the /__mock admin surface",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logrus.New()
		log.SetLevel(cfg.Level())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func registryFor(cfg config.Config) (*presets.Registry, error) {
	docs, err := presets.LoadFixtureFiles(cfg.Fixtures)
	if err != nil {
		return nil, err
	}
	return presets.Builtin(presets.Options{ResponseDelay: cfg.ResponseDelay, Fixtures: docs})
}

// metricsFor builds the recorder and its scrape handler for the configured
// backend. The none backend returns a nil handler.
func metricsFor(backend config.MetricsBackend) (core.MetricsRecorder, http.Handler, error) {
	switch backend {
	case config.MetricsPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := core.NewPrometheusMetrics(reg)
		if err != nil {
			return nil, nil, err
		}
		return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
	case config.MetricsExpvar:
		return core.NewExpvarMetricsRecorder("cloudmock"), expvar.Handler(), nil
	default:
		return core.NoopMetrics{}, nil, nil
	}
}

// build opens every backend named by cfg and returns the server plus a
// function releasing them.
func build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*server.Server, func(), error) {
	reg, err := registryFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	metrics, metricsHandler, err := metricsFor(cfg.Metrics)
	if err != nil {
		return nil, nil, err
	}
	store, err := core.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	var clock core.Clock = core.RealClock{}
	if cfg.VirtualClock {
		clock = core.NewVirtualClock(time.Now())
	}
	srv, err := server.New(ctx, server.Options{
		Store:          store,
		Registry:       reg,
		Archive:        snapshot.NewArchive(blobs, log),
		Selection:      cfg.Preset,
		Clock:          clock,
		EventDelay:     cfg.EventDelay,
		Log:            log,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	release := func() {
		srv.Close()
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("close store")
		}
	}
	return srv, release, nil
}

func serve(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	srv, release, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	hs := &http.Server{Addr: cfg.Addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.ListenAndServe()
	}()
	log.WithFields(logrus.Fields{
		"addr":    cfg.Addr,
		"storage": cfg.Storage.Driver,
		"blob":    cfg.Blob.Driver,
		"metrics": cfg.Metrics,
		"presets": srv.Selection(),
	}).Info("cloudmock listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("cloudmock stopped")
	return nil
}
