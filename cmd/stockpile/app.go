package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockpile/internal/blob"
	"stockpile/internal/config"
	"stockpile/internal/core"
	"stockpile/internal/logging"
)

type appOptions struct {
	json  bool
	trace bool
}

// app holds the services shared by every command.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	backend *core.Backend
	store   *core.Store
	out     *printer

	metricsSrv  *http.Server
	metricsAddr string
}

func newApp(cfg *config.Config, stdout, stderr io.Writer, opts appOptions) (*app, error) {
	log := logging.New(cfg.Env, stderr)
	backend, err := core.OpenBackend(core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, backend: backend, out: &printer{w: stdout, json: opts.json}}

	rec, handler, err := newMetrics(cfg.Metrics.Recorder)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if cfg.Metrics.Addr != "" && handler != nil {
		if err := a.serveMetrics(cfg.Metrics.Addr, handler); err != nil {
			_ = backend.Close()
			return nil, err
		}
	}

	storeOpts := []core.Option{
		core.WithInitializer(backend.Initialize),
		core.WithLogger(log),
		core.WithMetrics(rec),
	}
	if opts.trace {
		storeOpts = append(storeOpts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	a.store = core.NewStore(backend.Repositories, storeOpts...)
	return a, nil
}

// newMetrics builds the store recorder and the handler exposing it. "none"
// yields neither.
func newMetrics(kind string) (core.MetricsRecorder, http.Handler, error) {
	switch kind {
	case "expvar":
		rec := core.NewExpvarMetricsRecorder("")
		mux := http.NewServeMux()
		mux.Handle("/debug/vars", expvar.Handler())
		return rec, mux, nil
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, fmt.Errorf("register store metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		return rec, mux, nil
	case "", "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics recorder %q", kind)
	}
}

func (a *app) serveMetrics(addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	a.metricsSrv = &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	a.metricsAddr = ln.Addr().String()
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics listener stopped", "error", err)
		}
	}()
	a.log.Info("metrics listener started", "addr", a.metricsAddr, "recorder", a.cfg.Metrics.Recorder)
	return nil
}

// blobStore opens the configured artifact store.
func (a *app) blobStore(ctx context.Context) (blob.Store, error) {
	s3 := a.cfg.Blob.S3
	return blob.Open(ctx, blob.Config{
		Driver: blob.Driver(a.cfg.Blob.Driver),
		FSRoot: a.cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          s3.Region,
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			PathStyle:       s3.PathStyle,
		},
	})
}

func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.log.Warn("metrics listener shutdown", "error", err)
		}
	}
	if err := a.backend.Close(); err != nil {
		a.log.Warn("close storage", "error", err)
	}
}
