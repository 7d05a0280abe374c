package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds the client's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	QuickScans      *prometheus.CounterVec
	DeepScans       *prometheus.CounterVec
	StreamLines     *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors
func NewMetrics(runtimeMetrics bool) *Metrics {
	reg := prometheus.NewRegistry()
	if runtimeMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(collectors.NewGoCollector())
	}

	m := &Metrics{
		registry: reg,
		QuickScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_quick_scans_total",
			Help: "Quick scans by outcome (malicious, clean, error).",
		}, []string{"verdict"}),
		DeepScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_deep_scans_total",
			Help: "Deep scans by terminal status.",
		}, []string{"status"}),
		StreamLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_stream_lines_total",
			Help: "Streamed lines by parse outcome (token, done, error, end, skip).",
		}, []string{"kind"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_request_duration_seconds",
			Help:    "Backend request latency until response headers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.QuickScans, m.DeepScans, m.StreamLines, m.RequestDuration)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(endpoint string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (m *Metrics) countQuickScan(status Status) {
	if m == nil {
		return
	}
	m.QuickScans.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) countDeepScan(status DeepScanStatus) {
	if m == nil {
		return
	}
	m.DeepScans.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) countLine(kind LineKind) {
	if m == nil {
		return
	}
	m.StreamLines.WithLabelValues(kind.String()).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, log *logrus.Logger) {
	entry := componentLogger(log, "metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		entry.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Warn("metrics server stopped")
		}
	}()
}
