// Package metricsserver exposes dispatcher health as
// Prometheus gauges over HTTP — ambient observability alongside the
// engine, not a backtesting feature in its own right.
package metricsserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics is the fixed set of dispatcher gauges/counters. Only
// RecordHealthCheck (driven by the serve command's health-check loop)
// updates them; RunningJobs and QueueDepth are registered but never set.
type Metrics struct {
	RunningJobs        prometheus.Gauge
	QueueDepth         prometheus.Gauge
	LastHealthCheckAge prometheus.Gauge
	StalePendingTotal  prometheus.Counter
	TimedOutRunning    prometheus.Counter
}

// NewMetrics registers the gauge/counter set against reg and returns the
// handles used to update them.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RunningJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "backtester",
			Name:      "dispatcher_running_jobs",
			Help:      "Number of job subprocesses currently running.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "backtester",
			Name:      "dispatcher_queue_depth",
			Help:      "Number of run records in pending status.",
		}),
		LastHealthCheckAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "backtester",
			Name:      "dispatcher_last_health_check_age_seconds",
			Help:      "Seconds since the last completed HealthCheck pass.",
		}),
		StalePendingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backtester",
			Name:      "dispatcher_stale_pending_total",
			Help:      "Cumulative count of pending run records flagged stale.",
		}),
		TimedOutRunning: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backtester",
			Name:      "dispatcher_timed_out_running_total",
			Help:      "Cumulative count of running run records marked failed for exceeding the stall threshold.",
		}),
	}
	reg.MustRegister(m.RunningJobs, m.QueueDepth, m.LastHealthCheckAge, m.StalePendingTotal, m.TimedOutRunning)
	return m
}

// RecordHealthCheck updates the gauges/counters from one HealthCheck pass.
func (m *Metrics) RecordHealthCheck(at time.Time, stalePending, timedOutRunning int) {
	m.LastHealthCheckAge.Set(0)
	m.StalePendingTotal.Add(float64(stalePending))
	m.TimedOutRunning.Add(float64(timedOutRunning))
}

// Server serves /metrics on its own port, independent of internal/httpapi's
// status surface, matching the teacher's ServerConfig.MetricsPort split
// between the app port and the metrics port.
type Server struct {
	logger *zap.Logger
	addr   string
	srv    *http.Server
}

// NewServer wires reg's registry into a dedicated /metrics handler.
func NewServer(logger *zap.Logger, host string, port int, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", host, port)
	return &Server{
		logger: logger,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start runs the metrics HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", zap.String("addr", s.addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
