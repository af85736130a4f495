package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/backtester/internal/dispatch"
	"github.com/atlas-desktop/backtester/internal/httpapi"
	"github.com/atlas-desktop/backtester/internal/metricsserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only status API and Prometheus metrics servers",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.Duration("health-interval", time.Minute, "how often to run the dispatcher health check")
}

// runServe starts internal/httpapi's status server and
// internal/metricsserver's Prometheus server side by side, plus a
// background loop that periodically runs the dispatcher's HealthCheck
// and feeds its counts into the metrics gauges. It blocks until SIGINT
// or SIGTERM, then shuts the metrics server down gracefully; the status
// server is not shut down and stops only when the process exits.
func runServe(cmd *cobra.Command, args []string) error {
	healthInterval, _ := cmd.Flags().GetDuration("health-interval")

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	self, err := os.Executable()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}
	d := dispatch.New(a.logger, a.cfg.VarDir, self, a.repos.Runs)

	reg := prometheus.NewRegistry()
	metrics := metricsserver.NewMetrics(reg)

	statusSrv := httpapi.NewServer(a.logger, a.cfg.HTTPHost, a.cfg.HTTPPort, a.repos.Runs, a.repos.Monitors, a.registry)
	metricsSrv := metricsserver.NewServer(a.logger, a.cfg.HTTPHost, a.cfg.MetricsPort, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- statusSrv.Start() }()
	go func() { errCh <- metricsSrv.Start(ctx) }()
	go runHealthCheckLoop(ctx, a, d, metrics, healthInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		a.logger.Info("serve: shutdown signal received")
		cancel()
	case err := <-errCh:
		cancel()
		if err != nil {
			return fail(exitFatalOrLocked, fmt.Errorf("serve: server exited: %w", err))
		}
	}
	return nil
}

// runHealthCheckLoop runs the dispatcher health check on a fixed
// interval and records its results as Prometheus gauges/counters,
// until ctx is cancelled.
func runHealthCheckLoop(ctx context.Context, a *app, d *dispatch.Dispatcher, metrics *metricsserver.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale, timedOut, err := d.HealthCheck(time.Now(), a.registry.ListStrategies())
			if err != nil {
				a.logger.Warn("serve: health check failed", zap.Error(err))
				continue
			}
			metrics.RecordHealthCheck(time.Now(), stale, timedOut)
		}
	}
}
