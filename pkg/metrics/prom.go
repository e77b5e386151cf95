package metrics

import (
	"cmp"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_requests_total",
			Help: "Total number of inventory operations by operation and response status",
		},
		[]string{"op", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inventory_request_duration_seconds",
			Help:    "Duration of inventory operations including the event publish",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_events_published_total",
			Help: "Total number of device events published by type",
		},
		[]string{"type"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_publish_errors_total",
			Help: "Total number of failed event publishes by connector",
		},
		[]string{"connector"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_notifications_total",
			Help: "Total number of consumed notification records by event type and result",
		},
		[]string{"type", "result"},
	)
)

type PromServerOpts struct {
	Logger            *zap.Logger
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Logger:            zap.NewNop(),
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options
// The server gracefully shutdown when the provided context is canceled
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	// merge with defaults
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
		if opts.Logger != nil {
			effectiveOpts.Logger = opts.Logger
		}
	}
	logger := effectiveOpts.Logger

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr), zap.String("path", effectiveOpts.Path))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
