package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeflare/inventory/pkg/config"
	"github.com/edgeflare/inventory/pkg/device"
	"github.com/edgeflare/inventory/pkg/device/dynamo"
	"github.com/edgeflare/inventory/pkg/device/memory"
	"github.com/edgeflare/inventory/pkg/device/postgres"
	"github.com/edgeflare/inventory/pkg/httputil"
	mw "github.com/edgeflare/inventory/pkg/httputil/middleware"
	"github.com/edgeflare/inventory/pkg/inventory"
	"github.com/edgeflare/inventory/pkg/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	// Register built-in connectors
	_ "github.com/edgeflare/inventory/pkg/event/peer/debug"
	_ "github.com/edgeflare/inventory/pkg/event/peer/http"
	_ "github.com/edgeflare/inventory/pkg/event/peer/kafka"
	_ "github.com/edgeflare/inventory/pkg/event/peer/memory"
	_ "github.com/edgeflare/inventory/pkg/event/peer/mqtt"
	_ "github.com/edgeflare/inventory/pkg/event/peer/nats"
	_ "github.com/edgeflare/inventory/pkg/event/peer/postgres"
	_ "github.com/edgeflare/inventory/pkg/event/peer/sns"
	_ "github.com/edgeflare/inventory/pkg/event/peer/sqs"
)

// openStore builds the configured storage backend for table. The returned
// close function releases its connections.
func openStore(ctx context.Context, sc config.StorageConfig, table string) (device.Store, func(), error) {
	switch sc.Backend {
	case config.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.ClientOptions{Region: sc.Region, Endpoint: sc.Endpoint})
		if err != nil {
			return nil, nil, err
		}
		return dynamo.New(client, table), func() {}, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, sc.ConnString)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		store := postgres.New(pool, table)
		if err := store.EnsureTable(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case config.BackendMemory:
		return memory.New(sc.PageSize), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
}

func startMetrics(ctx context.Context, wg *sync.WaitGroup) {
	if !cfg.Metrics.Enabled {
		return
	}
	metrics.StartPrometheusServer(ctx, wg, &metrics.PromServerOpts{
		Logger: log.Named("metrics"),
		Addr:   cfg.Metrics.Addr,
	})
}

func corsOptions() *mw.CORSOptions {
	if len(cfg.CORS.AllowedOrigins) == 0 {
		return nil
	}
	return &mw.CORSOptions{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Origin", mw.RequestIDHeader},
		AllowCredentials: cfg.CORS.AllowCredentials,
	}
}

// newRouter wires the default middleware and the inventory routes.
func newRouter(svc *inventory.Service) *httputil.Router {
	r := httputil.NewRouter(httputil.WithLogger(log.Named("http")))
	r.Use(
		mw.RequestID,
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: log.Named("access")}),
		mw.Recover(log),
		mw.CORSWithOptions(corsOptions()),
	)
	svc.Routes(r)
	return r
}

// serveHTTP runs r until ctx is done and then drains it within 10s.
func serveHTTP(ctx context.Context, r *httputil.Router, addr string) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- r.ListenAndServe(addr)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	log.Info("server gracefully stopped")
	return nil
}

func disconnect(name string, c interface{ Disconnect() error }) {
	if err := c.Disconnect(); err != nil {
		log.Warn("failed to disconnect connector", zap.String("connector", name), zap.Error(err))
	}
}
