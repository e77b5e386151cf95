package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/inventory/pkg/event"
	"github.com/edgeflare/inventory/pkg/inventory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inventory HTTP API",
	Long:  `Serves the device CRUD API and publishes DeviceCreated and DeviceDeleted events to the configured connector`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("listenAddr", "l", "", "HTTP listen address")
	f.String("events.connector", "", "connector events are published to")
	f.String("events.topic", "", "topic ARN, subject or name events are published to")
	f.Int("storage.pageSize", 0, "scan page size used by list")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	startMetrics(ctx, &wg)

	svc, cleanup, err := newInventoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return serveHTTP(ctx, newRouter(svc), cfg.ListenAddr)
}

// newInventoryService opens the inventory table and the event connector.
func newInventoryService(ctx context.Context) (*inventory.Service, func(), error) {
	store, closeStore, err := openStore(ctx, cfg.Storage, cfg.Storage.Table)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	conn, err := event.Dial(ctx, cfg.Events.Connector, cfg.Events.Config, log.Named(cfg.Events.Connector))
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("failed to connect events connector: %w", err)
	}

	log.Info("inventory service ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("table", cfg.Storage.Table),
		zap.String("connector", cfg.Events.Connector),
		zap.String("topic", cfg.Events.Topic))

	svc := inventory.NewService(store, event.NewTopicPublisher(conn, cfg.Events.Topic), log.Named("inventory"),
		inventory.WithPageSize(cfg.Storage.PageSize),
		inventory.WithConnectorName(cfg.Events.Connector),
	)
	return svc, func() {
		disconnect(cfg.Events.Connector, conn)
		closeStore()
	}, nil
}
