package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/edgeflare/inventory/pkg/event"
	"github.com/edgeflare/inventory/pkg/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Consume device events and notify the downstream service",
	Long:  `Reads inventory events from the configured source and performs a delayed notification for every created device`,
	RunE:  runNotify,
}

func init() {
	addConsumerFlags(notifyCmd)
	notifyCmd.Flags().Int("notify.delayMs", 0, "wait per created device in milliseconds")
}

func addConsumerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("notify.connector", "", "connector events are consumed from")
	f.String("notify.source", "", "queue, topic or subject events are consumed from")
}

func runNotify(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	startMetrics(ctx, &wg)

	n := notify.New(cfg.Notify.Delay(), log.Named("notify"))
	log.Info("notifier ready", zap.Duration("delay", n.Delay()))
	return consume(ctx, n)
}

// consume runs handler over the configured notification source until ctx is
// done.
func consume(ctx context.Context, handler event.BatchHandler) error {
	if cfg.Notify.Source == "" {
		return errors.New("notify.source is required")
	}

	conn, err := event.Dial(ctx, cfg.Notify.Connector, cfg.Notify.Config, log.Named(cfg.Notify.Connector))
	if err != nil {
		return fmt.Errorf("failed to connect notify connector: %w", err)
	}
	defer disconnect(cfg.Notify.Connector, conn)

	return event.NewRunner(conn, cfg.Notify.Source, handler, log.Named("runner")).Run(ctx)
}
