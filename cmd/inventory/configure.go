package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/inventory/pkg/configure"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Maintain and apply device configuration",
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror inventory events into the configuration table",
	RunE:  runMirror,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Configure every device in the configuration table",
	Long:  `Applies configuration once, or every --interval until interrupted`,
	RunE:  runApply,
}

var applyInterval time.Duration

func init() {
	configureCmd.PersistentFlags().String("configure.table", "", "configuration table name")
	addConsumerFlags(mirrorCmd)
	applyCmd.Flags().DurationVar(&applyInterval, "interval", 0, "repeat the run at this interval")

	configureCmd.AddCommand(mirrorCmd, applyCmd)
}

func runMirror(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	startMetrics(ctx, &wg)

	store, closeStore, err := openStore(ctx, cfg.Storage, cfg.Configure.Table)
	if err != nil {
		return fmt.Errorf("failed to open configuration store: %w", err)
	}
	defer closeStore()

	return consume(ctx, configure.NewMirror(store, log.Named("mirror")))
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Storage, cfg.Configure.Table)
	if err != nil {
		return fmt.Errorf("failed to open configuration store: %w", err)
	}
	defer closeStore()

	apply := configure.NewApply(store, cfg.Storage.PageSize, log.Named("apply"))
	if applyInterval <= 0 {
		return apply.Run(ctx)
	}
	return runEvery(ctx, applyInterval, apply.Run)
}

// runEvery calls f now and then on every tick. Failed runs are logged and
// retried on the next tick.
func runEvery(ctx context.Context, interval time.Duration, f func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := f(ctx); err != nil {
			log.Error("scheduled run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
