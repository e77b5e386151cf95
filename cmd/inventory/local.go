package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/edgeflare/inventory/pkg/config"
	"github.com/edgeflare/inventory/pkg/configure"
	"github.com/edgeflare/inventory/pkg/event"
	"github.com/edgeflare/inventory/pkg/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const localTopic = "inventory"

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run the API and both consumers in one process",
	Long: `Runs the HTTP API, the notifier and the configuration mirror against in-memory
tables and an in-memory event broker. Nothing is persisted.`,
	RunE: runLocal,
}

func init() {
	localCmd.Flags().StringP("listenAddr", "l", "", "HTTP listen address")
	localCmd.Flags().Int("notify.delayMs", 0, "wait per created device in milliseconds")
}

func runLocal(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Storage.Backend = config.BackendMemory
	cfg.Events.Connector = event.ConnectorMemory
	cfg.Events.Topic = localTopic
	cfg.Notify.Connector = event.ConnectorMemory
	cfg.Notify.Source = localTopic

	var wg sync.WaitGroup
	startMetrics(ctx, &wg)

	svc, cleanup, err := newInventoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	configStore, _, err := openStore(ctx, cfg.Storage, cfg.Configure.Table)
	if err != nil {
		return err
	}

	consumers := map[string]event.BatchHandler{
		"notify": notify.New(cfg.Notify.Delay(), log.Named("notify")),
		"mirror": configure.NewMirror(configStore, log.Named("mirror")),
	}
	for name, handler := range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consume(ctx, handler); err != nil {
				log.Error("consumer stopped", zap.String("consumer", name), zap.Error(err))
				stop()
			}
		}()
	}

	err = serveHTTP(ctx, newRouter(svc), cfg.ListenAddr)
	stop()
	wg.Wait()
	return err
}
