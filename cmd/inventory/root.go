package main

import (
	"fmt"
	"os"

	"github.com/edgeflare/inventory/pkg/config"
	"github.com/edgeflare/inventory/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:     "inventory",
	Short:   "Device inventory service",
	Long:    `inventory serves a device CRUD API, publishes device events and consumes them for notification and configuration`,
	Version: config.Version,
	// SilenceUsage keeps runtime errors from printing the usage text.
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Main() {
	defer func() {
		if log != nil {
			_ = log.Sync()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/inventory.yaml)")
	f.StringP("log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	f.String("storage.backend", "", "device storage backend (dynamodb, postgres, memory)")
	f.String("storage.table", "", "inventory table name")
	f.String("storage.region", "", "AWS region of the DynamoDB table")
	f.String("storage.endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	f.String("storage.connString", "", "PostgreSQL connection string")
	f.Bool("metrics.enabled", true, "serve Prometheus metrics")
	f.String("metrics.addr", "", "Prometheus metrics listen address")

	rootCmd.AddCommand(serveCmd, notifyCmd, configureCmd, lambdaCmd, localCmd)
}

func initConfig(cmd *cobra.Command, _ []string) error {
	v := config.New(cfgFile)
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.BindPFlag("logLevel", cmd.Flags().Lookup("log-level")); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	var err error
	cfg, err = config.Load(v)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log, err = logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.Info("using config file", zap.String("path", used))
	}
	return nil
}
