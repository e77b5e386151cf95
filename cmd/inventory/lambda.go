package main

import (
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/edgeflare/inventory/pkg/configure"
	"github.com/edgeflare/inventory/pkg/notify"
	"github.com/spf13/cobra"
)

// The lambda subcommands hand control to the Lambda runtime, which invokes
// the handler once per event. Clients are built once per execution
// environment and reused across invocations.
var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda function",
}

var lambdaAPICmd = &cobra.Command{
	Use:   "api",
	Short: "Serve API Gateway proxy requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, _, err := newInventoryService(cmd.Context())
		if err != nil {
			return err
		}
		lambda.Start(svc.HandleAPIGateway)
		return nil
	},
}

var lambdaNotifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Handle SQS batches of device events",
	RunE: func(_ *cobra.Command, _ []string) error {
		lambda.Start(notify.New(cfg.Notify.Delay(), log.Named("notify")).HandleSQS)
		return nil
	},
}

var lambdaMirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror SQS batches of device events into the configuration table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, _, err := openStore(cmd.Context(), cfg.Storage, cfg.Configure.Table)
		if err != nil {
			return fmt.Errorf("failed to open configuration store: %w", err)
		}
		lambda.Start(configure.NewMirror(store, log.Named("mirror")).HandleSQS)
		return nil
	},
}

var lambdaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply configuration on a CloudWatch schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, _, err := openStore(cmd.Context(), cfg.Storage, cfg.Configure.Table)
		if err != nil {
			return fmt.Errorf("failed to open configuration store: %w", err)
		}
		lambda.Start(configure.NewApply(store, cfg.Storage.PageSize, log.Named("apply")).HandleScheduled)
		return nil
	},
}

func init() {
	lambdaCmd.PersistentFlags().String("configure.table", "", "configuration table name")
	lambdaCmd.AddCommand(lambdaAPICmd, lambdaNotifyCmd, lambdaMirrorCmd, lambdaApplyCmd)
}
