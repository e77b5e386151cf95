package configure

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/edgeflare/inventory/pkg/device"
	"go.uber.org/zap"
)

// Apply walks the configuration table and configures each device.
type Apply struct {
	store    device.Store
	pageSize int
	logger   *zap.Logger
}

// NewApply returns an Apply reading store in pages of pageSize. Zero lets
// the backend choose.
func NewApply(store device.Store, pageSize int, logger *zap.Logger) *Apply {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Apply{store: store, pageSize: pageSize, logger: logger}
}

// Run reads the whole table before configuring anything; a scan failure
// configures nothing.
func (a *Apply) Run(ctx context.Context) error {
	devices, err := device.ListAll(ctx, a.store, a.pageSize)
	if err != nil {
		a.logger.Error("failed to scan configuration table", zap.Error(err))
		return fmt.Errorf("failed to scan table: %w", err)
	}

	for _, d := range devices {
		a.logger.Info("configuring device", zap.String("device_id", d.DeviceID))
	}
	a.logger.Info("configuration applied", zap.Int("devices", len(devices)))
	return nil
}

// HandleScheduled is the Lambda entry point for a scheduled CloudWatch event.
func (a *Apply) HandleScheduled(ctx context.Context, ev events.CloudWatchEvent) error {
	a.logger.Debug("scheduled run", zap.String("id", ev.ID), zap.Time("time", ev.Time))
	return a.Run(ctx)
}
