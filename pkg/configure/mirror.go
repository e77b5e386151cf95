// Package configure keeps a configuration table in step with the inventory
// and periodically applies configuration to every known device.
package configure

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/edgeflare/inventory/pkg/device"
	"github.com/edgeflare/inventory/pkg/event"
	"go.uber.org/zap"
)

// Mirror copies device ids from inventory events into the configuration table.
type Mirror struct {
	store  device.Store
	logger *zap.Logger
}

func NewMirror(store device.Store, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{store: store, logger: logger}
}

// HandleBatch never fails: malformed records are skipped and storage errors
// are logged so the rest of the batch still applies.
func (m *Mirror) HandleBatch(ctx context.Context, records []event.Record) error {
	for _, rec := range records {
		e, err := event.Decode(rec.Body)
		if err != nil {
			m.logger.Warn("failed to parse notification, skipping",
				zap.String("message_id", rec.MessageID),
				zap.String("body", rec.Body),
				zap.Error(err))
			continue
		}

		m.logger.Info("inventory event",
			zap.String("type", string(e.Type)),
			zap.String("device_id", e.DeviceID))

		switch e.Type {
		case event.TypeDeviceCreated:
			if err := m.store.Put(ctx, device.Device{DeviceID: e.DeviceID}); err != nil {
				m.logger.Error("failed to store device", zap.String("device_id", e.DeviceID), zap.Error(err))
			}
		case event.TypeDeviceDeleted:
			if err := m.store.Remove(ctx, e.DeviceID); err != nil {
				m.logger.Error("failed to delete device", zap.String("device_id", e.DeviceID), zap.Error(err))
			}
		}
	}
	return nil
}

// HandleSQS is the Lambda entry point for an SQS trigger.
func (m *Mirror) HandleSQS(ctx context.Context, ev events.SQSEvent) error {
	return m.HandleBatch(ctx, event.RecordsFromSQS(ev))
}
