// Package notify consumes inventory events from a queue and performs a
// deliberately slow downstream notification for every created device.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/edgeflare/inventory/pkg/event"
	"github.com/edgeflare/inventory/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultDelay is used when no positive delay is configured.
const DefaultDelay = 10 * time.Second

// Notifier handles batches of queued envelopes strictly in order.
type Notifier struct {
	delay  time.Duration
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

type Option func(*Notifier)

// WithSleep replaces the context aware wait, mainly for tests.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(n *Notifier) { n.sleep = f }
}

// New returns a Notifier waiting delay per created device. A delay <= 0
// selects DefaultDelay.
func New(delay time.Duration, logger *zap.Logger, opts ...Option) *Notifier {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{delay: delay, logger: logger, sleep: sleep}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Delay returns the effective wait per created device.
func (n *Notifier) Delay() time.Duration { return n.delay }

// HandleBatch processes records one after another. The first record that
// cannot be decoded aborts the batch so the queue redelivers it.
func (n *Notifier) HandleBatch(ctx context.Context, records []event.Record) error {
	for _, rec := range records {
		e, err := event.Decode(rec.Body)
		if err != nil {
			metrics.Notifications.WithLabelValues("unknown", "invalid").Inc()
			return fmt.Errorf("record %s: %w", rec.MessageID, err)
		}

		if e.Type != event.TypeDeviceCreated {
			metrics.Notifications.WithLabelValues(e.Type.Label(), "ignored").Inc()
			continue
		}

		if err := n.notify(ctx, e); err != nil {
			metrics.Notifications.WithLabelValues(e.Type.Label(), "canceled").Inc()
			return fmt.Errorf("record %s: %w", rec.MessageID, err)
		}
		metrics.Notifications.WithLabelValues(e.Type.Label(), "notified").Inc()
	}
	return nil
}

// HandleSQS is the Lambda entry point for an SQS trigger.
func (n *Notifier) HandleSQS(ctx context.Context, ev events.SQSEvent) error {
	return n.HandleBatch(ctx, event.RecordsFromSQS(ev))
}

func (n *Notifier) notify(ctx context.Context, e event.Event) error {
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("device_id", e.DeviceID),
		zap.String("name", e.Name),
	}

	n.logger.Info("starting notification", fields...)
	if err := n.sleep(ctx, n.delay); err != nil {
		return err
	}
	n.logger.Info("done notification", fields...)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
