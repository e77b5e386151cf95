package event

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BatchHandler processes an ordered batch of queued records.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []Record) error
}

// Runner feeds a connector subscription into a BatchHandler, one message per
// batch. A failing message is logged, returned to the broker and the loop
// moves on.
type Runner struct {
	conn    Connector
	topic   string
	handler BatchHandler
	logger  *zap.Logger
}

func NewRunner(conn Connector, topic string, handler BatchHandler, logger *zap.Logger) *Runner {
	return &Runner{conn: conn, topic: topic, handler: handler, logger: logger}
}

// Run blocks until ctx is done or the subscription closes.
func (r *Runner) Run(ctx context.Context) error {
	msgs, err := r.conn.Sub(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.topic, err)
	}
	r.logger.Info("consumer started", zap.String("topic", r.topic))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("consumer stopped", zap.String("topic", r.topic))
			return nil
		case msg, ok := <-msgs:
			if !ok {
				r.logger.Info("subscription closed", zap.String("topic", r.topic))
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg Message) {
	records := []Record{{MessageID: msg.ID, Body: string(msg.Body)}}

	if err := r.handler.HandleBatch(ctx, records); err != nil {
		r.logger.Error("failed to process message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		if err := msg.Nak(); err != nil {
			r.logger.Warn("failed to nak message", zap.String("message_id", msg.ID), zap.Error(err))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		r.logger.Warn("failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}
