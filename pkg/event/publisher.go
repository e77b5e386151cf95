package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// TopicPublisher publishes events to one topic through a Connector.
type TopicPublisher struct {
	conn  Connector
	topic string
	now   func() time.Time
}

func NewTopicPublisher(conn Connector, topic string) *TopicPublisher {
	return &TopicPublisher{conn: conn, topic: topic, now: time.Now}
}

// Publish encodes e and sends it. The event is wrapped in an Envelope unless
// the connector's broker does that on its own.
func (p *TopicPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if ne, ok := p.conn.(NativeEnvelope); !ok || !ne.NativeEnvelope() {
		if payload, err = Wrap(p.topic, payload, p.now()); err != nil {
			return err
		}
	}

	if err := p.conn.Pub(ctx, p.topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Topic returns the destination topic.
func (p *TopicPublisher) Topic() string {
	return p.topic
}
