// Package mqtt publishes event envelopes to MQTT topics and subscribes to
// them. A topic "devices" with prefix "inventory" maps to "inventory/devices".
package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/inventory/pkg/event"
	"go.uber.org/zap"
)

// PeerMQTT implements the source and sink functionality for MQTT
type PeerMQTT struct {
	*Client
	Config Config
}

func (p *PeerMQTT) Connect(config map[string]any, logger *zap.Logger) error {
	var cfg Config
	if err := event.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	opts, err := toPahoOptions(cfg)
	if err != nil {
		return err
	}

	client := NewClient(opts, logger)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	p.Client = client
	p.Config = cfg
	return nil
}

// Topic returns the MQTT topic name for topic.
func (p *PeerMQTT) Topic(topic string) string {
	return strings.TrimSuffix(p.Config.TopicPrefix, "/") + "/" + strings.TrimPrefix(topic, "/")
}

func (p *PeerMQTT) Pub(_ context.Context, topic string, payload []byte) error {
	if p.Client == nil {
		return event.ErrNotConnected
	}
	return p.Client.Publish(p.Topic(topic), p.Config.QoS, p.Config.Retained, payload)
}

// Sub subscribes to topic. The paho callback blocks until the message is
// taken, which keeps delivery in order.
func (p *PeerMQTT) Sub(ctx context.Context, topic string) (<-chan event.Message, error) {
	if p.Client == nil {
		return nil, event.ErrNotConnected
	}

	name := p.Topic(topic)
	out := make(chan event.Message)
	done := make(chan struct{})
	var (
		mu     sync.RWMutex
		closed bool
	)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return
		}

		id := strconv.FormatUint(uint64(msg.MessageID()), 10)
		m := event.NewMessage(id, msg.Payload(), func() error {
			msg.Ack()
			return nil
		}, nil)

		select {
		case out <- m:
		case <-done:
		}
	}

	if err := p.Client.Subscribe(name, p.Config.QoS, handler); err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		close(done)
		if err := p.Client.Unsubscribe(name); err != nil {
			p.logger.Warn("unsubscribe failed", zap.String("topic", name), zap.Error(err))
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

func (p *PeerMQTT) Type() event.ConnectorType {
	return event.ConnectorTypePubSub
}

func (p *PeerMQTT) Disconnect() error {
	if p.Client != nil {
		p.Client.Disconnect()
	}
	return nil
}

func init() {
	event.RegisterConnector(event.ConnectorMQTT, func() event.Connector { return &PeerMQTT{} })
}
