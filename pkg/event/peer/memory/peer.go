// Package memory provides an in-process broker connector. All instances share
// a default broker so a publisher and a consumer in one process meet on the
// same topics.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/edgeflare/inventory/pkg/event"
	"go.uber.org/zap"
)

// ErrBufferFull is returned by Publish when a subscriber could not take the
// payload.
var ErrBufferFull = errors.New("memory: subscriber buffer full")

// Config represents memory broker configuration
type Config struct {
	Buffer int `mapstructure:"buffer"`
}

// Broker fans out published payloads to the subscribers of a topic.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	seq    atomic.Int64
	buffer int
}

type subscription struct {
	ch   chan event.Message
	done chan struct{}
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{subs: map[string][]*subscription{}, buffer: buffer}
}

// DefaultBroker is used by connectors created through the registry.
var DefaultBroker = NewBroker(64)

// Publish delivers payload to every current subscriber of topic without
// waiting. Payloads published while nobody listens are dropped, and so are
// payloads for a subscriber whose buffer is full.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := strconv.FormatInt(b.seq.Add(1), 10)

	b.mu.RLock()
	defer b.mu.RUnlock()
	dropped := 0
	for _, s := range b.subs[topic] {
		msg := event.NewMessage(id, append([]byte(nil), payload...), nil, nil)
		select {
		case s.ch <- msg:
		case <-s.done:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d subscriber(s) of %q", ErrBufferFull, dropped, topic)
	}
	return nil
}

// Subscribe returns a channel receiving topic payloads. It is closed once ctx
// is done.
func (b *Broker) Subscribe(ctx context.Context, topic string) <-chan event.Message {
	s := &subscription{
		ch:   make(chan event.Message, b.buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(s.done)

		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[topic] = slices.DeleteFunc(b.subs[topic], func(o *subscription) bool { return o == s })
		close(s.ch)
	}()
	return s.ch
}

// PeerMemory implements the source and sink for the in-process broker
type PeerMemory struct {
	broker *Broker
	logger *zap.Logger
}

// New returns a peer bound to broker.
func New(broker *Broker) *PeerMemory {
	return &PeerMemory{broker: broker, logger: zap.NewNop()}
}

func (p *PeerMemory) Connect(config map[string]any, logger *zap.Logger) error {
	var cfg Config
	if err := event.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if p.broker == nil {
		p.broker = DefaultBroker
		if cfg.Buffer > 0 {
			p.broker = NewBroker(cfg.Buffer)
		}
	}
	if logger != nil {
		p.logger = logger
	}
	return nil
}

func (p *PeerMemory) Pub(ctx context.Context, topic string, payload []byte) error {
	if p.broker == nil {
		return event.ErrNotConnected
	}
	p.logger.Debug("memory publish", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return p.broker.Publish(ctx, topic, payload)
}

func (p *PeerMemory) Sub(ctx context.Context, topic string) (<-chan event.Message, error) {
	if p.broker == nil {
		return nil, event.ErrNotConnected
	}
	return p.broker.Subscribe(ctx, topic), nil
}

func (p *PeerMemory) Type() event.ConnectorType {
	return event.ConnectorTypePubSub
}

func (p *PeerMemory) Disconnect() error {
	return nil
}

func init() {
	event.RegisterConnector(event.ConnectorMemory, func() event.Connector { return &PeerMemory{} })
}
