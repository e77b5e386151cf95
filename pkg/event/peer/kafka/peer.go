// Package kafka publishes event envelopes with a sarama SyncProducer and
// consumes them through a consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/edgeflare/inventory/pkg/event"
	"go.uber.org/zap"
)

// PeerKafka implements the source and sink for Kafka
type PeerKafka struct {
	producer     sarama.SyncProducer
	config       *Config
	saramaConfig *sarama.Config
	logger       *zap.Logger

	mu     sync.Mutex
	groups []sarama.ConsumerGroup
}

// New returns a peer that publishes through producer instead of dialing one
// on Connect.
func New(producer sarama.SyncProducer, logger *zap.Logger) *PeerKafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeerKafka{producer: producer, logger: logger}
}

func (p *PeerKafka) Connect(config map[string]any, logger *zap.Logger) error {
	var cfg Config
	if err := event.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	cfg.setDefaults()

	saramaConfig, err := cfg.ToSaramaConfig()
	if err != nil {
		return fmt.Errorf("failed to create sarama config: %w", err)
	}

	if logger != nil {
		p.logger = logger
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.config = &cfg
	p.saramaConfig = saramaConfig

	if len(cfg.Topics) > 0 {
		if err := p.ensureTopics(); err != nil {
			return fmt.Errorf("failed to ensure topics: %w", err)
		}
	}

	if p.producer == nil {
		producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			return fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		p.producer = producer
	}
	return nil
}

func (p *PeerKafka) Pub(_ context.Context, topic string, payload []byte) error {
	if p.producer == nil {
		return event.ErrNotConnected
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("published message",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Sub joins the configured consumer group. Acking a message marks its offset;
// a nak leaves it unmarked.
func (p *PeerKafka) Sub(ctx context.Context, topic string) (<-chan event.Message, error) {
	if p.config == nil {
		return nil, event.ErrNotConnected
	}

	group, err := sarama.NewConsumerGroup(p.config.Brokers, p.config.GroupID, p.saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	p.mu.Lock()
	p.groups = append(p.groups, group)
	p.mu.Unlock()

	out := make(chan event.Message)
	handler := &groupHandler{out: out}

	go func() {
		for err := range group.Errors() {
			p.logger.Warn("consumer group error", zap.String("topic", topic), zap.Error(err))
		}
	}()

	go func() {
		defer close(out)
		for {
			if err := group.Consume(ctx, []string{topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				p.logger.Error("consume error", zap.String("topic", topic), zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return out, nil
}

func (p *PeerKafka) Type() event.ConnectorType {
	return event.ConnectorTypePubSub
}

func (p *PeerKafka) Disconnect() error {
	var errs []error

	p.mu.Lock()
	for _, g := range p.groups {
		errs = append(errs, g.Close())
	}
	p.groups = nil
	p.mu.Unlock()

	if p.producer != nil {
		errs = append(errs, p.producer.Close())
	}
	return errors.Join(errs...)
}

func (p *PeerKafka) ensureTopics() error {
	admin, err := sarama.NewClusterAdmin(p.config.Brokers, p.saramaConfig)
	if err != nil {
		return fmt.Errorf("failed to create cluster admin: %w", err)
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	retention := strconv.FormatInt(p.config.RetentionMS, 10)
	for _, topic := range p.config.Topics {
		if _, exists := topics[topic]; exists {
			continue
		}
		detail := &sarama.TopicDetail{
			NumPartitions:     p.config.Partitions,
			ReplicationFactor: p.config.Replicas,
			ConfigEntries: map[string]*string{
				"retention.ms": &retention,
			},
		}
		if err := admin.CreateTopic(topic, detail, false); err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		p.logger.Info("created topic", zap.String("topic", topic))
	}
	return nil
}

// groupHandler forwards claimed messages one at a time.
type groupHandler struct {
	out chan<- event.Message
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			id := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
			m := event.NewMessage(id, msg.Value, func() error {
				session.MarkMessage(msg, "")
				return nil
			}, nil)

			select {
			case h.out <- m:
			case <-session.Context().Done():
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

func init() {
	event.RegisterConnector(event.ConnectorKafka, func() event.Connector { return &PeerKafka{} })
}
