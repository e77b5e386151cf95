// Package nats publishes event envelopes to a JetStream stream and consumes
// them with a durable pull consumer.
//
// Topics map to subjects under the configured prefix, e.g. topic "devices"
// with prefix "inventory" is published on "inventory.devices".
package nats

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/edgeflare/inventory/pkg/event"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Config represents NATS configuration
type Config struct {
	Servers       []string `mapstructure:"servers"`
	Stream        string   `mapstructure:"stream"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	Durable       string   `mapstructure:"durable"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	TLS           struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`
}

// PeerNATS implements the source and sink for NATS
type PeerNATS struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
	Config Config
}

// Connect establishes a connection to the NATS server
func (p *PeerNATS) Connect(config map[string]any, logger *zap.Logger) error {
	if err := event.DecodeConfig(config, &p.Config); err != nil {
		return err
	}
	p.logger = logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	if len(p.Config.Servers) == 0 {
		p.Config.Servers = []string{nats.DefaultURL}
	}
	p.Config.SubjectPrefix = cmp.Or(p.Config.SubjectPrefix, "inventory")
	p.Config.Stream = cmp.Or(p.Config.Stream, fmt.Sprintf("%s-stream", p.Config.SubjectPrefix))
	p.Config.Durable = cmp.Or(p.Config.Durable, fmt.Sprintf("%s-consumer", p.Config.SubjectPrefix))

	nc, err := nats.Connect(strings.Join(p.Config.Servers, ","), defaultOptions(p.Config)...)
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}
	p.nc, p.js = nc, js

	if err := p.ensureStream(); err != nil {
		nc.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}
	return nil
}

// Subject returns the subject a topic is published on.
func (p *PeerNATS) Subject(topic string) string {
	return p.Config.SubjectPrefix + "." + topic
}

// Pub publishes payload to the topic subject
func (p *PeerNATS) Pub(ctx context.Context, topic string, payload []byte) error {
	if p.js == nil {
		return event.ErrNotConnected
	}

	// JetStream rejects contexts without a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	if _, err := p.js.Publish(p.Subject(topic), payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Sub pulls messages for topic with a durable consumer
func (p *PeerNATS) Sub(ctx context.Context, topic string) (<-chan event.Message, error) {
	if p.js == nil {
		return nil, event.ErrNotConnected
	}

	subject := p.Subject(topic)
	_, err := p.js.AddConsumer(p.Config.Stream, &nats.ConsumerConfig{
		Durable:       p.Config.Durable,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    3,
		AckWait:       time.Minute,
		FilterSubject: subject,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	sub, err := p.js.PullSubscribe(subject, p.Config.Durable, nats.Bind(p.Config.Stream, p.Config.Durable))
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	out := make(chan event.Message)
	go p.processMessages(ctx, sub, out)
	return out, nil
}

// processMessages fetches until ctx is done
func (p *PeerNATS) processMessages(ctx context.Context, sub *nats.Subscription, out chan<- event.Message) {
	defer close(out)
	defer func() { _ = sub.Unsubscribe() }()

	for ctx.Err() == nil {
		msgs, err := sub.Fetch(10, nats.MaxWait(time.Second))
		if err != nil {
			if !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
				p.logger.Warn("fetch messages", zap.Error(err))
			}
			continue
		}

		for _, msg := range msgs {
			id := msg.Reply
			if meta, err := msg.Metadata(); err == nil {
				id = fmt.Sprintf("%s/%d", meta.Stream, meta.Sequence.Stream)
			}
			m := event.NewMessage(id, msg.Data, func() error { return msg.Ack() }, func() error { return msg.Nak() })

			select {
			case out <- m:
			case <-ctx.Done():
				_ = msg.Nak()
				return
			}
		}
	}
}

// Type returns the connector type
func (p *PeerNATS) Type() event.ConnectorType {
	return event.ConnectorTypePubSub
}

// Disconnect drains and closes the NATS connection
func (p *PeerNATS) Disconnect() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}

// ensureStream creates or updates the stream
func (p *PeerNATS) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     p.Config.Stream,
		Subjects: []string{p.Config.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	stream, err := p.js.StreamInfo(p.Config.Stream)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = p.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			p.logger.Info("updated stream", zap.String("stream", p.Config.Stream))
		}
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := p.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	p.logger.Info("created stream", zap.String("stream", p.Config.Stream))
	return nil
}

// streamConfigEqual checks if two nats.StreamConfig are equivalent
func streamConfigEqual(a, b nats.StreamConfig) bool {
	return a.Name == b.Name &&
		a.Storage == b.Storage &&
		a.Replicas == b.Replicas &&
		slices.Equal(a.Subjects, b.Subjects)
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Name("inventory"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}

func init() {
	event.RegisterConnector(event.ConnectorNATS, func() event.Connector { return &PeerNATS{} })
}
