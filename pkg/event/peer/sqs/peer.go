// Package sqs consumes queued notification envelopes from an SQS queue with
// long polling. Acked messages are deleted; a nak makes the message visible
// again immediately.
//
// A receive is not issued until every message of the previous receive has
// been settled, so messages never wait in-process while their visibility
// timeout runs. With MaxMessages above 1 the queue's visibility timeout must
// cover the handling time of the whole receive.
package sqs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/edgeflare/inventory/pkg/event"
	"go.uber.org/zap"
)

// API is the subset of *sqs.Client used by the peer.
type API interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Config represents SQS configuration
type Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	MaxMessages     int32  `mapstructure:"maxMessages"`
	WaitTimeSeconds int32  `mapstructure:"waitTimeSeconds"`

	// VisibilityTimeout in seconds; zero keeps the queue's setting.
	VisibilityTimeout int32         `mapstructure:"visibilityTimeout"`
	ErrorBackoff      time.Duration `mapstructure:"errorBackoff"`
}

func (c *Config) setDefaults() {
	if c.MaxMessages <= 0 {
		c.MaxMessages = 1
	}
	if c.MaxMessages > 10 {
		c.MaxMessages = 10
	}
	if c.WaitTimeSeconds <= 0 || c.WaitTimeSeconds > 20 {
		c.WaitTimeSeconds = 20
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = time.Second
	}
}

// PeerSQS implements the source for SQS queues
type PeerSQS struct {
	client API
	config Config
	logger *zap.Logger
}

// New returns a peer reading through client.
func New(client API, logger *zap.Logger) *PeerSQS {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PeerSQS{client: client, logger: logger}
	p.config.setDefaults()
	return p
}

func (p *PeerSQS) Connect(cfg map[string]any, logger *zap.Logger) error {
	var c Config
	if err := event.DecodeConfig(cfg, &c); err != nil {
		return err
	}
	c.setDefaults()
	p.config = c
	if logger != nil {
		p.logger = logger
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.client != nil {
		return nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if c.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(c.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	p.client = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})
	return nil
}

func (p *PeerSQS) Pub(_ context.Context, _ string, _ []byte) error {
	return event.ErrConnectorTypeMismatch
}

// Sub long-polls the queue named by topic, which is either a queue URL or a
// queue name.
func (p *PeerSQS) Sub(ctx context.Context, topic string) (<-chan event.Message, error) {
	if p.client == nil {
		return nil, event.ErrNotConnected
	}

	queueURL := topic
	if !strings.HasPrefix(topic, "https://") && !strings.HasPrefix(topic, "http://") {
		out, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(topic)})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve queue %s: %w", topic, err)
		}
		queueURL = aws.ToString(out.QueueUrl)
	}

	out := make(chan event.Message)
	go p.poll(ctx, queueURL, out)
	return out, nil
}

func (p *PeerSQS) poll(ctx context.Context, queueURL string, out chan<- event.Message) {
	defer close(out)

	for ctx.Err() == nil {
		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: p.config.MaxMessages,
			WaitTimeSeconds:     p.config.WaitTimeSeconds,
			VisibilityTimeout:   p.config.VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("receive messages", zap.String("queue_url", queueURL), zap.Error(err))
			select {
			case <-time.After(p.config.ErrorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		var settled sync.WaitGroup
		for _, msg := range resp.Messages {
			receipt := msg.ReceiptHandle
			var once sync.Once
			settle := func(f func() error) func() error {
				return func() error {
					defer once.Do(settled.Done)
					return f()
				}
			}

			settled.Add(1)
			m := event.NewMessage(aws.ToString(msg.MessageId), []byte(aws.ToString(msg.Body)),
				settle(func() error {
					_, err := p.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
						QueueUrl:      aws.String(queueURL),
						ReceiptHandle: receipt,
					})
					return err
				}),
				settle(func() error {
					_, err := p.client.ChangeMessageVisibility(context.WithoutCancel(ctx), &sqs.ChangeMessageVisibilityInput{
						QueueUrl:          aws.String(queueURL),
						ReceiptHandle:     receipt,
						VisibilityTimeout: 0,
					})
					return err
				}))

			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}

		if !waitSettled(ctx, &settled) {
			return
		}
	}
}

// waitSettled reports false when ctx is done before every message of the
// receive was acked or naked.
func waitSettled(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *PeerSQS) Type() event.ConnectorType {
	return event.ConnectorTypeSub
}

func (p *PeerSQS) Disconnect() error {
	return nil
}

func init() {
	event.RegisterConnector(event.ConnectorSQS, func() event.Connector { return &PeerSQS{} })
}
