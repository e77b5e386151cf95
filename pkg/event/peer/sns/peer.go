// Package sns publishes events to an SNS topic. SNS wraps each message in
// the notification envelope itself, so payloads are sent unwrapped.
package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/edgeflare/inventory/pkg/event"
	"go.uber.org/zap"
)

// API is the subset of *sns.Client used by the peer.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config represents SNS configuration
type Config struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// PeerSNS implements the sink for SNS topics
type PeerSNS struct {
	client API
	logger *zap.Logger
}

// New returns a peer publishing through client.
func New(client API, logger *zap.Logger) *PeerSNS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeerSNS{client: client, logger: logger}
}

func (p *PeerSNS) Connect(cfg map[string]any, logger *zap.Logger) error {
	var c Config
	if err := event.DecodeConfig(cfg, &c); err != nil {
		return err
	}
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

	p.client = sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})
	return nil
}

// Pub publishes payload to the topic ARN.
func (p *PeerSNS) Pub(ctx context.Context, topic string, payload []byte) error {
	if p.client == nil {
		return event.ErrNotConnected
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	p.logger.Debug("published message",
		zap.String("topic_arn", topic),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

func (p *PeerSNS) NativeEnvelope() bool {
	return true
}

func (p *PeerSNS) Sub(_ context.Context, _ string) (<-chan event.Message, error) {
	return nil, event.ErrConnectorTypeMismatch
}

func (p *PeerSNS) Type() event.ConnectorType {
	return event.ConnectorTypePub
}

func (p *PeerSNS) Disconnect() error {
	return nil
}

func init() {
	event.RegisterConnector(event.ConnectorSNS, func() event.Connector { return &PeerSNS{} })
}
