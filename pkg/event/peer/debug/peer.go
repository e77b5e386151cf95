package debug

import (
	"context"

	"github.com/edgeflare/inventory/pkg/event"
	"go.uber.org/zap"
)

// PeerDebug is a debug peer that logs published payloads
type PeerDebug struct {
	logger *zap.Logger
}

func (p *PeerDebug) Pub(_ context.Context, topic string, payload []byte) error {
	p.logger.Info(event.ConnectorDebug,
		zap.String("topic", topic),
		zap.ByteString("payload", payload))
	return nil
}

func (p *PeerDebug) Connect(_ map[string]any, logger *zap.Logger) error {
	p.logger = logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return nil
}

func (p *PeerDebug) Sub(_ context.Context, _ string) (<-chan event.Message, error) {
	return nil, event.ErrConnectorTypeMismatch
}

func (p *PeerDebug) Type() event.ConnectorType {
	return event.ConnectorTypePub
}

func (p *PeerDebug) Disconnect() error {
	return nil
}

func init() {
	event.RegisterConnector(event.ConnectorDebug, func() event.Connector { return &PeerDebug{} })
}
