package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

type ConnectorType int

const (
	ConnectorTypeUnknown ConnectorType = iota
	ConnectorTypePub                   // Sink only
	ConnectorTypeSub                   // Source only
	ConnectorTypePubSub                // Source and sink
)

func (t ConnectorType) String() string {
	switch t {
	case ConnectorTypePub:
		return "pub"
	case ConnectorTypeSub:
		return "sub"
	case ConnectorTypePubSub:
		return "pubsub"
	default:
		return "unknown"
	}
}

var (
	ErrConnectorTypeMismatch = errors.New("connector type mismatch")
	ErrUnknownConnector      = errors.New("unknown connector")
	ErrNotConnected          = errors.New("connector not connected")
)

// Message is a payload received from a connector subscription. Ack and Nak
// settle it with the broker when the connector supports it.
type Message struct {
	ID   string
	Body []byte

	ack func() error
	nak func() error
}

// NewMessage returns a Message with optional settle callbacks.
func NewMessage(id string, body []byte, ack, nak func() error) Message {
	return Message{ID: id, Body: body, ack: ack, nak: nak}
}

func (m Message) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

func (m Message) Nak() error {
	if m.nak == nil {
		return nil
	}
	return m.nak()
}

// A Connector moves event payloads to and from one kind of broker.
type Connector interface {
	// Connect initializes the connector. config holds connector specific
	// settings and is decoded with DecodeConfig.
	Connect(config map[string]any, logger *zap.Logger) error

	// Pub sends payload to topic.
	Pub(ctx context.Context, topic string, payload []byte) error

	// Sub streams messages from topic until ctx is done.
	Sub(ctx context.Context, topic string) (<-chan Message, error)

	// Type returns the type of the connector (SUB, PUB, or PUBSUB)
	Type() ConnectorType

	Disconnect() error
}

// NativeEnvelope is implemented by connectors whose broker wraps published
// payloads in the notification envelope itself.
type NativeEnvelope interface {
	NativeEnvelope() bool
}

// Predefined connectors
const (
	ConnectorDebug    = "debug"
	ConnectorHTTP     = "http"
	ConnectorKafka    = "kafka"
	ConnectorMemory   = "memory"
	ConnectorMQTT     = "mqtt"
	ConnectorNATS     = "nats"
	ConnectorPostgres = "postgres"
	ConnectorSNS      = "sns"
	ConnectorSQS      = "sqs"
)

var (
	mu         sync.RWMutex
	connectors = map[string]func() Connector{}
)

// RegisterConnector adds a connector factory to the registry.
// The name parameter is used as a key to identify the connector type.
func RegisterConnector(name string, factory func() Connector) {
	mu.Lock()
	defer mu.Unlock()
	connectors[name] = factory
}

// NewConnector returns a fresh, unconnected instance of the named connector.
func NewConnector(name string) (Connector, error) {
	mu.RLock()
	factory, ok := connectors[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnector, name)
	}
	return factory(), nil
}

// Connectors returns the registered connector names in sorted order.
func Connectors() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(connectors))
	for name := range connectors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
