package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeConnector records published payloads and replays queued messages on Sub.
type fakeConnector struct {
	mu          sync.Mutex
	published   [][]byte
	topics      []string
	native      bool
	failConnect int
	pubErr      error
	msgs        chan Message
}

func (f *fakeConnector) Connect(map[string]any, *zap.Logger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConnect > 0 {
		f.failConnect--
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeConnector) Pub(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.topics = append(f.topics, topic)
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeConnector) Sub(context.Context, string) (<-chan Message, error) {
	if f.msgs == nil {
		return nil, ErrConnectorTypeMismatch
	}
	return f.msgs, nil
}

func (f *fakeConnector) Type() ConnectorType   { return ConnectorTypePubSub }
func (f *fakeConnector) Disconnect() error     { return nil }
func (f *fakeConnector) NativeEnvelope() bool { return f.native }

func TestRegistry(t *testing.T) {
	RegisterConnector("fake-registry", func() Connector { return &fakeConnector{} })

	a, err := NewConnector("fake-registry")
	require.NoError(t, err)
	b, err := NewConnector("fake-registry")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "each call returns a fresh connector")
	assert.Contains(t, Connectors(), "fake-registry")

	_, err = NewConnector("carrier-pigeon")
	assert.ErrorIs(t, err, ErrUnknownConnector)
}

func TestMessageSettle(t *testing.T) {
	var acked, naked bool
	m := NewMessage("1", nil, func() error { acked = true; return nil }, func() error { naked = true; return nil })
	require.NoError(t, m.Ack())
	require.NoError(t, m.Nak())
	assert.True(t, acked)
	assert.True(t, naked)

	assert.NoError(t, NewMessage("2", nil, nil, nil).Ack())
}

func TestDial(t *testing.T) {
	flaky := &fakeConnector{failConnect: 2}
	RegisterConnector("fake-flaky", func() Connector { return flaky })

	core, logs := observer.New(zap.WarnLevel)
	conn, err := Dial(context.Background(), "fake-flaky", nil, zap.New(core))
	require.NoError(t, err)
	assert.Same(t, flaky, conn)
	assert.Equal(t, 2, logs.FilterMessage("connector not ready, retrying").Len())

	_, err = Dial(context.Background(), "carrier-pigeon", nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrUnknownConnector)
}

func TestDialGivesUpWithContext(t *testing.T) {
	RegisterConnector("fake-down", func() Connector { return &fakeConnector{failConnect: 1 << 30} })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, "fake-down", nil, zap.NewNop())
	assert.Error(t, err)
}

func TestDecodeConfig(t *testing.T) {
	var cfg struct {
		Brokers []string      `mapstructure:"brokers"`
		Timeout time.Duration `mapstructure:"timeout"`
		Retries int           `mapstructure:"retries"`
	}
	require.NoError(t, DecodeConfig(map[string]any{
		"brokers": "a,b",
		"timeout": "2s",
		"retries": "3",
	}, &cfg))
	assert.Equal(t, []string{"a", "b"}, cfg.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retries)

	assert.NoError(t, DecodeConfig(nil, &cfg))
}
