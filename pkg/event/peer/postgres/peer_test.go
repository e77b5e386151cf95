package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/inventory/internal/testutil/pgtest"
	"github.com/edgeflare/inventory/pkg/device"
	"github.com/edgeflare/inventory/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNotConnected(t *testing.T) {
	p := &PeerPostgres{}
	assert.ErrorIs(t, p.Pub(context.Background(), "inventory", nil), event.ErrNotConnected)
	_, err := p.Sub(context.Background(), "inventory")
	assert.ErrorIs(t, err, event.ErrNotConnected)
	assert.Equal(t, event.ConnectorTypePubSub, p.Type())
	assert.NoError(t, p.Disconnect())
}

func TestConnectRequiresConnString(t *testing.T) {
	p := &PeerPostgres{}
	assert.ErrorContains(t, p.Connect(map[string]any{}, nil), "connString")
}

func TestNotifyRoundTrip(t *testing.T) {
	connString := pgtest.ConnString(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := &PeerPostgres{}
	require.NoError(t, p.Connect(map[string]any{"connString": connString}, zaptest.NewLogger(t)))
	defer p.Disconnect()

	subCtx, stop := context.WithCancel(ctx)
	msgs, err := p.Sub(subCtx, "Inventory-Events")
	require.NoError(t, err)

	pub := event.NewTopicPublisher(p, "Inventory-Events")
	require.NoError(t, pub.Publish(ctx, event.Created(device.Device{DeviceID: "a", Name: "lamp"})))

	select {
	case msg := <-msgs:
		e, err := event.Decode(string(msg.Body))
		require.NoError(t, err)
		assert.Equal(t, event.Created(device.Device{DeviceID: "a", Name: "lamp"}), e)
		assert.NoError(t, msg.Ack())
	case <-ctx.Done():
		t.Fatal("timeout waiting for notification")
	}

	stop()
	for range msgs {
	}
}
