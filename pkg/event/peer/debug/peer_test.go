package debug

import (
	"context"
	"testing"

	"github.com/edgeflare/inventory/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPeerDebug(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	p := &PeerDebug{}
	require.NoError(t, p.Connect(nil, zap.New(core)))
	require.NoError(t, p.Pub(context.Background(), "devices", []byte(`{"type":"DeviceDeleted"}`)))

	entries := logs.FilterMessage(event.ConnectorDebug).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "devices", entries[0].ContextMap()["topic"])

	_, err := p.Sub(context.Background(), "devices")
	assert.ErrorIs(t, err, event.ErrConnectorTypeMismatch)
}
