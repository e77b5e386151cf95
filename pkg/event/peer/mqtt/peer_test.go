package mqtt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/edgeflare/inventory/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, event.DecodeConfig(map[string]any{
		"servers":   "tcp://broker:1883",
		"qos":       "1",
		"keepAlive": "15s",
	}, &cfg))
	cfg.setDefaults()

	assert.Equal(t, []string{"tcp://broker:1883"}, cfg.Servers)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, 15*time.Second, cfg.KeepAlive)
	assert.True(t, strings.HasPrefix(cfg.ClientID, "inventory-"))
	assert.NoError(t, cfg.validate())

	cfg.QoS = 3
	assert.Error(t, cfg.validate())
}

func TestToPahoOptions(t *testing.T) {
	cfg := Config{Username: "u", Password: "p"}
	cfg.setDefaults()

	opts, err := toPahoOptions(cfg)
	require.NoError(t, err)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "127.0.0.1:1883", opts.Servers[0].Host)
	assert.Equal(t, "u", opts.Username)
	assert.True(t, opts.AutoAckDisabled)

	_, err = toPahoOptions(Config{TLS: &TLSOptions{CAFile: "/does/not/exist"}})
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	p := &PeerMQTT{Config: Config{TopicPrefix: "inventory/"}}
	assert.Equal(t, "inventory/devices", p.Topic("devices"))
}

func TestNotConnected(t *testing.T) {
	p := &PeerMQTT{}
	assert.ErrorIs(t, p.Pub(context.Background(), "devices", nil), event.ErrNotConnected)
	_, err := p.Sub(context.Background(), "devices")
	assert.ErrorIs(t, err, event.ErrNotConnected)
}
