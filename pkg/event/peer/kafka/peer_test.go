package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/edgeflare/inventory/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPeerKafkaPub(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		e, err := event.Decode(string(val))
		if err != nil {
			return err
		}
		if e.Type != event.TypeDeviceCreated || e.DeviceID != "a" {
			return errors.New("unexpected event")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := New(producer, zaptest.NewLogger(t))
	pub := event.NewTopicPublisher(p, "devices")

	require.NoError(t, pub.Publish(context.Background(), event.Event{Type: event.TypeDeviceCreated, DeviceID: "a", Name: "n"}))
	assert.ErrorIs(t, pub.Publish(context.Background(), event.Deleted("a")), sarama.ErrOutOfBrokers)

	require.NoError(t, p.Disconnect())
}

func TestPeerKafkaNotConnected(t *testing.T) {
	p := &PeerKafka{}
	assert.ErrorIs(t, p.Pub(context.Background(), "devices", nil), event.ErrNotConnected)

	_, err := p.Sub(context.Background(), "devices")
	assert.ErrorIs(t, err, event.ErrNotConnected)
}

func TestToSaramaConfig(t *testing.T) {
	t.Run("scram sha512", func(t *testing.T) {
		cfg := Config{SASL: &SASL{Enable: true, Username: "u", Password: "p", Algorithm: "sha512"}}
		cfg.setDefaults()

		conf, err := cfg.ToSaramaConfig()
		require.NoError(t, err)
		assert.True(t, conf.Net.SASL.Enable)
		assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), conf.Net.SASL.Mechanism)
		require.NotNil(t, conf.Net.SASL.SCRAMClientGeneratorFunc)
		assert.IsType(t, &XDGSCRAMClient{}, conf.Net.SASL.SCRAMClientGeneratorFunc())
		assert.Equal(t, sarama.OffsetOldest, conf.Consumer.Offsets.Initial)
	})

	t.Run("invalid algorithm", func(t *testing.T) {
		cfg := Config{SASL: &SASL{Enable: true, Algorithm: "md5"}}
		cfg.setDefaults()
		_, err := cfg.ToSaramaConfig()
		assert.Error(t, err)
	})

	t.Run("invalid version", func(t *testing.T) {
		cfg := Config{Version: "not-a-version"}
		_, err := cfg.ToSaramaConfig()
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		var cfg Config
		require.NoError(t, event.DecodeConfig(map[string]any{"brokers": "a:9092,b:9092"}, &cfg))
		cfg.setDefaults()
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
		assert.Equal(t, "inventory-notify", cfg.GroupID)
	})
}

func TestXDGSCRAMClient(t *testing.T) {
	c := &XDGSCRAMClient{HashGeneratorFcn: SHA256}
	require.NoError(t, c.Begin("user", "pencil", ""))

	first, err := c.Step("")
	require.NoError(t, err)
	assert.Contains(t, first, "n=user")
	assert.False(t, c.Done())
}
