package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicPublisher(t *testing.T) {
	ctx := context.Background()
	e := Event{Type: TypeDeviceCreated, DeviceID: "a", Name: "n"}

	t.Run("wraps in envelope", func(t *testing.T) {
		conn := &fakeConnector{}
		p := NewTopicPublisher(conn, "devices")
		p.now = func() time.Time { return time.Unix(0, 0) }

		require.NoError(t, p.Publish(ctx, e))
		require.Len(t, conn.published, 1)
		assert.Equal(t, []string{"devices"}, conn.topics)

		got, err := Decode(string(conn.published[0]))
		require.NoError(t, err)
		assert.Equal(t, e, got)
	})

	t.Run("native envelope sends the raw event", func(t *testing.T) {
		conn := &fakeConnector{native: true}
		require.NoError(t, NewTopicPublisher(conn, "arn").Publish(ctx, e))

		var got Event
		require.NoError(t, json.Unmarshal(conn.published[0], &got))
		assert.Equal(t, e, got)
	})

	t.Run("connector error is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		err := NewTopicPublisher(&fakeConnector{pubErr: boom}, "devices").Publish(ctx, e)
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "publish DeviceCreated")
	})
}
