package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/edgeflare/inventory/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestPeerSNS(t *testing.T) {
	const arn = "arn:aws:sns:us-west-2:123456789012:inventory"
	client := &fakeSNS{}
	p := New(client, zaptest.NewLogger(t))
	require.NoError(t, p.Connect(nil, nil))

	pub := event.NewTopicPublisher(p, arn)
	require.NoError(t, pub.Publish(context.Background(), event.Event{Type: event.TypeDeviceCreated, DeviceID: "a", Name: "n"}))

	require.Len(t, client.inputs, 1)
	assert.Equal(t, arn, aws.ToString(client.inputs[0].TopicArn))

	// the raw event is sent; SNS adds the envelope
	var e event.Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.inputs[0].Message)), &e))
	assert.Equal(t, event.Event{Type: event.TypeDeviceCreated, DeviceID: "a", Name: "n"}, e)
}

func TestPeerSNSError(t *testing.T) {
	boom := errors.New("AuthorizationError")
	p := New(&fakeSNS{err: boom}, nil)
	assert.ErrorIs(t, p.Pub(context.Background(), "arn", []byte(`{}`)), boom)
}
