// Package event defines the device domain events, the notification envelope
// they travel in and the connector abstraction used to publish and consume
// them over different brokers.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/edgeflare/inventory/pkg/device"
	"github.com/google/uuid"
)

// Type identifies the kind of domain event.
type Type string

const (
	TypeDeviceCreated Type = "DeviceCreated"
	TypeDeviceDeleted Type = "DeviceDeleted"
)

// Label returns t for known event types and "other" for anything else, so
// queue input cannot grow metric label sets.
func (t Type) Label() string {
	switch t {
	case TypeDeviceCreated, TypeDeviceDeleted:
		return string(t)
	}
	return "other"
}

// Event is the payload published on successful mutations.
type Event struct {
	Type     Type   `json:"type"`
	DeviceID string `json:"deviceId"`
	Name     string `json:"name,omitempty"`
}

func Created(d device.Device) Event {
	return Event{Type: TypeDeviceCreated, DeviceID: d.DeviceID, Name: d.Name}
}

func Deleted(id string) Event {
	return Event{Type: TypeDeviceDeleted, DeviceID: id}
}

// Envelope is the topic notification wrapper delivered to queue consumers.
// It has the shape SNS uses when fanning out to SQS, so every transport
// delivers the same body.
type Envelope = events.SNSEntity

// Wrap encodes payload as the Message of a new notification envelope.
func Wrap(topic string, payload []byte, now time.Time) ([]byte, error) {
	env := Envelope{
		Type:      "Notification",
		MessageID: uuid.NewString(),
		TopicArn:  topic,
		Message:   string(payload),
		Timestamp: now.UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope body and the event carried in its Message.
func Decode(body string) (Event, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var e Event
	if err := json.Unmarshal([]byte(env.Message), &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event message: %w", err)
	}
	return e, nil
}

// Record is one queued message handed to a batch handler.
type Record struct {
	MessageID string
	Body      string
}

// RecordsFromSQS converts a Lambda SQS batch into records, keeping order.
func RecordsFromSQS(e events.SQSEvent) []Record {
	records := make([]Record, 0, len(e.Records))
	for _, r := range e.Records {
		records = append(records, Record{MessageID: r.MessageId, Body: r.Body})
	}
	return records
}
