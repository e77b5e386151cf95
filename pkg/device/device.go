// Package device defines the inventory record and the storage contract that
// every backend (DynamoDB, PostgreSQL, in-memory) satisfies.
package device

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no record exists for the id.
	ErrNotFound = errors.New("device not found")
	// ErrConditionFailed is returned by conditional writes (Delete, UpdateName)
	// when the id does not exist.
	ErrConditionFailed = errors.New("device condition failed")
)

// Device is the only entity of the inventory. DeviceID is generated on
// creation and never changes.
type Device struct {
	DeviceID string `json:"deviceId" dynamodbav:"deviceId"`
	Name     string `json:"name" dynamodbav:"name,omitempty"`
}

// Page is one storage page of a table scan. Next is empty once the table is
// exhausted.
type Page struct {
	Items []Device
	Next  string
}

// Store is a key-value table of devices keyed by DeviceID.
type Store interface {
	// Put writes the record unconditionally.
	Put(ctx context.Context, d Device) error
	// Get returns ErrNotFound when the id is absent.
	Get(ctx context.Context, id string) (Device, error)
	// Scan reads one page starting after cursor. limit <= 0 leaves the page
	// size to the backend.
	Scan(ctx context.Context, cursor string, limit int) (Page, error)
	// Delete removes the record, requiring it to exist.
	Delete(ctx context.Context, id string) error
	// Remove deletes the record without any existence condition.
	Remove(ctx context.Context, id string) error
	// UpdateName sets the name of an existing record and returns its new state.
	UpdateName(ctx context.Context, id, name string) (Device, error)
}
