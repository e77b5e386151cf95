// Package inventory maps device CRUD requests onto a device.Store and
// publishes a domain event after each successful create and delete.
//
// The publish happens after the write and is best effort: a failed publish
// is logged and counted but never changes the response, and the write is not
// rolled back.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/edgeflare/inventory/pkg/device"
	"github.com/edgeflare/inventory/pkg/event"
	"github.com/edgeflare/inventory/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	OpCreate = "create"
	OpList   = "list"
	OpGet    = "get"
	OpDelete = "delete"
	OpUpdate = "update"

	defaultPublishTimeout = 5 * time.Second
)

// Response is a transport independent result: a status code and a JSON body.
type Response struct {
	StatusCode int
	Body       string
}

// Service implements the inventory operations.
type Service struct {
	store     device.Store
	publisher event.Publisher
	logger    *zap.Logger
	connector string
	pageSize  int
	newID     func() string

	publishTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets the storage page size used by List. Zero lets the
// backend choose.
func WithPageSize(n int) Option {
	return func(s *Service) { s.pageSize = n }
}

// WithIDGenerator replaces the UUID v4 generator.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// WithPublishTimeout bounds each event publish. Zero or negative selects 5s.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithConnectorName labels publish error metrics.
func WithConnectorName(name string) Option {
	return func(s *Service) { s.connector = name }
}

func NewService(store device.Store, publisher event.Publisher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		connector: "unknown",
		newID:     uuid.NewString,

		publishTimeout: defaultPublishTimeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// decodeName reads the name field of a request body. Only syntactically
// invalid JSON is rejected. An empty body, a body that is not an object, and
// an absent or null field yield the empty string. A name of any other JSON
// type is kept as its compact JSON text.
func decodeName(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if !json.Valid(body) {
			return "", fmt.Errorf("invalid request body: %w", err)
		}
		return "", nil
	}

	raw := fields["name"]
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("invalid request body: %w", err)
	}
	return buf.String(), nil
}

func jsonResponse(status int, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		return Response{StatusCode: status, Body: `{"error":"failed to encode response"}`}
	}
	return Response{StatusCode: status, Body: string(body)}
}

func errorResponse(status int, msg string) Response {
	return jsonResponse(status, map[string]string{"error": msg})
}

// Create stores a new device named by the body and publishes DeviceCreated.
func (s *Service) Create(ctx context.Context, body []byte) Response {
	start := time.Now()
	d := device.Device{DeviceID: s.newID()}

	name, err := decodeName(body)
	if err == nil {
		d.Name = name
		err = s.store.Put(ctx, d)
	}
	if err != nil {
		return s.done(OpCreate, d.DeviceID, start, errorResponse(400, err.Error()), err)
	}

	resp := jsonResponse(201, map[string]string{"deviceId": d.DeviceID})
	s.publish(ctx, event.Created(d))
	return s.done(OpCreate, d.DeviceID, start, resp, nil)
}

// List returns every stored device, following storage pages to the end.
func (s *Service) List(ctx context.Context) Response {
	start := time.Now()

	devices, err := device.ListAll(ctx, s.store, s.pageSize)
	if err != nil {
		return s.done(OpList, "", start, errorResponse(400, err.Error()), err)
	}
	return s.done(OpList, "", start, jsonResponse(200, map[string][]device.Device{"inventory": devices}), nil)
}

func (s *Service) Get(ctx context.Context, id string) Response {
	start := time.Now()

	d, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, device.ErrNotFound):
		return s.done(OpGet, id, start, errorResponse(404, "Not Found"), nil)
	case err != nil:
		return s.done(OpGet, id, start, errorResponse(400, err.Error()), err)
	}
	return s.done(OpGet, id, start, jsonResponse(200, d), nil)
}

// Delete removes an existing device and publishes DeviceDeleted. Any failure,
// including a missing device, is reported as 404.
func (s *Service) Delete(ctx context.Context, id string) Response {
	start := time.Now()

	if err := s.store.Delete(ctx, id); err != nil {
		return s.done(OpDelete, id, start, errorResponse(404, "Not found"), err)
	}

	resp := jsonResponse(200, "Deleted")
	s.publish(ctx, event.Deleted(id))
	return s.done(OpDelete, id, start, resp, nil)
}

// Update renames an existing device. Any failure, including a malformed body,
// is reported as 404.
func (s *Service) Update(ctx context.Context, id string, body []byte) Response {
	start := time.Now()

	name, err := decodeName(body)
	var d device.Device
	if err == nil {
		d, err = s.store.UpdateName(ctx, id, name)
	}
	if err != nil {
		return s.done(OpUpdate, id, start, errorResponse(404, "Not found"), err)
	}
	return s.done(OpUpdate, id, start, jsonResponse(200, d), nil)
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	// the write already happened; a canceled request still gets its event,
	// but a stalled broker cannot hold the response
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, e); err != nil {
		metrics.PublishErrors.WithLabelValues(s.connector).Inc()
		s.logger.Error("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.String("device_id", e.DeviceID),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(e.Type.Label()).Inc()
}

func (s *Service) done(op, id string, start time.Time, resp Response, err error) Response {
	status := strconv.Itoa(resp.StatusCode)
	metrics.Requests.WithLabelValues(op, status).Inc()
	metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
	}
	if id != "" {
		fields = append(fields, zap.String("device_id", id))
	}
	if err != nil {
		s.logger.Warn("inventory request failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("inventory request", fields...)
	}
	return resp
}
