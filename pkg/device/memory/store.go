// Package memory is an in-process device.Store used for local runs and tests.
// Scans are paginated like the managed table so callers exercise the cursor.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/edgeflare/inventory/pkg/device"
)

// DefaultPageSize is the page size used when Scan is called without a limit.
const DefaultPageSize = 100

// Store keeps devices in a map guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	items    map[string]device.Device
	pageSize int
	scans    int
}

// New returns an empty store. pageSize <= 0 selects DefaultPageSize.
func New(pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		items:    make(map[string]device.Device),
		pageSize: pageSize,
	}
}

func (s *Store) Put(_ context.Context, d device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[d.DeviceID] = d
	return nil
}

func (s *Store) Get(_ context.Context, id string) (device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.items[id]
	if !ok {
		return device.Device{}, device.ErrNotFound
	}
	return d, nil
}

// Scan returns devices ordered by id, starting after cursor.
func (s *Store) Scan(_ context.Context, cursor string, limit int) (device.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++

	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	page := device.Page{Items: []device.Device{}}
	for _, id := range ids {
		if len(page.Items) == limit {
			page.Next = page.Items[len(page.Items)-1].DeviceID
			break
		}
		page.Items = append(page.Items, s.items[id])
	}
	return page, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return device.ErrConditionFailed
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) UpdateName(_ context.Context, id, name string) (device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return device.Device{}, device.ErrConditionFailed
	}
	d.Name = name
	s.items[id] = d
	return d, nil
}

// Len returns the number of stored devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Scans returns how many pages have been read so far.
func (s *Store) Scans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scans
}
