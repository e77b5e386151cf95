// Package postgres implements device.Store on a PostgreSQL table with
// (device_id TEXT PRIMARY KEY, name TEXT) columns.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/inventory/pkg/device"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn abstracts *pgx.Conn, *pgxpool.Pool and *pgxpool.Conn so the store works
// with single connections and pools alike.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a device.Store backed by a PostgreSQL table.
type Store struct {
	conn  Conn
	table string
}

// New returns a Store for schema.table. An empty schema means "public".
func New(conn Conn, table string, schema ...string) *Store {
	schemaName := "public"
	if len(schema) > 0 && schema[0] != "" {
		schemaName = schema[0]
	}
	return &Store{
		conn:  conn,
		table: pgx.Identifier{schemaName, table}.Sanitize(),
	}
}

// EnsureTable creates the table when it does not exist yet.
func (s *Store) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		device_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	)`, s.table)
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Put upserts the row, matching the unconditional write of a key-value put.
func (s *Store) Put(ctx context.Context, d device.Device) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (device_id, name) VALUES ($1, $2) ON CONFLICT (device_id) DO UPDATE SET name = EXCLUDED.name",
		s.table,
	)
	if _, err := s.conn.Exec(ctx, query, d.DeviceID, d.Name); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (device.Device, error) {
	query := fmt.Sprintf("SELECT device_id, name FROM %s WHERE device_id = $1", s.table)

	var d device.Device
	err := s.conn.QueryRow(ctx, query, id).Scan(&d.DeviceID, &d.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return device.Device{}, device.ErrNotFound
	}
	if err != nil {
		return device.Device{}, fmt.Errorf("failed to select record: %w", err)
	}
	return d, nil
}

// Scan uses keyset pagination on device_id; the cursor is the last id read.
func (s *Store) Scan(ctx context.Context, cursor string, limit int) (device.Page, error) {
	query := fmt.Sprintf("SELECT device_id, name FROM %s WHERE device_id > $1 ORDER BY device_id", s.table)
	args := []any{cursor}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return device.Page{}, fmt.Errorf("failed to scan table: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (device.Device, error) {
		var d device.Device
		err := row.Scan(&d.DeviceID, &d.Name)
		return d, err
	})
	if err != nil {
		return device.Page{}, fmt.Errorf("failed to read rows: %w", err)
	}

	page := device.Page{Items: items}
	if limit > 0 && len(items) == limit {
		page.Next = items[len(items)-1].DeviceID
	}
	return page, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE device_id = $1", s.table)
	tag, err := s.conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no rows were deleted: %w", device.ErrConditionFailed)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE device_id = $1", s.table)
	if _, err := s.conn.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *Store) UpdateName(ctx context.Context, id, name string) (device.Device, error) {
	query := fmt.Sprintf("UPDATE %s SET name = $2 WHERE device_id = $1 RETURNING device_id, name", s.table)

	var d device.Device
	err := s.conn.QueryRow(ctx, query, id, name).Scan(&d.DeviceID, &d.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return device.Device{}, fmt.Errorf("no rows were updated: %w", device.ErrConditionFailed)
	}
	if err != nil {
		return device.Device{}, fmt.Errorf("failed to update record: %w", err)
	}
	return d, nil
}
