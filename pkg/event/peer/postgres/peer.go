// Package postgres carries events over PostgreSQL LISTEN/NOTIFY. Delivery is
// at most once: notifications sent while no session listens are lost, and
// payloads are limited to 8000 bytes by the server.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/inventory/pkg/event"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config represents PostgreSQL connector configuration
type Config struct {
	ConnString string `mapstructure:"connString"`
}

// PeerPostgres implements the source and sink for NOTIFY channels
type PeerPostgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func (p *PeerPostgres) Connect(config map[string]any, logger *zap.Logger) error {
	var cfg Config
	if err := event.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.ConnString == "" {
		return errors.New("postgres: connString is required")
	}
	p.logger = logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping connection: %w", err)
	}
	p.pool = pool
	return nil
}

// Pub sends payload on the channel named topic.
func (p *PeerPostgres) Pub(ctx context.Context, topic string, payload []byte) error {
	if p.pool == nil {
		return event.ErrNotConnected
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", topic, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", topic, err)
	}
	return nil
}

// Sub holds one pooled connection in LISTEN for as long as ctx lives.
func (p *PeerPostgres) Sub(ctx context.Context, topic string) (<-chan event.Message, error) {
	if p.pool == nil {
		return nil, event.ErrNotConnected
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{topic}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("error listening to channel: %w", err)
	}

	msgs := make(chan event.Message)
	go func() {
		defer close(msgs)
		// the session still listens; drop it instead of returning it to the pool
		defer func() {
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("failed to wait for notification", zap.String("channel", topic), zap.Error(err))
				}
				return
			}
			select {
			case msgs <- messageFrom(n):
			case <-ctx.Done():
				return
			}
		}
	}()
	return msgs, nil
}

func messageFrom(n *pgconn.Notification) event.Message {
	return event.NewMessage(fmt.Sprintf("%d", n.PID), []byte(n.Payload), nil, nil)
}

func (p *PeerPostgres) Type() event.ConnectorType {
	return event.ConnectorTypePubSub
}

func (p *PeerPostgres) Disconnect() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func init() {
	event.RegisterConnector(event.ConnectorPostgres, func() event.Connector { return &PeerPostgres{} })
}
