package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// DialTimeout bounds how long Dial keeps retrying a connector.
var DialTimeout = 30 * time.Second

// Dial creates the named connector and connects it, retrying with
// exponential backoff while the broker is unreachable.
func Dial(ctx context.Context, name string, config map[string]any, logger *zap.Logger) (Connector, error) {
	conn, err := NewConnector(name)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = DialTimeout

	operation := func() error {
		err := conn.Connect(config, logger)
		if errors.Is(err, ErrConnectorTypeMismatch) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("connector not ready, retrying",
			zap.String("connector", name),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}
	logger.Info("connector ready", zap.String("connector", name), zap.Stringer("type", conn.Type()))
	return conn, nil
}
