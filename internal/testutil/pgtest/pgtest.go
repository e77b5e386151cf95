// Package pgtest connects tests to the PostgreSQL instance named by the
// TEST_DATABASE connection string and skips them when it is not set.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// EnvVar holds the connection string of the test database.
const EnvVar = "TEST_DATABASE"

// ConnString returns the test database connection string, skipping the test
// when it is not set.
func ConnString(t testing.TB) string {
	connString := os.Getenv(EnvVar)
	if connString == "" {
		t.Skipf("%s not set", EnvVar)
	}
	return connString
}

// ParseConfig returns a connection config that forwards server notices to the
// test log, skipping the test when no database is configured.
func ParseConfig(t testing.TB) *pgx.ConnConfig {
	config, err := pgx.ParseConfig(ConnString(t))
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}
	return config
}

// Connect opens a connection that is closed when the test finishes.
func Connect(ctx context.Context, t testing.TB) *pgx.Conn {
	conn, err := pgx.ConnectConfig(ctx, ParseConfig(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, conn.Close(ctx))
	})
	return conn
}
