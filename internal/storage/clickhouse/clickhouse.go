// Package clickhouse provides the analytical operation archive.
// ClickHouse is a best-effort sink; the PostgreSQL ledger remains the
// source of truth.
package clickhouse

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Conn wraps clickhouse driver.Conn for dependency injection.
type Conn struct {
	driver.Conn
}

// NewConn creates a new ClickHouse connection using the DSN's database.
func NewConn(ctx context.Context, dsn string) (*Conn, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	return NewConnWithDatabase(ctx, dsn, strings.TrimPrefix(u.Path, "/"))
}

// NewConnWithDatabase creates a connection to a specific database,
// overriding the DSN's path. An empty database connects at server scope
// (used to create the database before migrating).
func NewConnWithDatabase(ctx context.Context, dsn, database string) (*Conn, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	opts := &clickhouse.Options{
		Protocol: clickhouse.Native,
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "9000" // default ClickHouse native port
	}
	opts.Addr = []string{fmt.Sprintf("%s:%s", host, port)}

	if u.User != nil {
		opts.Auth.Username = u.User.Username()
		if password, ok := u.User.Password(); ok {
			opts.Auth.Password = password
		}
	}
	opts.Auth.Database = database

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &Conn{Conn: conn}, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.Conn.Close()
}
