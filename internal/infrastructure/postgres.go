package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresClient{Pool: pool}, nil
}

// schema is applied in order; every statement is idempotent.
var schema = []struct {
	name string
	ddl  string
}{
	{"tenants", `
		CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			public_id TEXT UNIQUE NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			ai_enabled BOOLEAN,
			system_prompt TEXT,
			model VARCHAR(100),
			temperature DOUBLE PRECISION,
			notify_telegram_chat_id BIGINT,
			widget JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`},
	{"blocked_visitors", `
		CREATE TABLE IF NOT EXISTS blocked_visitors (
			tenant_id TEXT NOT NULL,
			visitor_origin VARCHAR(128) NOT NULL,
			reason TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, visitor_origin)
		);
	`},
	{"leads", `
		CREATE TABLE IF NOT EXISTS leads (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			owner_id VARCHAR(64) NOT NULL,
			fields JSONB NOT NULL DEFAULT '{}',
			interest TEXT,
			phone VARCHAR(64),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`},
	{"leads_tenant_idx", `CREATE INDEX IF NOT EXISTS leads_tenant_created_idx ON leads (tenant_id, created_at DESC);`},
	{"widget_events", `
		CREATE TABLE IF NOT EXISTS widget_events (
			widget_id TEXT NOT NULL,
			date DATE NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			count INT NOT NULL DEFAULT 0,
			PRIMARY KEY (widget_id, date, event_type)
		);
	`},
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, s := range schema {
		if _, err := p.Pool.Exec(ctx, s.ddl); err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
