package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PluginStore persists plugin registrations.
type PluginStore interface {
	SavePlugin(ctx context.Context, p *Plugin) error
	DeletePlugin(ctx context.Context, id uuid.UUID) error
	ListPlugins(ctx context.Context) ([]*Plugin, error)
}

// PostgresPluginStore implements PluginStore on the plugins table.
type PostgresPluginStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresPluginStore creates a PluginStore using the given connection pool.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresPluginStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresPluginStore {
	return &PostgresPluginStore{pool: pool, queryTimeout: queryTimeout}
}

func (s *PostgresPluginStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

// EnsureSchema creates the plugins and notify_checkpoints tables.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS plugins (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL,
			endpoint   TEXT NOT NULL,
			topics     TEXT[] NOT NULL,
			status     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notify_checkpoints (
			shard_id      INT NOT NULL,
			consumer      TEXT NOT NULL,
			last_added_id BIGINT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),

			PRIMARY KEY (shard_id, consumer)
		);
	`)
	if err != nil {
		return fmt.Errorf("create notify tables: %w", err)
	}
	return nil
}

func (s *PostgresPluginStore) SavePlugin(ctx context.Context, p *Plugin) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	topics := make([]string, len(p.Topics))
	for i, t := range p.Topics {
		topics[i] = string(t)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO plugins (id, name, endpoint, topics, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.Endpoint, topics, string(p.Status), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save plugin: %w", err)
	}
	return nil
}

func (s *PostgresPluginStore) DeletePlugin(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM plugins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plugin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plugin %s: %w", id, ErrPluginNotFound)
	}
	return nil
}

func (s *PostgresPluginStore) ListPlugins(ctx context.Context) ([]*Plugin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, endpoint, topics, status, created_at
		FROM plugins
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	defer rows.Close()

	var plugins []*Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}

func scanPlugin(row pgx.Row) (*Plugin, error) {
	var p Plugin
	var status string
	var topics []string
	if err := row.Scan(&p.ID, &p.Name, &p.Endpoint, &topics, &status, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan plugin: %w", err)
	}
	p.Status = PluginStatus(status)
	p.Topics = make([]Topic, len(topics))
	for i, t := range topics {
		p.Topics[i] = Topic(t)
	}
	return &p, nil
}
