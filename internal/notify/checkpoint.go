package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryanbastic/go-slotgrid/internal/shard"
)

// Checkpoint persists the last processed added_id per shard and consumer.
type Checkpoint interface {
	Load(ctx context.Context, shardID shard.ID, consumer string) (int64, error)
	Save(ctx context.Context, shardID shard.ID, consumer string, addedID int64) error
}

// PostgresCheckpoint implements Checkpoint on the notify_checkpoints table.
type PostgresCheckpoint struct {
	pool *pgxpool.Pool
}

// NewPostgresCheckpoint creates a new PostgresCheckpoint.
func NewPostgresCheckpoint(pool *pgxpool.Pool) *PostgresCheckpoint {
	return &PostgresCheckpoint{pool: pool}
}

func (c *PostgresCheckpoint) Load(ctx context.Context, shardID shard.ID, consumer string) (int64, error) {
	var addedID int64
	err := c.pool.QueryRow(ctx,
		`SELECT last_added_id FROM notify_checkpoints WHERE shard_id = $1 AND consumer = $2`,
		int(shardID), consumer,
	).Scan(&addedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint shard %d consumer %s: %w", shardID, consumer, err)
	}
	return addedID, nil
}

func (c *PostgresCheckpoint) Save(ctx context.Context, shardID shard.ID, consumer string, addedID int64) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO notify_checkpoints (shard_id, consumer, last_added_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (shard_id, consumer)
		DO UPDATE SET last_added_id = $3, updated_at = now()
	`, int(shardID), consumer, addedID)
	if err != nil {
		return fmt.Errorf("save checkpoint shard %d consumer %s: %w", shardID, consumer, err)
	}
	return nil
}
