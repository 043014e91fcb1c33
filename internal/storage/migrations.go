package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrationsForPool creates the group, event and response tables for
// shards [shardStart, shardEnd].
func RunMigrationsForPool(ctx context.Context, pool *pgxpool.Pool, shardStart, shardEnd int) error {
	for i := shardStart; i <= shardEnd; i++ {
		events, responses := EventsTable(i), ResponsesTable(i)
		groups, members := GroupsTable(i), GroupMembersTable(i)
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[3]s (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				organizer  TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE TABLE IF NOT EXISTS %[4]s (
				added_id BIGSERIAL NOT NULL,
				group_id TEXT NOT NULL REFERENCES %[3]s (id) ON DELETE CASCADE,
				member   TEXT NOT NULL,

				PRIMARY KEY (group_id, member)
			);

			CREATE TABLE IF NOT EXISTS %[1]s (
				id          UUID PRIMARY KEY,
				group_id    TEXT NOT NULL,
				organizer   TEXT NOT NULL,
				title       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				mode        TEXT NOT NULL,
				dates       TEXT[] NOT NULL,
				times       TEXT[] NOT NULL,
				template    JSONB NOT NULL,
				invitees    TEXT[] NOT NULL DEFAULT '{}',
				created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE TABLE IF NOT EXISTS %[2]s (
				added_id     BIGSERIAL NOT NULL,
				event_id     UUID NOT NULL,
				member       TEXT NOT NULL,
				availability JSONB NOT NULL,
				note         TEXT NOT NULL DEFAULT '',
				submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),

				PRIMARY KEY (event_id, member)
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_%[2]s_added
				ON %[2]s (added_id);
		`, events, responses, groups, members)

		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate shard %d: %w", i, err)
		}
	}

	return nil
}

// EventsTable returns the events table name for a shard.
func EventsTable(shardID int) string {
	return fmt.Sprintf("events_%04d", shardID)
}

// ResponsesTable returns the responses table name for a shard.
func ResponsesTable(shardID int) string {
	return fmt.Sprintf("responses_%04d", shardID)
}

// GroupsTable returns the groups table name for a shard.
func GroupsTable(shardID int) string {
	return fmt.Sprintf("groups_%04d", shardID)
}

// GroupMembersTable returns the group membership table name for a shard.
func GroupMembersTable(shardID int) string {
	return fmt.Sprintf("group_members_%04d", shardID)
}
