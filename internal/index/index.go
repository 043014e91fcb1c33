// Package index maintains the events-by-group secondary index. Events are
// sharded by event id; the index is sharded by group id so one group's
// listing reads a single table.
package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

// Entry is a single row in the group index.
type Entry struct {
	AddedID   int64     `json:"added_id"`
	GroupID   string    `json:"group_id"`
	EventID   uuid.UUID `json:"event_id"`
	Title     string    `json:"title"`
	Organizer string    `json:"organizer"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is one page of a group listing.
type Page struct {
	Entries    []Entry
	NextCursor string
}

// IndexStore reads and writes the index for a single shard.
type IndexStore interface {
	WriteEntry(ctx context.Context, e Entry) error
	DeleteEntry(ctx context.Context, groupID string, eventID uuid.UUID) error
	ListByGroup(ctx context.Context, groupID string, afterAddedID int64, limit int) ([]Entry, error)
}

// Store handles index operations for a single shard.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// NewStore creates an index Store for a specific shard.
func NewStore(pool *pgxpool.Pool, shardID int) *Store {
	return &Store{pool: pool, table: IndexTable(shardID)}
}

// IndexTable returns the index table name for a shard.
func IndexTable(shardID int) string {
	return fmt.Sprintf("events_by_group_%04d", shardID)
}

// WriteEntry inserts e. Re-indexing the same event is a no-op.
func (s *Store) WriteEntry(ctx context.Context, e Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (group_id, event_id, title, organizer)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, event_id) DO NOTHING
	`, s.table)

	if _, err := s.pool.Exec(ctx, query, e.GroupID, e.EventID, e.Title, e.Organizer); err != nil {
		return fmt.Errorf("write index entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an event from its group's listing.
func (s *Store) DeleteEntry(ctx context.Context, groupID string, eventID uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE group_id = $1 AND event_id = $2`, s.table)
	if _, err := s.pool.Exec(ctx, query, groupID, eventID); err != nil {
		return fmt.Errorf("delete index entry: %w", err)
	}
	return nil
}

// ListByGroup returns up to limit entries for groupID after afterAddedID.
func (s *Store) ListByGroup(ctx context.Context, groupID string, afterAddedID int64, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT added_id, group_id, event_id, title, organizer, created_at
		FROM %s
		WHERE group_id = $1 AND added_id > $2
		ORDER BY added_id ASC
		LIMIT $3
	`, s.table)

	rows, err := s.pool.Query(ctx, query, groupID, afterAddedID, limit)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.AddedID, &e.GroupID, &e.EventID, &e.Title, &e.Organizer, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateTablesRange creates index tables for shards [shardStart, shardEnd].
func CreateTablesRange(ctx context.Context, pool *pgxpool.Pool, shardStart, shardEnd int) error {
	for i := shardStart; i <= shardEnd; i++ {
		table := IndexTable(i)
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				added_id   BIGSERIAL PRIMARY KEY,
				group_id   TEXT NOT NULL,
				event_id   UUID NOT NULL,
				title      TEXT NOT NULL,
				organizer  TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

				CONSTRAINT uq_%s_event UNIQUE (group_id, event_id)
			);
		`, table, table)
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create index table %s: %w", table, err)
		}
	}
	return nil
}

// Registry holds the per-shard index stores.
type Registry struct {
	mu        sync.RWMutex
	stores    map[shard.ID]IndexStore
	numShards int
}

// NewRegistry creates an empty Registry over numShards shards.
func NewRegistry(numShards int) *Registry {
	return &Registry{stores: make(map[shard.ID]IndexStore), numShards: numShards}
}

// RegisterRange creates stores for shards [shardStart, shardEnd]. Calling it
// once per backend builds the full map.
func (r *Registry) RegisterRange(pool *pgxpool.Pool, shardStart, shardEnd int) {
	for i := shardStart; i <= shardEnd; i++ {
		r.RegisterStore(shard.ID(i), NewStore(pool, i))
	}
}

// RegisterStore registers the store for one shard.
func (r *Registry) RegisterStore(id shard.ID, store IndexStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[id] = store
}

// StoreForGroup returns the store holding groupID's entries.
func (r *Registry) StoreForGroup(groupID string) (IndexStore, error) {
	id := shard.ForKey(groupID, r.numShards)
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, fmt.Errorf("no index store for shard %d", id)
	}
	return s, nil
}

// IndexEvent adds ev to its group's listing.
func (r *Registry) IndexEvent(ctx context.Context, ev *storage.Event) error {
	s, err := r.StoreForGroup(ev.GroupID)
	if err != nil {
		return err
	}
	return s.WriteEntry(ctx, Entry{
		GroupID:   ev.GroupID,
		EventID:   ev.ID,
		Title:     ev.Title,
		Organizer: ev.Organizer,
	})
}

// UnindexEvent removes ev from its group's listing.
func (r *Registry) UnindexEvent(ctx context.Context, ev *storage.Event) error {
	s, err := r.StoreForGroup(ev.GroupID)
	if err != nil {
		return err
	}
	return s.DeleteEntry(ctx, ev.GroupID, ev.ID)
}

// ListGroup returns one page of groupID's events. cursor is the opaque
// token from a previous page, or empty for the first.
func (r *Registry) ListGroup(ctx context.Context, groupID, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := storage.DecodeCursor(groupID, cursor)
	if err != nil {
		return nil, err
	}
	s, err := r.StoreForGroup(groupID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ListByGroup(ctx, groupID, c.After, limit)
	if err != nil {
		return nil, err
	}

	page := &Page{Entries: entries}
	if len(entries) == limit {
		next, err := storage.Cursor{GroupID: groupID, After: entries[len(entries)-1].AddedID}.Encode()
		if err != nil {
			return nil, err
		}
		page.NextCursor = next
	}
	return page, nil
}
