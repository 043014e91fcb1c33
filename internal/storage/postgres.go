package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/response"
)

// PostgresStore implements EventStore for a single shard using PostgreSQL.
type PostgresStore struct {
	pool         *pgxpool.Pool
	groups       string
	members      string
	events       string
	responses    string
	queryTimeout time.Duration
}

// NewPostgresStore creates an EventStore backed by one shard's tables.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, shardID int, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		groups:       GroupsTable(shardID),
		members:      GroupMembersTable(shardID),
		events:       EventsTable(shardID),
		responses:    ResponsesTable(shardID),
		queryTimeout: queryTimeout,
	}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

func (s *PostgresStore) CreateGroup(ctx context.Context, g *Group) (*Group, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create group: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	out := &Group{ID: g.ID, Name: g.Name, Organizer: g.Organizer}
	err = tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, organizer) VALUES ($1, $2, $3)
		RETURNING created_at
	`, s.groups), g.ID, g.Name, g.Organizer).Scan(&out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	members := g.Members
	if members == nil {
		members = []string{}
	}
	// WITH ORDINALITY keeps the caller's order in added_id.
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (group_id, member)
		SELECT $1, m FROM unnest($2::text[]) WITH ORDINALITY AS t(m, n)
		ORDER BY n
		ON CONFLICT (group_id, member) DO NOTHING
	`, s.members), g.ID, members)
	if err != nil {
		return nil, fmt.Errorf("create group members: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create group: commit: %w", err)
	}

	out.Members = dedupe(members)
	return out, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var g Group
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, name, organizer, created_at FROM %s WHERE id = $1
	`, s.groups), id).Scan(&g.ID, &g.Name, &g.Organizer, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT member FROM %s WHERE group_id = $1 ORDER BY added_id ASC
	`, s.members), id)
	if err != nil {
		return nil, fmt.Errorf("get group members: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("get group members scan: %w", err)
	}
	g.Members = members
	if g.Members == nil {
		g.Members = []string{}
	}
	return &g, nil
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Membership rows go with the group through ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.groups), id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (s *PostgresStore) AddGroupMember(ctx context.Context, groupID, member string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (group_id, member)
		SELECT id, $2 FROM %s WHERE id = $1
		ON CONFLICT (group_id, member) DO NOTHING
	`, s.members, s.groups), groupID, member)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing inserted: either the member is already there or the group is gone.
	var exists bool
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.groups), groupID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	if !exists {
		return ErrGroupNotFound
	}
	return nil
}

func (s *PostgresStore) RemoveGroupMember(ctx context.Context, groupID, member string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE group_id = $1 AND member = $2`, s.members), groupID, member)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// dedupe drops repeated members, keeping first occurrences.
func dedupe(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

const eventColumns = `id, group_id, organizer, title, description, mode, dates, times, template, invitees, created_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *Event) (*Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tmpl, err := json.Marshal(ev.Template)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	invitees := ev.Invitees
	if invitees == nil {
		invitees = []string{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, group_id, organizer, title, description, mode, dates, times, template, invitees)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s
	`, s.events, eventColumns)

	row := s.pool.QueryRow(ctx, query,
		ev.ID, ev.GroupID, ev.Organizer, ev.Title, ev.Description, string(ev.Mode),
		ev.Dates, ev.Times, json.RawMessage(tmpl), invitees,
	)
	out, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, eventColumns, s.events)

	ev, err := scanEvent(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete event: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE event_id = $1`, s.responses), id); err != nil {
		return fmt.Errorf("delete event responses: %w", err)
	}
	tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.events), id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListUpcomingEvents(ctx context.Context, from string) ([]Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE EXISTS (SELECT 1 FROM unnest(dates) AS d WHERE d >= $1)
		ORDER BY created_at ASC
	`, eventColumns, s.events)

	rows, err := s.pool.Query(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list upcoming events scan: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

const responseColumns = `added_id, event_id, member, availability, note, submitted_at`

func (s *PostgresStore) UpsertResponse(ctx context.Context, eventID uuid.UUID, r response.MemberResponse) (*StoredResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	availability := r.Availability
	if availability == nil {
		availability = grid.Draft{}
	}
	body, err := json.Marshal(availability)
	if err != nil {
		return nil, fmt.Errorf("marshal availability: %w", err)
	}

	// added_id is reassigned on replace so watchers see the new version.
	query := fmt.Sprintf(`
		INSERT INTO %s (event_id, member, availability, note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, member) DO UPDATE SET
			availability = EXCLUDED.availability,
			note         = EXCLUDED.note,
			submitted_at = now(),
			added_id     = DEFAULT
		RETURNING %s
	`, s.responses, responseColumns)

	out, err := scanResponse(s.pool.QueryRow(ctx, query, eventID, r.Member, json.RawMessage(body), r.Note))
	if err != nil {
		return nil, fmt.Errorf("upsert response: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteResponse(ctx context.Context, eventID uuid.UUID, member string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE event_id = $1 AND member = $2`, s.responses)
	tag, err := s.pool.Exec(ctx, query, eventID, member)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResponseNotFound
	}
	return nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, eventID uuid.UUID) ([]StoredResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE event_id = $1
		ORDER BY submitted_at ASC, member ASC
	`, responseColumns, s.responses)

	return s.queryResponses(ctx, query, eventID)
}

func (s *PostgresStore) ScanResponses(ctx context.Context, afterAddedID int64, limit int) ([]StoredResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE added_id > $1
		ORDER BY added_id ASC
		LIMIT $2
	`, responseColumns, s.responses)

	return s.queryResponses(ctx, query, afterAddedID, limit)
}

func (s *PostgresStore) queryResponses(ctx context.Context, query string, args ...any) ([]StoredResponse, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []StoredResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("query responses scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		ev   Event
		mode string
		tmpl []byte
	)
	if err := row.Scan(&ev.ID, &ev.GroupID, &ev.Organizer, &ev.Title, &ev.Description, &mode,
		&ev.Dates, &ev.Times, &tmpl, &ev.Invitees, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Mode = grid.Mode(mode)
	if err := json.Unmarshal(tmpl, &ev.Template); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &ev, nil
}

func scanResponse(row pgx.Row) (*StoredResponse, error) {
	var (
		r    StoredResponse
		body []byte
	)
	if err := row.Scan(&r.AddedID, &r.EventID, &r.Member, &body, &r.Note, &r.SubmittedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &r.Availability); err != nil {
		return nil, fmt.Errorf("unmarshal availability: %w", err)
	}
	return &r, nil
}
