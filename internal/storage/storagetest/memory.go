// Package storagetest provides an in-memory storage.EventStore for tests.
// Groups, events and responses share one map each regardless of shard.
package storagetest

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-slotgrid/internal/response"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

// Store is a thread-safe in-memory EventStore. Set Err to make every call
// fail with it.
type Store struct {
	mu        sync.Mutex
	groups    map[string]storage.Group
	events    map[uuid.UUID]storage.Event
	responses map[uuid.UUID]map[string]storage.StoredResponse
	nextAdded int64
	now       time.Time

	Err error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		groups:    make(map[string]storage.Group),
		events:    make(map[uuid.UUID]storage.Event),
		responses: make(map[uuid.UUID]map[string]storage.StoredResponse),
		now:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp so ordering is deterministic.
func (s *Store) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *Store) CreateGroup(_ context.Context, g *storage.Group) (*storage.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if _, dup := s.groups[g.ID]; dup {
		return nil, errors.New("duplicate group id")
	}
	out := *g
	out.Members = nil
	for _, m := range g.Members {
		if !slices.Contains(out.Members, m) {
			out.Members = append(out.Members, m)
		}
	}
	if out.Members == nil {
		out.Members = []string{}
	}
	out.CreatedAt = s.tick()
	s.groups[g.ID] = out
	return copyGroup(out), nil
}

func (s *Store) GetGroup(_ context.Context, id string) (*storage.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	g, ok := s.groups[id]
	if !ok {
		return nil, storage.ErrGroupNotFound
	}
	return copyGroup(g), nil
}

func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.groups[id]; !ok {
		return storage.ErrGroupNotFound
	}
	delete(s.groups, id)
	return nil
}

func (s *Store) AddGroupMember(_ context.Context, groupID, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrGroupNotFound
	}
	if !slices.Contains(g.Members, member) {
		g.Members = append(slices.Clone(g.Members), member)
		s.groups[groupID] = g
	}
	return nil
}

func (s *Store) RemoveGroupMember(_ context.Context, groupID, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrMemberNotFound
	}
	i := slices.Index(g.Members, member)
	if i < 0 {
		return storage.ErrMemberNotFound
	}
	g.Members = slices.Delete(slices.Clone(g.Members), i, i+1)
	s.groups[groupID] = g
	return nil
}

func copyGroup(g storage.Group) *storage.Group {
	g.Members = slices.Clone(g.Members)
	return &g
}

func (s *Store) CreateEvent(_ context.Context, ev *storage.Event) (*storage.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if _, dup := s.events[ev.ID]; dup {
		return nil, errors.New("duplicate event id")
	}
	out := *ev
	out.CreatedAt = s.tick()
	s.events[ev.ID] = out
	return &out, nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*storage.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	ev, ok := s.events[id]
	if !ok {
		return nil, storage.ErrEventNotFound
	}
	return &ev, nil
}

func (s *Store) DeleteEvent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.events[id]; !ok {
		return storage.ErrEventNotFound
	}
	delete(s.events, id)
	delete(s.responses, id)
	return nil
}

func (s *Store) ListUpcomingEvents(_ context.Context, from string) ([]storage.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []storage.Event
	for _, ev := range s.events {
		if len(ev.Dates) > 0 && slices.Max(ev.Dates) >= from {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpsertResponse(_ context.Context, eventID uuid.UUID, r response.MemberResponse) (*storage.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	byMember, ok := s.responses[eventID]
	if !ok {
		byMember = make(map[string]storage.StoredResponse)
		s.responses[eventID] = byMember
	}
	s.nextAdded++
	r.SubmittedAt = s.tick()
	stored := storage.StoredResponse{AddedID: s.nextAdded, EventID: eventID, MemberResponse: r}
	byMember[r.Member] = stored
	return &stored, nil
}

func (s *Store) DeleteResponse(_ context.Context, eventID uuid.UUID, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.responses[eventID][member]; !ok {
		return storage.ErrResponseNotFound
	}
	delete(s.responses[eventID], member)
	return nil
}

func (s *Store) ListResponses(_ context.Context, eventID uuid.UUID) ([]storage.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]storage.StoredResponse, 0, len(s.responses[eventID]))
	for _, r := range s.responses[eventID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedID < out[j].AddedID })
	return out, nil
}

func (s *Store) ScanResponses(_ context.Context, afterAddedID int64, limit int) ([]storage.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []storage.StoredResponse
	for _, byMember := range s.responses {
		for _, r := range byMember {
			if r.AddedID > afterAddedID {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedID < out[j].AddedID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ storage.EventStore = (*Store)(nil)
