package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/api"
	"github.com/ryanbastic/go-slotgrid/internal/gesture"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/index"
	"github.com/ryanbastic/go-slotgrid/internal/session"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage/storagetest"
)

const testShards = 2

type nopIndexStore struct{}

func (nopIndexStore) WriteEntry(context.Context, index.Entry) error {
	return nil
}

func (nopIndexStore) DeleteEntry(context.Context, string, uuid.UUID) error {
	return nil
}

func (nopIndexStore) ListByGroup(context.Context, string, int64, int) ([]index.Entry, error) {
	return nil, nil
}

func newAPIServer(t *testing.T, opts ...func(*api.Deps)) *httptest.Server {
	t.Helper()
	store := storagetest.New()
	router := shard.NewRouter(testShards)
	idx := index.NewRegistry(testShards)
	for i := 0; i < testShards; i++ {
		router.Register(shard.ID(i), store)
		idx.RegisterStore(shard.ID(i), nopIndexStore{})
	}
	deps := api.Deps{
		Logger: slog.New(slog.DiscardHandler),
		Router: router,
		Index:  idx,
	}
	for _, o := range opts {
		o(&deps)
	}
	srv := httptest.NewServer(api.NewServer(deps))
	t.Cleanup(srv.Close)
	return srv
}

func createEvent(t *testing.T, c *Client) string {
	t.Helper()
	groupID, err := c.CreateGroup(context.Background(), "Book club", []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	id, err := c.CreateEvent(context.Background(), EventSpec{
		GroupID:  groupID,
		Title:    "March meetup",
		Dates:    []string{"2025-03-10", "2025-03-11"},
		Start:    "9am",
		End:      "11am",
		Template: []string{"2025-03-10_9am", "2025-03-10_10am", "2025-03-11_9am"},
		Invitees: []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return id
}

func TestFetchEvent_RebuildsMask(t *testing.T) {
	srv := newAPIServer(t)
	c := New(srv.URL, WithOrganizer("alice"))
	id := createEvent(t, c)

	ev, err := c.FetchEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("FetchEvent: %v", err)
	}
	if ev.ID != id || ev.Title != "March meetup" || ev.Mode != grid.ModeBinary {
		t.Errorf("snapshot: got %+v", ev)
	}
	if ev.Mask.Len() != 3 {
		t.Errorf("offered: got %d, want 3", ev.Mask.Len())
	}
	if ev.Mask.IsOffered(grid.Key("2025-03-11", "11am")) {
		t.Error("2025-03-11_11am should not be offered")
	}
	if len(ev.Mask.Grid().Times()) != 3 {
		t.Errorf("times: got %v", ev.Mask.Grid().Times())
	}
}

func TestFetchEvent_CarriesServerSettings(t *testing.T) {
	want := gesture.Thresholds{MoveDistance: 24, TapMaxDuration: 400 * time.Millisecond}
	srv := newAPIServer(t, func(d *api.Deps) {
		d.Thresholds = want
		d.Scoring = aggregate.Params{Scheme: aggregate.SchemeCount, PenaltyWeight: 4, MaxLevel: grid.MaxLevel}
	})
	c := New(srv.URL, WithOrganizer("alice"))
	id := createEvent(t, c)

	ev, err := c.FetchEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("FetchEvent: %v", err)
	}
	if ev.Thresholds != want {
		t.Errorf("thresholds: got %+v, want %+v", ev.Thresholds, want)
	}
	if ev.Scoring.Scheme != aggregate.SchemeCount || ev.Scoring.MaxLevel != grid.MaxLevel {
		t.Errorf("scoring: got %+v", ev.Scoring)
	}
}

func TestGroupMembership(t *testing.T) {
	srv := newAPIServer(t)
	ctx := context.Background()
	alice := New(srv.URL, WithOrganizer("alice"))
	bob := New(srv.URL, WithOrganizer("bob"))

	groupID, err := alice.CreateGroup(ctx, "Choir", nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := alice.AddGroupMember(ctx, groupID, "dave"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}

	var apiErr *APIError
	if err := bob.AddGroupMember(ctx, groupID, "bob"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Errorf("non-organizer add: got %v, want 403 APIError", err)
	}
	if err := alice.RemoveGroupMember(ctx, groupID, "erin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove non-member: got %v, want ErrNotFound", err)
	}
	if err := alice.RemoveGroupMember(ctx, groupID, "dave"); err != nil {
		t.Errorf("RemoveGroupMember: %v", err)
	}
}

func TestFetchEvent_NotFound(t *testing.T) {
	srv := newAPIServer(t)
	c := New(srv.URL)

	_, err := c.FetchEvent(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSession_EndToEnd(t *testing.T) {
	srv := newAPIServer(t)
	organizer := New(srv.URL, WithOrganizer("alice"))
	id := createEvent(t, organizer)
	ctx := context.Background()

	nine := grid.Key("2025-03-10", "9am")
	ten := grid.Key("2025-03-10", "10am")

	for _, m := range []struct {
		member string
		cells  []grid.CellKey
	}{
		{"bob", []grid.CellKey{nine}},
		{"carol", []grid.CellKey{nine, ten}},
	} {
		s, err := session.Open(ctx, New(srv.URL), id, session.Options{Member: m.member})
		if err != nil {
			t.Fatalf("Open(%s): %v", m.member, err)
		}
		for _, k := range m.cells {
			s.Handle(gesture.Event{Kind: gesture.Press, Pointer: gesture.Mouse, Cell: k})
			s.Handle(gesture.Event{Kind: gesture.Release, Pointer: gesture.Mouse, Cell: k})
		}
		if err := s.Submit(ctx, ""); err != nil {
			t.Fatalf("Submit(%s): %v", m.member, err)
		}
	}

	s, err := session.Open(ctx, organizer, id, session.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	res := s.Aggregate()
	if res.Considered != 2 {
		t.Errorf("considered: got %d, want 2", res.Considered)
	}
	if got := res.Cells[nine].Respondents; got != 2 {
		t.Errorf("9am respondents: got %d, want 2", got)
	}

	if err := s.ExcludePermanently(ctx, "carol"); err != nil {
		t.Fatalf("ExcludePermanently: %v", err)
	}
	reopened, err := session.Open(ctx, organizer, id, session.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(reopened.Responses()); got != 1 {
		t.Errorf("responses after exclusion: got %d, want 1", got)
	}
}

func TestSession_SeedsDraftFromPreviousResponse(t *testing.T) {
	srv := newAPIServer(t)
	c := New(srv.URL, WithOrganizer("alice"))
	id := createEvent(t, c)
	nine := grid.Key("2025-03-10", "9am")

	if _, err := c.SubmitResponse(context.Background(), id, "bob", grid.Draft{nine: grid.Ideal}, "ok"); err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	s, err := session.Open(context.Background(), c, id, session.Options{Member: "bob"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Draft().Get(nine); got != grid.Ideal {
		t.Errorf("seeded draft: got %d, want %d", got, grid.Ideal)
	}
}

func TestExcludeMember_RequiresOrganizer(t *testing.T) {
	srv := newAPIServer(t)
	id := createEvent(t, New(srv.URL, WithOrganizer("alice")))
	bob := New(srv.URL, WithOrganizer("bob"))

	if _, err := bob.SubmitResponse(context.Background(), id, "bob", grid.Draft{}, ""); err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	err := bob.ExcludeMember(context.Background(), id, "bob")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Errorf("got %v, want 403 APIError", err)
	}
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(3, time.Millisecond))
	if err := c.ExcludeMember(context.Background(), uuid.NewString(), "bob"); err != nil {
		t.Fatalf("ExcludeMember: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls: got %d, want 3", got)
	}
}

func TestDo_DoesNotRetryClientErrorsOrPosts(t *testing.T) {
	tests := []struct {
		name   string
		status int
		call   func(c *Client) error
	}{
		{"4xx delete", http.StatusNotFound, func(c *Client) error {
			return c.ExcludeMember(context.Background(), "x", "bob")
		}},
		{"5xx post", http.StatusServiceUnavailable, func(c *Client) error {
			_, err := c.CreateEvent(context.Background(), EventSpec{Title: "t"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"title":"x","detail":"nope"}`))
			}))
			defer srv.Close()

			err := tt.call(New(srv.URL, WithRetry(3, time.Millisecond)))
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Status != tt.status || apiErr.Message != "nope" {
				t.Errorf("got %v, want APIError %d nope", err, tt.status)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls: got %d, want 1", got)
			}
		})
	}
}
