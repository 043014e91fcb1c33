// Package session ties one member's editing of an event grid to the
// aggregate view of everyone's responses. A Session is the read model and
// event sink a front end binds to.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/gesture"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/response"
)

// ErrNoMember is returned by Submit when the session was opened without a
// member identity.
var ErrNoMember = errors.New("session has no member")

// EventSnapshot is what a Backend returns for one event. Thresholds and
// Scoring carry the server's settings; zero values mean none were sent.
type EventSnapshot struct {
	ID         string
	Title      string
	Mode       grid.Mode
	Mask       *grid.SlotMask
	Responses  []response.MemberResponse
	Thresholds gesture.Thresholds
	Scoring    aggregate.Params
}

// Backend is the persistence collaborator a Session talks to.
type Backend interface {
	FetchEvent(ctx context.Context, eventID string) (EventSnapshot, error)
	SubmitResponse(ctx context.Context, eventID, member string, availability grid.Draft, note string) (response.MemberResponse, error)
	ExcludeMember(ctx context.Context, eventID, member string) error
}

// Options configures a Session. Zero Thresholds and Scoring fall back to the
// event snapshot's settings, then to the package defaults.
type Options struct {
	// Member is the identity submitting the draft. Organizers viewing the
	// heat-map only may leave it empty.
	Member        string
	SelectedLevel grid.Level
	Thresholds    gesture.Thresholds
	Scoring       aggregate.Params
}

// Session is one member's edit session on one event. It is not safe for
// concurrent use.
type Session struct {
	backend    Backend
	event      EventSnapshot
	member     string
	scoring    aggregate.Params
	ctrl       *gesture.Controller
	responses  *response.Collection
	exclusions *response.Exclusions
}

// Open fetches the event and starts a session. The draft is seeded from the
// member's previous response, if any.
func Open(ctx context.Context, backend Backend, eventID string, opts Options) (*Session, error) {
	ev, err := backend.FetchEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("fetch event %s: %w", eventID, err)
	}
	if ev.Mask == nil {
		return nil, fmt.Errorf("event %s has no slot mask", eventID)
	}

	coll := response.NewCollection(ev.Responses...)
	draft := grid.Draft{}
	if prev, ok := coll.Get(opts.Member); ok && opts.Member != "" {
		draft = prev.Availability.Sanitize(ev.Mask)
	}

	scoring := opts.Scoring
	if scoring.Scheme == "" {
		scoring = ev.Scoring
	}
	if scoring.Scheme == "" {
		scoring = aggregate.DefaultParams()
	}
	thresholds := opts.Thresholds
	if thresholds == (gesture.Thresholds{}) {
		thresholds = ev.Thresholds
	}

	return &Session{
		backend: backend,
		event:   ev,
		member:  opts.Member,
		scoring: scoring,
		ctrl: gesture.NewController(ev.Mask, draft, gesture.Config{
			Mode:          ev.Mode,
			SelectedLevel: opts.SelectedLevel,
			Thresholds:    thresholds,
		}),
		responses:  coll,
		exclusions: response.NewExclusions(),
	}, nil
}

// EventID returns the event being edited.
func (s *Session) EventID() string { return s.event.ID }

// Handle feeds one input event to the grid controller.
func (s *Session) Handle(ev gesture.Event) gesture.Patch {
	return s.ctrl.Handle(ev)
}

// SetSelectedLevel changes the level painted in level mode.
func (s *Session) SetSelectedLevel(l grid.Level) {
	s.ctrl.SetSelectedLevel(l)
}

// Draft returns a copy of the member's unsubmitted availability.
func (s *Session) Draft() grid.Draft {
	return s.ctrl.Draft().Clone()
}

// Responses returns the submitted responses known to this session.
func (s *Session) Responses() []response.MemberResponse {
	return s.responses.List()
}

// Aggregate computes the heat-map over every response not excluded.
func (s *Session) Aggregate() aggregate.Result {
	return aggregate.Compute(s.responses.List(), s.event.Mask, s.exclusions.Excluded(), s.scoring)
}

// Submit sends the draft as the member's response. On success the local
// collection is updated, replacing any earlier response. On failure the
// draft is left as is so the caller can retry.
func (s *Session) Submit(ctx context.Context, note string) error {
	if s.member == "" {
		return ErrNoMember
	}
	draft := s.ctrl.Draft().Sanitize(s.event.Mask)
	stored, err := s.backend.SubmitResponse(ctx, s.event.ID, s.member, draft, note)
	if err != nil {
		return fmt.Errorf("submit response: %w", err)
	}
	if stored.Member == "" {
		stored.Member = s.member
	}
	if stored.Availability == nil {
		stored.Availability = draft
	}
	s.responses.Upsert(stored)
	return nil
}

// ToggleExclusion hides or shows member in the local heat-map. It never
// talks to the backend. It reports whether member is now hidden; a
// permanently excluded member stays hidden.
func (s *Session) ToggleExclusion(member string) bool {
	if s.exclusions.IsPermanentlyExcluded(member) {
		return true
	}
	return s.exclusions.Toggle(member)
}

// ExcludePermanently deletes member's response on the backend and, once
// that succeeds, drops it locally.
func (s *Session) ExcludePermanently(ctx context.Context, member string) error {
	return s.exclusions.ExcludePermanently(ctx, s.backend, s.responses, s.event.ID, member)
}
