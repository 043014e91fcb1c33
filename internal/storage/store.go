package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/response"
)

var (
	// ErrEventNotFound is returned when an event lookup finds no row.
	ErrEventNotFound = errors.New("event not found")
	// ErrResponseNotFound is returned when a member has no stored response.
	ErrResponseNotFound = errors.New("response not found")
	// ErrGroupNotFound is returned when a group lookup finds no row.
	ErrGroupNotFound = errors.New("group not found")
	// ErrMemberNotFound is returned when removing someone who is not in the group.
	ErrMemberNotFound = errors.New("group member not found")
)

// Group is an organizer's standing list of members. Events belong to a
// group and invite its members unless told otherwise.
type Group struct {
	ID        string
	Name      string
	Organizer string
	Members   []string
	CreatedAt time.Time
}

// Event is an organizer's proposed calendar of slots.
type Event struct {
	ID          uuid.UUID
	GroupID     string
	Organizer   string
	Title       string
	Description string
	Mode        grid.Mode
	Dates       []string
	Times       []string
	Template    map[grid.CellKey]bool
	Invitees    []string
	CreatedAt   time.Time
}

// Grid builds the event's date × time grid.
func (e *Event) Grid() (*grid.Grid, error) {
	return grid.New(e.Dates, e.Times)
}

// Mask builds the event's slot mask. A nil template offers every cell.
func (e *Event) Mask() (*grid.SlotMask, error) {
	g, err := e.Grid()
	if err != nil {
		return nil, err
	}
	if e.Template == nil {
		return grid.FullMask(g), nil
	}
	return grid.NewSlotMask(g, e.Template), nil
}

// StoredResponse is a member response with its position in the shard's
// write log.
type StoredResponse struct {
	AddedID int64
	EventID uuid.UUID
	response.MemberResponse
}

// EventStore is the primary storage interface for a single shard. Events
// and responses live on the shard of the event id, groups on the shard of
// the group id.
type EventStore interface {
	// CreateGroup inserts g and its members.
	CreateGroup(ctx context.Context, g *Group) (*Group, error)

	// GetGroup returns the group with members in the order they joined, or
	// ErrGroupNotFound.
	GetGroup(ctx context.Context, id string) (*Group, error)

	// DeleteGroup removes the group and its membership.
	DeleteGroup(ctx context.Context, id string) error

	// AddGroupMember adds member. Adding an existing member is a no-op.
	AddGroupMember(ctx context.Context, groupID, member string) error

	// RemoveGroupMember removes member or returns ErrMemberNotFound.
	RemoveGroupMember(ctx context.Context, groupID, member string) error

	// CreateEvent inserts ev and returns it with its creation time set.
	CreateEvent(ctx context.Context, ev *Event) (*Event, error)

	// GetEvent returns the event or ErrEventNotFound.
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)

	// DeleteEvent removes the event and its responses.
	DeleteEvent(ctx context.Context, id uuid.UUID) error

	// ListUpcomingEvents returns events with at least one date on or after
	// from. Dates are compared as ISO strings and need not be sorted.
	ListUpcomingEvents(ctx context.Context, from string) ([]Event, error)

	// UpsertResponse stores r, replacing the member's previous response.
	UpsertResponse(ctx context.Context, eventID uuid.UUID, r response.MemberResponse) (*StoredResponse, error)

	// DeleteResponse removes the member's response or returns ErrResponseNotFound.
	DeleteResponse(ctx context.Context, eventID uuid.UUID, member string) error

	// ListResponses returns the event's responses in submission order.
	ListResponses(ctx context.Context, eventID uuid.UUID) ([]StoredResponse, error)

	// ScanResponses returns responses written after afterAddedID, ordered by
	// added_id. Used by the response watcher.
	ScanResponses(ctx context.Context, afterAddedID int64, limit int) ([]StoredResponse, error)
}
