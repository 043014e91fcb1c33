package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/cache"
	"github.com/ryanbastic/go-slotgrid/internal/gesture"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/index"
	"github.com/ryanbastic/go-slotgrid/internal/notify"
	"github.com/ryanbastic/go-slotgrid/internal/response"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

// --- Huma Input/Output types ---

type CreateEventBody struct {
	GroupID     string   `json:"group_id" doc:"Group the event belongs to; the caller must organize it" minLength:"1" maxLength:"200"`
	Title       string   `json:"title" doc:"Event title" minLength:"1" maxLength:"200"`
	Description string   `json:"description,omitempty" doc:"Free-form description"`
	Mode        string   `json:"mode,omitempty" doc:"Painting mode" enum:"binary,level"`
	Dates       []string `json:"dates" doc:"ISO dates, one grid column each" minItems:"1"`
	Times       []string `json:"times,omitempty" doc:"Time labels, one grid row each"`
	Start       string   `json:"start,omitempty" doc:"First hour label when times is omitted" example:"9am"`
	End         string   `json:"end,omitempty" doc:"Last hour label when times is omitted" example:"5pm"`
	Template    []string `json:"template,omitempty" doc:"Offered cell keys; omit to offer every cell" example:"[\"2025-03-10_9am\"]"`
	Invitees    []string `json:"invitees,omitempty" doc:"Members expected to respond; omit to invite every group member"`
}

type CreateEventInput struct {
	Organizer string `header:"X-Organizer" doc:"Organizer identity" required:"true" minLength:"1"`
	Body      CreateEventBody
}

type ResponseBody struct {
	Member       string         `json:"member" doc:"Responding member"`
	Availability map[string]int `json:"availability" doc:"Level per cell key"`
	Note         string         `json:"note,omitempty" doc:"Free-form note"`
	SubmittedAt  time.Time      `json:"submitted_at" doc:"Submission timestamp"`
}

// GestureBody carries the touch thresholds a grid front end should use.
type GestureBody struct {
	MoveThresholdPx  float64 `json:"move_threshold_px" doc:"Touch travel in pixels before a press becomes a drag"`
	TapMaxDurationMs int64   `json:"tap_max_duration_ms" doc:"Longest touch in milliseconds that still counts as a tap"`
}

// ScoringBody carries the server's heat-map scoring parameters so clients
// compute the same intensities locally.
type ScoringBody struct {
	Scheme        string  `json:"scheme" enum:"penalized,count"`
	PenaltyWeight float64 `json:"penalty_weight"`
	MaxLevel      int     `json:"max_level"`
}

type EventBody struct {
	ID          uuid.UUID      `json:"id" doc:"Event UUID"`
	GroupID     string         `json:"group_id"`
	Organizer   string         `json:"organizer"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Mode        string         `json:"mode" example:"binary"`
	Dates       []string       `json:"dates"`
	Times       []string       `json:"times"`
	Offered     []string       `json:"offered" doc:"Offered cell keys in grid order"`
	Invitees    []string       `json:"invitees"`
	CreatedAt   time.Time      `json:"created_at"`
	Gesture     GestureBody    `json:"gesture"`
	Scoring     ScoringBody    `json:"scoring"`
	Responses   []ResponseBody `json:"responses,omitempty"`
}

type CreateEventOutput struct {
	Body EventBody
}

type GetEventInput struct {
	EventID string `path:"event_id" doc:"Event UUID" format:"uuid"`
}

type GetEventOutput struct {
	Body EventBody
}

type DeleteEventInput struct {
	EventID   string `path:"event_id" doc:"Event UUID" format:"uuid"`
	Organizer string `header:"X-Organizer" doc:"Organizer identity" required:"true" minLength:"1"`
}

type ListGroupEventsInput struct {
	GroupID string `path:"group_id" doc:"Group identifier"`
	Cursor  string `query:"cursor" doc:"Opaque cursor from a previous page"`
	Limit   int    `query:"limit" doc:"Page size" default:"50" minimum:"1" maximum:"200"`
}

type GroupEventBody struct {
	EventID   uuid.UUID `json:"event_id"`
	Title     string    `json:"title"`
	Organizer string    `json:"organizer"`
	CreatedAt time.Time `json:"created_at"`
}

type ListGroupEventsOutput struct {
	Body struct {
		Events     []GroupEventBody `json:"events"`
		NextCursor string           `json:"next_cursor,omitempty" doc:"Cursor for the next page; empty on the last page"`
	}
}

// --- Handler ---

type EventHandler struct {
	router     *shard.Router
	index      *index.Registry
	publisher  notify.Publisher
	cache      cache.HeatmapCache
	thresholds gesture.Thresholds
	scoring    aggregate.Params
	logger     *slog.Logger
}

func NewEventHandler(router *shard.Router, idx *index.Registry, publisher notify.Publisher, c cache.HeatmapCache, thresholds gesture.Thresholds, scoring aggregate.Params, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		router:     router,
		index:      idx,
		publisher:  publisher,
		cache:      c,
		thresholds: thresholds,
		scoring:    scoring,
		logger:     logger,
	}
}

func registerEventRoutes(api huma.API, h *EventHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-event",
		Method:        http.MethodPost,
		Path:          "/v1/events",
		Summary:       "Create an event",
		Tags:          []string{"events"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateEvent)

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/v1/events/{event_id}",
		Summary:     "Get an event with its responses",
		Tags:        []string{"events"},
	}, h.GetEvent)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-event",
		Method:        http.MethodDelete,
		Path:          "/v1/events/{event_id}",
		Summary:       "Delete an event",
		Tags:          []string{"events"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeleteEvent)

	huma.Register(api, huma.Operation{
		OperationID: "list-group-events",
		Method:      http.MethodGet,
		Path:        "/v1/groups/{group_id}/events",
		Summary:     "List a group's events",
		Tags:        []string{"events"},
	}, h.ListGroupEvents)
}

func (h *EventHandler) CreateEvent(ctx context.Context, input *CreateEventInput) (*CreateEventOutput, error) {
	b := input.Body

	mode, err := grid.ParseMode(b.Mode)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	times := b.Times
	if len(times) == 0 {
		if b.Start == "" || b.End == "" {
			return nil, huma.Error400BadRequest("either times or start and end are required")
		}
		if times, err = grid.HourTimes(b.Start, b.End); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
	}
	g, err := grid.New(b.Dates, times)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	mask := grid.FullMask(g)
	if len(b.Template) > 0 {
		template := make(map[grid.CellKey]bool, len(b.Template))
		for _, s := range b.Template {
			k, err := grid.ParseKey(s)
			if err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
			if !g.Contains(k) {
				return nil, huma.Error400BadRequest("template cell " + s + " is outside the grid")
			}
			template[k] = true
		}
		mask = grid.NewSlotMask(g, template)
	}

	groupStore, _, err := h.router.StoreForGroup(b.GroupID)
	if err != nil {
		return nil, storeError(h.logger, "failed to route group", err)
	}
	group, err := groupStore.GetGroup(ctx, b.GroupID)
	if err != nil {
		return nil, storeError(h.logger, "failed to load group", err)
	}
	if err := authorize(group.Organizer, input.Organizer); err != nil {
		return nil, err
	}

	invitees := b.Invitees
	if invitees == nil {
		invitees = group.Members
	}

	ev := &storage.Event{
		ID:          uuid.New(),
		GroupID:     b.GroupID,
		Organizer:   input.Organizer,
		Title:       b.Title,
		Description: b.Description,
		Mode:        mode,
		Dates:       g.Dates(),
		Times:       g.Times(),
		Template:    mask.Template(),
		Invitees:    invitees,
	}
	if ev.Invitees == nil {
		ev.Invitees = []string{}
	}

	store, shardID, err := h.router.StoreForEvent(ev.ID)
	if err != nil {
		return nil, storeError(h.logger, "failed to route event", err)
	}
	created, err := store.CreateEvent(ctx, ev)
	if err != nil {
		return nil, storeError(h.logger, "failed to create event", err)
	}
	if err := h.index.IndexEvent(ctx, created); err != nil {
		h.logger.Error("failed to index event, rolling back", "event_id", created.ID, "error", err)
		if derr := store.DeleteEvent(ctx, created.ID); derr != nil {
			h.logger.Error("rollback failed", "event_id", created.ID, "error", derr)
		}
		return nil, huma.Error500InternalServerError("failed to index event")
	}

	h.logger.Info("event created", "event_id", created.ID, "group_id", created.GroupID, "shard", shardID, "offered", mask.Len())
	h.publisher.Notify(notify.TopicEventCreated, notify.EventCreated{
		EventID:   created.ID,
		GroupID:   created.GroupID,
		Title:     created.Title,
		Organizer: created.Organizer,
		Invitees:  created.Invitees,
		CreatedAt: created.CreatedAt,
	})

	body, err := h.eventBody(created, nil)
	if err != nil {
		return nil, storeError(h.logger, "failed to build event", err)
	}
	return &CreateEventOutput{Body: body}, nil
}

func (h *EventHandler) GetEvent(ctx context.Context, input *GetEventInput) (*GetEventOutput, error) {
	ev, responses, err := loadEvent(ctx, h.router, input.EventID)
	if err != nil {
		return nil, storeError(h.logger, "failed to load event", err)
	}
	body, err := h.eventBody(ev, responses)
	if err != nil {
		return nil, storeError(h.logger, "failed to build event", err)
	}
	return &GetEventOutput{Body: body}, nil
}

func (h *EventHandler) DeleteEvent(ctx context.Context, input *DeleteEventInput) (*struct{}, error) {
	id, err := uuid.Parse(input.EventID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid event_id")
	}
	store, _, err := h.router.StoreForEvent(id)
	if err != nil {
		return nil, storeError(h.logger, "failed to route event", err)
	}
	ev, err := store.GetEvent(ctx, id)
	if err != nil {
		return nil, storeError(h.logger, "failed to load event", err)
	}
	if err := authorize(ev.Organizer, input.Organizer); err != nil {
		return nil, err
	}
	if err := h.removeEvent(ctx, store, ev); err != nil {
		return nil, storeError(h.logger, "failed to delete event", err)
	}
	return nil, nil
}

// removeEvent deletes ev with its responses, then drops its index entry and
// cached heat-maps. Only the primary delete can fail the call.
func (h *EventHandler) removeEvent(ctx context.Context, store storage.EventStore, ev *storage.Event) error {
	if err := store.DeleteEvent(ctx, ev.ID); err != nil {
		return err
	}
	if err := h.index.UnindexEvent(ctx, ev); err != nil {
		h.logger.Error("failed to unindex event", "event_id", ev.ID, "error", err)
	}
	if err := h.cache.InvalidateEvent(ctx, ev.ID); err != nil {
		h.logger.Warn("failed to invalidate heatmap cache", "event_id", ev.ID, "error", err)
	}
	h.logger.Info("event deleted", "event_id", ev.ID, "group_id", ev.GroupID)
	return nil
}

func (h *EventHandler) ListGroupEvents(ctx context.Context, input *ListGroupEventsInput) (*ListGroupEventsOutput, error) {
	if _, err := storage.DecodeCursor(input.GroupID, input.Cursor); err != nil {
		if errors.Is(err, storage.ErrCursorGroup) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error400BadRequest("invalid cursor")
	}
	page, err := h.index.ListGroup(ctx, input.GroupID, input.Cursor, input.Limit)
	if err != nil {
		return nil, storeError(h.logger, "failed to list group events", err)
	}

	out := &ListGroupEventsOutput{}
	out.Body.Events = make([]GroupEventBody, len(page.Entries))
	for i, e := range page.Entries {
		out.Body.Events[i] = GroupEventBody{
			EventID:   e.EventID,
			Title:     e.Title,
			Organizer: e.Organizer,
			CreatedAt: e.CreatedAt,
		}
	}
	out.Body.NextCursor = page.NextCursor
	return out, nil
}

// loadEvent fetches an event and its responses from the owning shard.
func loadEvent(ctx context.Context, router *shard.Router, rawID string) (*storage.Event, []response.MemberResponse, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil, huma.Error400BadRequest("invalid event_id")
	}
	store, _, err := router.StoreForEvent(id)
	if err != nil {
		return nil, nil, err
	}
	ev, err := store.GetEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	stored, err := store.ListResponses(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	responses := make([]response.MemberResponse, len(stored))
	for i, r := range stored {
		responses[i] = r.MemberResponse
	}
	return ev, responses, nil
}

// authorize checks the caller's X-Organizer identity against the organizer
// recorded on an event or group.
func authorize(owner, caller string) error {
	if owner != caller {
		return huma.Error403Forbidden("only the organizer may do this")
	}
	return nil
}

// eventBody adds the server's gesture and scoring settings to an event.
func (h *EventHandler) eventBody(ev *storage.Event, responses []response.MemberResponse) (EventBody, error) {
	body, err := eventToBody(ev, responses)
	if err != nil {
		return EventBody{}, err
	}
	body.Gesture = GestureBody{
		MoveThresholdPx:  h.thresholds.MoveDistance,
		TapMaxDurationMs: h.thresholds.TapMaxDuration.Milliseconds(),
	}
	body.Scoring = ScoringBody{
		Scheme:        string(h.scoring.Scheme),
		PenaltyWeight: h.scoring.PenaltyWeight,
		MaxLevel:      int(h.scoring.MaxLevel),
	}
	return body, nil
}

func eventToBody(ev *storage.Event, responses []response.MemberResponse) (EventBody, error) {
	mask, err := ev.Mask()
	if err != nil {
		return EventBody{}, err
	}
	offered := mask.Offered()
	keys := make([]string, len(offered))
	for i, k := range offered {
		keys[i] = k.String()
	}

	body := EventBody{
		ID:          ev.ID,
		GroupID:     ev.GroupID,
		Organizer:   ev.Organizer,
		Title:       ev.Title,
		Description: ev.Description,
		Mode:        string(ev.Mode),
		Dates:       ev.Dates,
		Times:       ev.Times,
		Offered:     keys,
		Invitees:    ev.Invitees,
		CreatedAt:   ev.CreatedAt,
	}
	for _, r := range responses {
		body.Responses = append(body.Responses, responseToBody(r))
	}
	return body, nil
}

func responseToBody(r response.MemberResponse) ResponseBody {
	avail := make(map[string]int, len(r.Availability))
	for k, v := range r.Availability {
		avail[k.String()] = int(v)
	}
	return ResponseBody{
		Member:       r.Member,
		Availability: avail,
		Note:         r.Note,
		SubmittedAt:  r.SubmittedAt,
	}
}
