package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-slotgrid/internal/cache"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/metrics"
	"github.com/ryanbastic/go-slotgrid/internal/notify"
	"github.com/ryanbastic/go-slotgrid/internal/response"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
)

// cellLevel is a grid.Level as it appears in request bodies: an integer
// 0-3, or a boolean for binary grids.
type cellLevel grid.Level

func (l *cellLevel) UnmarshalJSON(b []byte) error {
	return (*grid.Level)(l).UnmarshalJSON(b)
}

func (cellLevel) Schema(huma.Registry) *huma.Schema {
	lo, hi := 0.0, float64(grid.MaxLevel)
	return &huma.Schema{
		Description: "Availability level (0 unset, 1 ideal, 2 acceptable, 3 possible) or a boolean",
		OneOf: []*huma.Schema{
			{Type: huma.TypeInteger, Minimum: &lo, Maximum: &hi},
			{Type: huma.TypeBoolean},
		},
	}
}

// --- Huma Input/Output types ---

type SubmitResponseBody struct {
	Availability map[string]cellLevel `json:"availability" doc:"Level per cell key; cells outside the template are dropped"`
	Note         string               `json:"note,omitempty" doc:"Free-form note" maxLength:"2000"`
}

type SubmitResponseInput struct {
	EventID string `path:"event_id" doc:"Event UUID" format:"uuid"`
	Member  string `path:"member" doc:"Responding member" minLength:"1" maxLength:"200"`
	Body    SubmitResponseBody
}

type SubmitResponseOutput struct {
	Body ResponseBody
}

type ExcludeResponseInput struct {
	EventID   string `path:"event_id" doc:"Event UUID" format:"uuid"`
	Member    string `path:"member" doc:"Member to exclude" minLength:"1"`
	Organizer string `header:"X-Organizer" doc:"Organizer identity" required:"true" minLength:"1"`
}

// --- Handler ---

type ResponseHandler struct {
	router    *shard.Router
	publisher notify.Publisher
	cache     cache.HeatmapCache
	logger    *slog.Logger
	now       func() time.Time
}

func NewResponseHandler(router *shard.Router, publisher notify.Publisher, c cache.HeatmapCache, logger *slog.Logger) *ResponseHandler {
	return &ResponseHandler{router: router, publisher: publisher, cache: c, logger: logger, now: time.Now}
}

func registerResponseRoutes(api huma.API, h *ResponseHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-response",
		Method:      http.MethodPut,
		Path:        "/v1/events/{event_id}/responses/{member}",
		Summary:     "Submit or replace a member's availability",
		Tags:        []string{"responses"},
	}, h.SubmitResponse)

	huma.Register(api, huma.Operation{
		OperationID:   "exclude-response",
		Method:        http.MethodDelete,
		Path:          "/v1/events/{event_id}/responses/{member}",
		Summary:       "Permanently remove a member's response",
		Tags:          []string{"responses"},
		DefaultStatus: http.StatusNoContent,
	}, h.ExcludeResponse)
}

func (h *ResponseHandler) SubmitResponse(ctx context.Context, input *SubmitResponseInput) (*SubmitResponseOutput, error) {
	id, err := uuid.Parse(input.EventID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid event_id")
	}
	store, shardID, err := h.router.StoreForEvent(id)
	if err != nil {
		return nil, storeError(h.logger, "failed to route event", err)
	}
	ev, err := store.GetEvent(ctx, id)
	if err != nil {
		return nil, storeError(h.logger, "failed to load event", err)
	}
	mask, err := ev.Mask()
	if err != nil {
		return nil, storeError(h.logger, "failed to build event grid", err)
	}

	draft := make(grid.Draft, len(input.Body.Availability))
	for s, l := range input.Body.Availability {
		k, err := grid.ParseKey(s)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		draft[k] = grid.Level(l)
	}
	draft = draft.Sanitize(mask).ForMode(ev.Mode)

	stored, err := store.UpsertResponse(ctx, id, response.MemberResponse{
		Member:       input.Member,
		Availability: draft,
		Note:         input.Body.Note,
		SubmittedAt:  h.now().UTC(),
	})
	if err != nil {
		return nil, storeError(h.logger, "failed to store response", err)
	}
	if err := h.cache.InvalidateEvent(ctx, id); err != nil {
		h.logger.Warn("failed to invalidate heatmap cache", "event_id", id, "error", err)
	}
	metrics.ResponseSubmitted(string(ev.Mode))

	h.logger.Info("response submitted", "event_id", id, "member", input.Member, "cells", len(draft), "shard", shardID, "added_id", stored.AddedID)
	return &SubmitResponseOutput{Body: responseToBody(stored.MemberResponse)}, nil
}

func (h *ResponseHandler) ExcludeResponse(ctx context.Context, input *ExcludeResponseInput) (*struct{}, error) {
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
	if err := store.DeleteResponse(ctx, id, input.Member); err != nil {
		return nil, storeError(h.logger, "failed to delete response", err)
	}
	if err := h.cache.InvalidateEvent(ctx, id); err != nil {
		h.logger.Warn("failed to invalidate heatmap cache", "event_id", id, "error", err)
	}

	h.logger.Info("response excluded", "event_id", id, "member", input.Member)
	h.publisher.Notify(notify.TopicResponseExcluded, notify.ResponseExcluded{
		EventID:   id,
		Member:    input.Member,
		Organizer: input.Organizer,
	})
	return nil, nil
}
