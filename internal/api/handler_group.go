package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-slotgrid/internal/index"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

// --- Huma Input/Output types ---

type CreateGroupBody struct {
	Name    string   `json:"name" doc:"Group name" minLength:"1" maxLength:"200"`
	Members []string `json:"members,omitempty" doc:"Initial members"`
}

type CreateGroupInput struct {
	Organizer string `header:"X-Organizer" doc:"Organizer identity" required:"true" minLength:"1"`
	Body      CreateGroupBody
}

type GroupBody struct {
	ID        string    `json:"id" doc:"Group identifier"`
	Name      string    `json:"name"`
	Organizer string    `json:"organizer"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

type GroupOutput struct {
	Body GroupBody
}

type GetGroupInput struct {
	GroupID string `path:"group_id" doc:"Group identifier"`
}

type DeleteGroupInput struct {
	GroupID   string `path:"group_id" doc:"Group identifier"`
	Organizer string `header:"X-Organizer" doc:"Organizer identity" required:"true" minLength:"1"`
}

type GroupMemberInput struct {
	GroupID   string `path:"group_id" doc:"Group identifier"`
	Member    string `path:"member" doc:"Member identity"`
	Organizer string `header:"X-Organizer" doc:"Organizer identity" required:"true" minLength:"1"`
}

// --- Handler ---

type GroupHandler struct {
	router *shard.Router
	index  *index.Registry
	events *EventHandler
	logger *slog.Logger
}

func NewGroupHandler(router *shard.Router, idx *index.Registry, events *EventHandler, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{router: router, index: idx, events: events, logger: logger}
}

func registerGroupRoutes(api huma.API, h *GroupHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-group",
		Method:        http.MethodPost,
		Path:          "/v1/groups",
		Summary:       "Create a group",
		Tags:          []string{"groups"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateGroup)

	huma.Register(api, huma.Operation{
		OperationID: "get-group",
		Method:      http.MethodGet,
		Path:        "/v1/groups/{group_id}",
		Summary:     "Get a group with its members",
		Tags:        []string{"groups"},
	}, h.GetGroup)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-group",
		Method:        http.MethodDelete,
		Path:          "/v1/groups/{group_id}",
		Summary:       "Delete a group and its events",
		Tags:          []string{"groups"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeleteGroup)

	huma.Register(api, huma.Operation{
		OperationID:   "add-group-member",
		Method:        http.MethodPost,
		Path:          "/v1/groups/{group_id}/members/{member}",
		Summary:       "Add a member to a group",
		Tags:          []string{"groups"},
		DefaultStatus: http.StatusNoContent,
	}, h.AddMember)

	huma.Register(api, huma.Operation{
		OperationID:   "remove-group-member",
		Method:        http.MethodDelete,
		Path:          "/v1/groups/{group_id}/members/{member}",
		Summary:       "Remove a member from a group",
		Tags:          []string{"groups"},
		DefaultStatus: http.StatusNoContent,
	}, h.RemoveMember)
}

func (h *GroupHandler) CreateGroup(ctx context.Context, input *CreateGroupInput) (*GroupOutput, error) {
	g := &storage.Group{
		ID:        uuid.NewString(),
		Name:      input.Body.Name,
		Organizer: input.Organizer,
		Members:   input.Body.Members,
	}
	store, shardID, err := h.router.StoreForGroup(g.ID)
	if err != nil {
		return nil, storeError(h.logger, "failed to route group", err)
	}
	created, err := store.CreateGroup(ctx, g)
	if err != nil {
		return nil, storeError(h.logger, "failed to create group", err)
	}

	h.logger.Info("group created", "group_id", created.ID, "shard", shardID, "members", len(created.Members))
	return &GroupOutput{Body: groupToBody(created)}, nil
}

func (h *GroupHandler) GetGroup(ctx context.Context, input *GetGroupInput) (*GroupOutput, error) {
	_, g, err := h.load(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: groupToBody(g)}, nil
}

// DeleteGroup removes every event indexed under the group before the group
// itself, so a failure part way leaves the group in place for a retry.
func (h *GroupHandler) DeleteGroup(ctx context.Context, input *DeleteGroupInput) (*struct{}, error) {
	store, g, err := h.load(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	if err := authorize(g.Organizer, input.Organizer); err != nil {
		return nil, err
	}

	entries, err := h.groupEntries(ctx, g.ID)
	if err != nil {
		return nil, storeError(h.logger, "failed to list group events", err)
	}
	for _, e := range entries {
		evStore, _, err := h.router.StoreForEvent(e.EventID)
		if err != nil {
			return nil, storeError(h.logger, "failed to route event", err)
		}
		ev, err := evStore.GetEvent(ctx, e.EventID)
		if err != nil {
			if errors.Is(err, storage.ErrEventNotFound) {
				continue
			}
			return nil, storeError(h.logger, "failed to load event", err)
		}
		if err := h.events.removeEvent(ctx, evStore, ev); err != nil && !errors.Is(err, storage.ErrEventNotFound) {
			return nil, storeError(h.logger, "failed to delete group event", err)
		}
	}

	if err := store.DeleteGroup(ctx, g.ID); err != nil {
		return nil, storeError(h.logger, "failed to delete group", err)
	}
	h.logger.Info("group deleted", "group_id", g.ID, "events", len(entries))
	return nil, nil
}

func (h *GroupHandler) AddMember(ctx context.Context, input *GroupMemberInput) (*struct{}, error) {
	store, g, err := h.load(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	if err := authorize(g.Organizer, input.Organizer); err != nil {
		return nil, err
	}
	if err := store.AddGroupMember(ctx, g.ID, input.Member); err != nil {
		return nil, storeError(h.logger, "failed to add member", err)
	}
	h.logger.Info("group member added", "group_id", g.ID, "member", input.Member)
	return nil, nil
}

func (h *GroupHandler) RemoveMember(ctx context.Context, input *GroupMemberInput) (*struct{}, error) {
	store, g, err := h.load(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	if err := authorize(g.Organizer, input.Organizer); err != nil {
		return nil, err
	}
	if err := store.RemoveGroupMember(ctx, g.ID, input.Member); err != nil {
		return nil, storeError(h.logger, "failed to remove member", err)
	}
	h.logger.Info("group member removed", "group_id", g.ID, "member", input.Member)
	return nil, nil
}

// load fetches a group from the shard that owns it.
func (h *GroupHandler) load(ctx context.Context, groupID string) (storage.EventStore, *storage.Group, error) {
	store, _, err := h.router.StoreForGroup(groupID)
	if err != nil {
		return nil, nil, storeError(h.logger, "failed to route group", err)
	}
	g, err := store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, storeError(h.logger, "failed to load group", err)
	}
	return store, g, nil
}

// groupEntries reads every page of the group's event index.
func (h *GroupHandler) groupEntries(ctx context.Context, groupID string) ([]index.Entry, error) {
	var (
		all    []index.Entry
		cursor string
	)
	for {
		page, err := h.index.ListGroup(ctx, groupID, cursor, 200)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Entries...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func groupToBody(g *storage.Group) GroupBody {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	return GroupBody{
		ID:        g.ID,
		Name:      g.Name,
		Organizer: g.Organizer,
		Members:   members,
		CreatedAt: g.CreatedAt,
	}
}
