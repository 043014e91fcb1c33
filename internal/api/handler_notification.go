package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-slotgrid/internal/notify"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

type SendNotificationBody struct {
	Subject    string   `json:"subject" doc:"Message subject" minLength:"1" maxLength:"200"`
	Body       string   `json:"body" doc:"Message text" minLength:"1" maxLength:"10000"`
	Recipients []string `json:"recipients,omitempty" doc:"Recipients; defaults to the event's invitees, then the group's members"`
}

type SendNotificationInput struct {
	EventID   string `path:"event_id" doc:"Event UUID" format:"uuid"`
	Organizer string `header:"X-Organizer" doc:"Organizer identity" required:"true" minLength:"1"`
	Body      SendNotificationBody
}

type SendNotificationOutput struct {
	Body struct {
		Recipients []string `json:"recipients"`
		Plugins    int      `json:"plugins" doc:"Plugins the message was dispatched to"`
	}
}

type NotificationHandler struct {
	router    *shard.Router
	publisher notify.Publisher
	logger    *slog.Logger
}

func NewNotificationHandler(router *shard.Router, publisher notify.Publisher, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{router: router, publisher: publisher, logger: logger}
}

func registerNotificationRoutes(api huma.API, h *NotificationHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-notification",
		Method:        http.MethodPost,
		Path:          "/v1/events/{event_id}/notifications",
		Summary:       "Message the event's invitees",
		Tags:          []string{"notifications"},
		DefaultStatus: http.StatusAccepted,
	}, h.SendNotification)
}

func (h *NotificationHandler) SendNotification(ctx context.Context, input *SendNotificationInput) (*SendNotificationOutput, error) {
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

	recipients := input.Body.Recipients
	if len(recipients) == 0 {
		recipients = ev.Invitees
	}
	if len(recipients) == 0 {
		if recipients, err = h.groupMembers(ctx, ev.GroupID); err != nil {
			return nil, err
		}
	}
	if len(recipients) == 0 {
		return nil, huma.Error422UnprocessableEntity("event has no invitees, its group has no members and no recipients were given")
	}

	n := h.publisher.Notify(notify.TopicEventMessage, notify.EventMessage{
		EventID:    id,
		Title:      ev.Title,
		From:       ev.Organizer,
		Recipients: recipients,
		Subject:    input.Body.Subject,
		Body:       input.Body.Body,
	})
	h.logger.Info("event message dispatched", "event_id", id, "recipients", len(recipients), "plugins", n)

	out := &SendNotificationOutput{}
	out.Body.Recipients = recipients
	out.Body.Plugins = n
	return out, nil
}

// groupMembers returns the current members of groupID. A deleted group has
// no members.
func (h *NotificationHandler) groupMembers(ctx context.Context, groupID string) ([]string, error) {
	store, _, err := h.router.StoreForGroup(groupID)
	if err != nil {
		return nil, storeError(h.logger, "failed to route group", err)
	}
	g, err := store.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrGroupNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(h.logger, "failed to load group", err)
	}
	return g.Members, nil
}
