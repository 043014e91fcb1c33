package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic names a notification plugins can subscribe to. It is also the
// JSON-RPC method name used for delivery.
type Topic string

const (
	TopicEventCreated      Topic = "event.created"
	TopicResponseSubmitted Topic = "response.submitted"
	TopicResponseExcluded  Topic = "response.excluded"
	TopicEventMessage      Topic = "event.message"
	TopicEventReminder     Topic = "event.reminder"
)

// Topics lists every known topic.
var Topics = []Topic{
	TopicEventCreated,
	TopicResponseSubmitted,
	TopicResponseExcluded,
	TopicEventMessage,
	TopicEventReminder,
}

// ParseTopic validates a topic name.
func ParseTopic(s string) (Topic, error) {
	for _, t := range Topics {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown topic %q", s)
}

// EventCreated is sent when an organizer creates an event.
type EventCreated struct {
	EventID   uuid.UUID `json:"event_id"`
	GroupID   string    `json:"group_id"`
	Title     string    `json:"title"`
	Organizer string    `json:"organizer"`
	Invitees  []string  `json:"invitees"`
	CreatedAt time.Time `json:"created_at"`
}

// ResponseSubmitted is sent for each stored response, in write order per shard.
type ResponseSubmitted struct {
	EventID     uuid.UUID `json:"event_id"`
	Member      string    `json:"member"`
	AddedID     int64     `json:"added_id"`
	ShardID     int       `json:"shard_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ResponseExcluded is sent when the organizer permanently removes a response.
type ResponseExcluded struct {
	EventID   uuid.UUID `json:"event_id"`
	Member    string    `json:"member"`
	Organizer string    `json:"organizer"`
}

// EventMessage is an organizer's message to the event's invitees.
type EventMessage struct {
	EventID    uuid.UUID `json:"event_id"`
	Title      string    `json:"title"`
	From       string    `json:"from"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
}

// EventReminder lists invitees who have not responded yet.
type EventReminder struct {
	EventID   uuid.UUID `json:"event_id"`
	Title     string    `json:"title"`
	Organizer string    `json:"organizer"`
	Missing   []string  `json:"missing"`
}
