package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ryanbastic/go-slotgrid/internal/notify"
)

func TestSendNotification_DefaultsToInvitees(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(t, nil)

	w := ts.do(http.MethodPost, "/v1/events/"+ev.ID.String()+"/notifications", map[string]any{
		"subject": "Pick a slot",
		"body":    "Please fill in the grid by Friday.",
	}, "X-Organizer", "alice")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp SendNotificationOutput
	if err := json.NewDecoder(w.Body).Decode(&resp.Body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Body.Recipients) != 2 || resp.Body.Plugins != 1 {
		t.Errorf("response: got %+v", resp.Body)
	}

	last := ts.publisher.sent[len(ts.publisher.sent)-1]
	if last.topic != notify.TopicEventMessage {
		t.Fatalf("topic: got %s, want %s", last.topic, notify.TopicEventMessage)
	}
	msg := last.payload.(notify.EventMessage)
	if msg.From != "alice" || msg.Subject != "Pick a slot" || msg.Title != "March meetup" {
		t.Errorf("payload: got %+v", msg)
	}
}

func TestSendNotification_ExplicitRecipients(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(t, nil)

	w := ts.do(http.MethodPost, "/v1/events/"+ev.ID.String()+"/notifications", map[string]any{
		"subject":    "Reminder",
		"body":       "Only you are missing.",
		"recipients": []string{"carol"},
	}, "X-Organizer", "alice")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	msg := ts.publisher.sent[len(ts.publisher.sent)-1].payload.(notify.EventMessage)
	if len(msg.Recipients) != 1 || msg.Recipients[0] != "carol" {
		t.Errorf("recipients: got %v", msg.Recipients)
	}
}

func TestSendNotification_FallsBackToGroupMembers(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(t, map[string]any{"invitees": []string{}})

	w := ts.do(http.MethodPost, "/v1/groups/"+ev.GroupID+"/members/dave", nil, "X-Organizer", "alice")
	if w.Code != http.StatusNoContent {
		t.Fatalf("add member: got %d\nbody: %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodPost, "/v1/events/"+ev.ID.String()+"/notifications", map[string]any{
		"subject": "Hello",
		"body":    "Hi all",
	}, "X-Organizer", "alice")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	msg := ts.publisher.sent[len(ts.publisher.sent)-1].payload.(notify.EventMessage)
	want := []string{"bob", "carol", "dave"}
	if len(msg.Recipients) != len(want) {
		t.Fatalf("recipients: got %v, want %v", msg.Recipients, want)
	}
	for i := range want {
		if msg.Recipients[i] != want[i] {
			t.Errorf("recipients[%d]: got %q, want %q", i, msg.Recipients[i], want[i])
		}
	}
}

func TestSendNotification_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		organizer string
		members   []string
		invitees  []string
		want      int
	}{
		{"not the organizer", "bob", []string{"bob"}, []string{"bob"}, http.StatusForbidden},
		{"nobody to message", "alice", nil, []string{}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			group := ts.createGroup(t, "alice", "Quiet room", tt.members...)
			ev := ts.createEvent(t, map[string]any{"group_id": group.ID, "invitees": tt.invitees})
			w := ts.do(http.MethodPost, "/v1/events/"+ev.ID.String()+"/notifications", map[string]any{
				"subject": "Hello",
				"body":    "Hi all",
			}, "X-Organizer", tt.organizer)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d\nbody: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
