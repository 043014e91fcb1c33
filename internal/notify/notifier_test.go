package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-slotgrid/internal/circuitbreaker"
)

func newTestNotifier(registry *PluginRegistry, maxFailures int) *Notifier {
	return NewNotifier(
		registry,
		NewPluginClient(0, time.Millisecond, 5*time.Second),
		circuitbreaker.NewSet(circuitbreaker.Settings{MaxFailures: maxFailures, ResetTimeout: time.Hour}),
		slog.New(slog.DiscardHandler),
	)
}

func TestNotifier_DispatchesToSubscribedPlugins(t *testing.T) {
	var received atomic.Int32
	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		method.Store(req.Method)
		json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Result: json.RawMessage(`"ok"`), ID: req.ID})
	}))
	defer srv.Close()

	registry := NewPluginRegistry(nil)
	ctx := context.Background()
	registry.Register(ctx, &Plugin{Name: "a", Endpoint: srv.URL, Topics: []Topic{TopicEventCreated}})
	registry.Register(ctx, &Plugin{Name: "b", Endpoint: srv.URL, Topics: []Topic{TopicEventCreated, TopicEventMessage}})
	registry.Register(ctx, &Plugin{Name: "c", Endpoint: srv.URL, Topics: []Topic{TopicEventMessage}})

	n := newTestNotifier(registry, 5)
	if got := n.Notify(TopicEventCreated, EventCreated{EventID: uuid.New(), Title: "Offsite"}); got != 2 {
		t.Errorf("dispatched: got %d, want 2", got)
	}
	n.Wait()

	if received.Load() != 2 {
		t.Errorf("received: got %d, want 2", received.Load())
	}
	if m, _ := method.Load().(string); m != "event.created" {
		t.Errorf("method: got %q, want event.created", m)
	}
}

func TestNotifier_NoPlugins(t *testing.T) {
	n := newTestNotifier(NewPluginRegistry(nil), 5)
	if got := n.Notify(TopicEventReminder, EventReminder{}); got != 0 {
		t.Errorf("dispatched: got %d, want 0", got)
	}
	n.Wait()
}

func TestNotifier_BreakerStopsCallingFailingEndpoint(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	registry := NewPluginRegistry(nil)
	registry.Register(context.Background(), &Plugin{Name: "flaky", Endpoint: srv.URL, Topics: []Topic{TopicEventMessage}})

	n := newTestNotifier(registry, 2)
	for i := 0; i < 5; i++ {
		n.Notify(TopicEventMessage, EventMessage{Subject: "hi"})
		n.Wait()
	}

	if received.Load() != 2 {
		t.Errorf("endpoint calls: got %d, want 2 before the breaker opened", received.Load())
	}
	if st := n.breakers.Get(srv.URL).State(); st != circuitbreaker.Open {
		t.Errorf("breaker: got %v, want open", st)
	}
}

func TestNotifier_RPCErrorDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Error: &PluginError{Code: -32000, Message: "busy"}, ID: req.ID})
	}))
	defer srv.Close()

	registry := NewPluginRegistry(nil)
	registry.Register(context.Background(), &Plugin{Name: "picky", Endpoint: srv.URL, Topics: []Topic{TopicEventMessage}})

	n := newTestNotifier(registry, 1)
	n.Notify(TopicEventMessage, EventMessage{})
	n.Wait()

	if st := n.breakers.Get(srv.URL).State(); st != circuitbreaker.Closed {
		t.Errorf("breaker: got %v, want closed", st)
	}
}
