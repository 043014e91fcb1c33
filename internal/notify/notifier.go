package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ryanbastic/go-slotgrid/internal/circuitbreaker"
	"github.com/ryanbastic/go-slotgrid/internal/metrics"
)

// Publisher fans a topic payload out to subscribers.
type Publisher interface {
	Notify(topic Topic, payload any) int
}

// Notifier delivers topic notifications to subscribed plugins via JSON-RPC,
// one goroutine per plugin, each behind the breaker for its endpoint.
type Notifier struct {
	registry  *PluginRegistry
	client    *PluginClient
	breakers  *circuitbreaker.Set
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewNotifier creates a Notifier.
func NewNotifier(registry *PluginRegistry, client *PluginClient, breakers *circuitbreaker.Set, logger *slog.Logger) *Notifier {
	return &Notifier{
		registry:  registry,
		client:    client,
		breakers:  breakers,
		logger:    logger,
	}
}

// Notify dispatches payload to every active plugin subscribed to topic and
// returns the number of deliveries started. Failures are logged, never
// returned, so callers are not blocked by slow plugins.
func (n *Notifier) Notify(topic Topic, payload any) int {
	plugins := n.registry.ForTopic(topic)
	for _, p := range plugins {
		n.wg.Add(1)
		go func(endpoint, pluginName string) {
			defer n.wg.Done()
			n.deliver(topic, endpoint, pluginName, payload)
		}(p.Endpoint, p.Name)
	}
	return len(plugins)
}

func (n *Notifier) deliver(topic Topic, endpoint, pluginName string, payload any) {
	// A plugin that answers, even with an error, is healthy as far as the
	// breaker is concerned.
	var rpcErr *PluginError
	err := n.breakers.Get(endpoint).Execute(func() error {
		err := n.client.Deliver(context.Background(), endpoint, topic, payload)
		if errors.As(err, &rpcErr) {
			return nil
		}
		return err
	})

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		metrics.Notification(string(topic), "breaker_open")
		n.logger.Warn("plugin breaker open, notification dropped", "plugin", pluginName, "endpoint", endpoint, "topic", topic)
	case err != nil:
		metrics.Notification(string(topic), "error")
		n.logger.Error("plugin rpc failed", "plugin", pluginName, "endpoint", endpoint, "topic", topic, "error", err)
	case rpcErr != nil:
		metrics.Notification(string(topic), "rpc_error")
		n.logger.Error("plugin rpc returned error", "plugin", pluginName, "endpoint", endpoint, "topic", topic, "error", rpcErr)
	default:
		metrics.Notification(string(topic), "ok")
	}
}

// Wait blocks until all in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
