package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPluginNotFound is returned for unknown plugin ids.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrInvalidPlugin wraps plugin validation failures.
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// PluginStatus is the activation state of a plugin.
type PluginStatus string

const (
	PluginStatusActive   PluginStatus = "active"
	PluginStatusInactive PluginStatus = "inactive"
)

// Plugin is an external JSON-RPC service receiving topic notifications.
type Plugin struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Endpoint  string       `json:"endpoint"`
	Topics    []Topic      `json:"topics"`
	Status    PluginStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

func (p *Plugin) validate() error {
	if p.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("plugin endpoint %q must be an http(s) URL", p.Endpoint)
	}
	if len(p.Topics) == 0 {
		return fmt.Errorf("plugin must subscribe to at least one topic")
	}
	for _, t := range p.Topics {
		if _, err := ParseTopic(string(t)); err != nil {
			return err
		}
	}
	switch p.Status {
	case "", PluginStatusActive, PluginStatusInactive:
	default:
		return fmt.Errorf("unknown plugin status %q", p.Status)
	}
	return nil
}

// PluginRegistry is an in-memory view of registered plugins, optionally
// written through to a PluginStore.
type PluginRegistry struct {
	store PluginStore

	mu      sync.RWMutex
	plugins map[uuid.UUID]*Plugin
}

// NewPluginRegistry creates an empty registry. store may be nil.
func NewPluginRegistry(store PluginStore) *PluginRegistry {
	return &PluginRegistry{store: store, plugins: make(map[uuid.UUID]*Plugin)}
}

// Load replaces the registry contents with the plugins in the store.
func (r *PluginRegistry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	plugins, err := r.store.ListPlugins(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[uuid.UUID]*Plugin, len(plugins))
	for _, p := range plugins {
		r.plugins[p.ID] = p
	}
	return nil
}

// Register validates p, assigns its ID and creation time, and stores it.
func (r *PluginRegistry) Register(ctx context.Context, p *Plugin) error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlugin, err)
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = PluginStatusActive
	}

	if r.store != nil {
		if err := r.store.SavePlugin(ctx, p); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.plugins[p.ID] = p
	r.mu.Unlock()
	return nil
}

// Get returns a plugin by ID.
func (r *PluginRegistry) Get(id uuid.UUID) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	if !ok {
		return nil, fmt.Errorf("plugin %s: %w", id, ErrPluginNotFound)
	}
	return p, nil
}

// List returns all plugins ordered by creation time.
func (r *PluginRegistry) List() []*Plugin {
	r.mu.RLock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a plugin by ID.
func (r *PluginRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.RLock()
	_, ok := r.plugins[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("plugin %s: %w", id, ErrPluginNotFound)
	}

	if r.store != nil {
		if err := r.store.DeletePlugin(ctx, id); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.plugins, id)
	r.mu.Unlock()
	return nil
}

// ForTopic returns the active plugins subscribed to topic.
func (r *PluginRegistry) ForTopic(topic Topic) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Plugin
	for _, p := range r.plugins {
		if p.Status == PluginStatusActive && slices.Contains(p.Topics, topic) {
			out = append(out, p)
		}
	}
	return out
}
