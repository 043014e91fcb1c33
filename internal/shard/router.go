package shard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

// Router maps shard IDs to EventStore instances.
type Router struct {
	mu        sync.RWMutex
	stores    map[ID]storage.EventStore
	numShards int
}

// NewRouter creates a router for numShards shards.
func NewRouter(numShards int) *Router {
	return &Router{stores: make(map[ID]storage.EventStore), numShards: numShards}
}

// NumShards returns the shard count events are hashed over.
func (r *Router) NumShards() int { return r.numShards }

// Register associates a shard ID with an EventStore.
func (r *Router) Register(id ID, store storage.EventStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[id] = store
}

// StoreFor returns the EventStore for the given shard ID.
func (r *Router) StoreFor(id ID) (storage.EventStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, fmt.Errorf("no store registered for shard %d", id)
	}
	return s, nil
}

// StoreForEvent returns the store owning eventID and its shard.
func (r *Router) StoreForEvent(eventID uuid.UUID) (storage.EventStore, ID, error) {
	id := ForEvent(eventID, r.numShards)
	s, err := r.StoreFor(id)
	return s, id, err
}

// StoreForGroup returns the store owning groupID's group row and membership.
func (r *Router) StoreForGroup(groupID string) (storage.EventStore, ID, error) {
	id := ForKey(groupID, r.numShards)
	s, err := r.StoreFor(id)
	return s, id, err
}

// Shards returns the registered shard IDs in ascending order.
func (r *Router) Shards() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ID, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
