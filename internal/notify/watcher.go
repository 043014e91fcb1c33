package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

// HandlerFunc is invoked for each stored response in write order. It must
// be idempotent: a response is redelivered if a later handler call in the
// same batch fails before the checkpoint advances.
type HandlerFunc func(ctx context.Context, shardID shard.ID, r storage.StoredResponse) error

type consumer struct {
	name    string
	handler HandlerFunc
}

// Watcher polls each shard's response log and feeds named consumers, each
// with its own persisted checkpoint.
type Watcher struct {
	router       *shard.Router
	checkpoint   Checkpoint
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger

	consumers []consumer
	wg        sync.WaitGroup
}

// NewWatcher creates a Watcher over the router's registered shards.
func NewWatcher(router *shard.Router, checkpoint Checkpoint, pollInterval time.Duration, batchSize int, logger *slog.Logger) *Watcher {
	return &Watcher{
		router:       router,
		checkpoint:   checkpoint,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Handle registers a consumer. Call before Start.
func (w *Watcher) Handle(name string, fn HandlerFunc) {
	w.consumers = append(w.consumers, consumer{name: name, handler: fn})
}

// Start launches one goroutine per shard and consumer. They run until ctx
// is cancelled; use Wait to block on their exit.
func (w *Watcher) Start(ctx context.Context) {
	if len(w.consumers) == 0 {
		w.logger.Info("no response consumers registered, watcher idle")
		return
	}

	for _, shardID := range w.router.Shards() {
		store, err := w.router.StoreFor(shardID)
		if err != nil {
			w.logger.Error("no store for shard", "shard", shardID, "error", err)
			continue
		}
		for _, c := range w.consumers {
			w.wg.Add(1)
			go func(shardID shard.ID, store storage.EventStore, c consumer) {
				defer w.wg.Done()
				w.watchShard(ctx, shardID, store, c)
			}(shardID, store, c)
		}
	}
}

// Wait blocks until every watcher goroutine has exited.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) watchShard(ctx context.Context, shardID shard.ID, store storage.EventStore, c consumer) {
	lastAddedID, err := w.checkpoint.Load(ctx, shardID, c.name)
	if err != nil {
		w.logger.Error("failed to load checkpoint", "shard", shardID, "consumer", c.name, "error", err)
		return
	}

	w.logger.Debug("response watcher started", "shard", shardID, "consumer", c.name, "from_added_id", lastAddedID)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := w.checkpoint.Save(context.Background(), shardID, c.name, lastAddedID); err != nil {
				w.logger.Error("failed to save final checkpoint", "shard", shardID, "consumer", c.name, "error", err)
			}
			return
		case <-ticker.C:
			newLastID, err := w.processBatch(ctx, store, shardID, c, lastAddedID)
			if err != nil {
				w.logger.Error("response batch failed", "shard", shardID, "consumer", c.name, "error", err)
				continue
			}
			if newLastID > lastAddedID {
				lastAddedID = newLastID
				if err := w.checkpoint.Save(ctx, shardID, c.name, lastAddedID); err != nil {
					w.logger.Error("failed to save checkpoint", "shard", shardID, "consumer", c.name, "error", err)
				}
			}
		}
	}
}

// processBatch hands each scanned response to the consumer and returns the
// added_id to resume after. It stops at the first handler error so the
// failed response is retried on the next poll.
func (w *Watcher) processBatch(ctx context.Context, store storage.EventStore, shardID shard.ID, c consumer, afterAddedID int64) (int64, error) {
	responses, err := store.ScanResponses(ctx, afterAddedID, w.batchSize)
	if err != nil {
		return afterAddedID, err
	}

	lastID := afterAddedID
	for _, r := range responses {
		if err := c.handler(ctx, shardID, r); err != nil {
			w.logger.Error("response handler failed",
				"shard", shardID,
				"consumer", c.name,
				"added_id", r.AddedID,
				"error", err,
			)
			return lastID, nil
		}
		lastID = r.AddedID
	}
	return lastID, nil
}

// PublishSubmitted returns a handler announcing each response on
// TopicResponseSubmitted.
func PublishSubmitted(p Publisher) HandlerFunc {
	return func(_ context.Context, shardID shard.ID, r storage.StoredResponse) error {
		p.Notify(TopicResponseSubmitted, ResponseSubmitted{
			EventID:     r.EventID,
			Member:      r.Member,
			AddedID:     r.AddedID,
			ShardID:     int(shardID),
			SubmittedAt: r.SubmittedAt,
		})
		return nil
	}
}
