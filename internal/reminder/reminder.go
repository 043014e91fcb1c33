// Package reminder periodically nudges invitees who have not answered an
// upcoming event.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/metrics"
	"github.com/ryanbastic/go-slotgrid/internal/notify"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
)

// Scheduler publishes event.reminder notifications on a cron schedule.
type Scheduler struct {
	router    *shard.Router
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time

	cron *cron.Cron
}

// New creates a Scheduler. It does nothing until Start.
func New(router *shard.Router, publisher notify.Publisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		router:    router,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules RunOnce with a standard five-field cron spec. Jobs run
// with ctx and stop being scheduled after Stop.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		n, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.Error("reminder run failed", "sent", n, "error", err)
			return
		}
		s.logger.Info("reminder run complete", "sent", n)
	}); err != nil {
		return fmt.Errorf("parse reminder schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("reminder scheduler started", "schedule", spec)
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce scans every shard for events that still have dates ahead and
// publishes one reminder per event listing invitees without a response.
// It returns the number of reminders published.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	today := s.now().Format(grid.DateLayout)
	sent := 0
	var errs []error

	for _, shardID := range s.router.Shards() {
		store, err := s.router.StoreFor(shardID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events, err := store.ListUpcomingEvents(ctx, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", shardID, err))
			continue
		}

		for _, ev := range events {
			if len(ev.Invitees) == 0 {
				continue
			}
			stored, err := store.ListResponses(ctx, ev.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
				continue
			}
			answered := make(map[string]struct{}, len(stored))
			for _, r := range stored {
				answered[r.Member] = struct{}{}
			}

			var missing []string
			for _, m := range ev.Invitees {
				if _, ok := answered[m]; !ok {
					missing = append(missing, m)
				}
			}
			if len(missing) == 0 {
				continue
			}

			s.publisher.Notify(notify.TopicEventReminder, notify.EventReminder{
				EventID:   ev.ID,
				Title:     ev.Title,
				Organizer: ev.Organizer,
				Missing:   missing,
			})
			metrics.ReminderSent()
			sent++
			s.logger.Debug("reminder published", "event_id", ev.ID, "missing", len(missing))
		}
	}

	return sent, errors.Join(errs...)
}
