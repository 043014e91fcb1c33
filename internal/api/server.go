package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/cache"
	"github.com/ryanbastic/go-slotgrid/internal/gesture"
	"github.com/ryanbastic/go-slotgrid/internal/index"
	"github.com/ryanbastic/go-slotgrid/internal/metrics"
	"github.com/ryanbastic/go-slotgrid/internal/notify"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
)

// Deps are the collaborators the HTTP server needs. Optional fields fall
// back to no-op or default implementations.
type Deps struct {
	Logger    *slog.Logger
	Router    *shard.Router
	Index     *index.Registry
	Plugins   *notify.PluginRegistry
	Publisher notify.Publisher
	Cache     cache.HeatmapCache
	Scoring   aggregate.Params
	// Thresholds are handed to grid front ends with every event.
	Thresholds gesture.Thresholds
	Health     map[string]Pinger
	// Location is used to place best-slot calendar entries. Defaults to UTC.
	Location *time.Location
}

type nopPublisher struct{}

func (nopPublisher) Notify(notify.Topic, any) int { return 0 }

// NewServer creates an HTTP server with all routes configured.
func NewServer(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Plugins == nil {
		d.Plugins = notify.NewPluginRegistry(nil)
	}
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.Scoring.Scheme == "" {
		d.Scoring = aggregate.DefaultParams()
	}
	if d.Thresholds == (gesture.Thresholds{}) {
		d.Thresholds = gesture.DefaultThresholds()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}

	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(AccessLog(d.Logger))
	mux.Use(Recovery(d.Logger))
	mux.Use(metrics.Metrics)

	api := humachi.New(mux, huma.DefaultConfig("slotgrid", "1.0.0"))

	events := NewEventHandler(d.Router, d.Index, d.Publisher, d.Cache, d.Thresholds, d.Scoring, d.Logger)
	registerEventRoutes(api, events)

	registerGroupRoutes(api, NewGroupHandler(d.Router, d.Index, events, d.Logger))

	responses := NewResponseHandler(d.Router, d.Publisher, d.Cache, d.Logger)
	registerResponseRoutes(api, responses)

	heatmaps := NewHeatmapHandler(d.Router, d.Cache, d.Scoring, d.Location, d.Logger)
	registerHeatmapRoutes(api, heatmaps)
	mux.Get("/v1/events/{event_id}/heatmap.html", heatmaps.Chart)
	mux.Get("/v1/events/{event_id}/best.ics", heatmaps.Calendar)

	notifications := NewNotificationHandler(d.Router, d.Publisher, d.Logger)
	registerNotificationRoutes(api, notifications)

	registerPluginRoutes(api, NewPluginHandler(d.Plugins, d.Logger))

	health := NewHealthHandler(d.Health, d.Logger)
	mux.Get("/v1/livez", health.Livez)
	mux.Get("/v1/readyz", health.Readyz)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
