package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/cache"
	"github.com/ryanbastic/go-slotgrid/internal/metrics"
	"github.com/ryanbastic/go-slotgrid/internal/render"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

const (
	defaultBestLimit = 3
	maxBestLimit     = 20
)

// --- Huma Input/Output types ---

type HeatmapInput struct {
	EventID string   `path:"event_id" doc:"Event UUID" format:"uuid"`
	Exclude []string `query:"exclude" doc:"Members to leave out of the aggregate"`
	Scheme  string   `query:"scheme" doc:"Scoring scheme; defaults to the server's configured scheme" enum:"penalized,count"`
}

type HeatmapCell struct {
	Key         string  `json:"key" example:"2025-03-10_9am"`
	Score       float64 `json:"score"`
	Respondents int     `json:"respondents"`
	Intensity   float64 `json:"intensity" doc:"Normalized heat in [0,1]"`
}

type HeatmapBody struct {
	EventID    uuid.UUID     `json:"event_id"`
	Scheme     string        `json:"scheme"`
	Considered int           `json:"considered" doc:"Responses counted after exclusions"`
	Cells      []HeatmapCell `json:"cells" doc:"Offered cells in grid order"`
	Best       []HeatmapCell `json:"best" doc:"Top cells by intensity"`
}

type HeatmapOutput struct {
	CacheStatus string `header:"X-Cache" doc:"HIT when served from cache"`
	Body        HeatmapBody
}

// --- Handler ---

type HeatmapHandler struct {
	router  *shard.Router
	cache   cache.HeatmapCache
	scoring aggregate.Params
	loc     *time.Location
	logger  *slog.Logger
}

func NewHeatmapHandler(router *shard.Router, c cache.HeatmapCache, scoring aggregate.Params, loc *time.Location, logger *slog.Logger) *HeatmapHandler {
	return &HeatmapHandler{router: router, cache: c, scoring: scoring, loc: loc, logger: logger}
}

func registerHeatmapRoutes(api huma.API, h *HeatmapHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-heatmap",
		Method:      http.MethodGet,
		Path:        "/v1/events/{event_id}/heatmap",
		Summary:     "Aggregate responses into a heat-map",
		Tags:        []string{"heatmap"},
	}, h.Heatmap)
}

func (h *HeatmapHandler) Heatmap(ctx context.Context, input *HeatmapInput) (*HeatmapOutput, error) {
	id, err := uuid.Parse(input.EventID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid event_id")
	}
	params, err := h.params(input.Scheme)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	key := cache.Key(id, string(params.Scheme), input.Exclude)
	if data, ok, err := h.cache.Get(ctx, key); err != nil {
		h.logger.Warn("heatmap cache read failed", "event_id", id, "error", err)
	} else if ok {
		var body HeatmapBody
		if err := json.Unmarshal(data, &body); err == nil {
			metrics.CacheHit(true)
			return &HeatmapOutput{CacheStatus: "HIT", Body: body}, nil
		}
		h.logger.Warn("discarding undecodable heatmap cache entry", "key", key)
	}
	metrics.CacheHit(false)

	ev, res, err := h.compute(ctx, input.EventID, params, input.Exclude)
	if err != nil {
		return nil, storeError(h.logger, "failed to compute heatmap", err)
	}
	body := heatmapToBody(ev.ID, params.Scheme, res)

	if data, err := json.Marshal(body); err == nil {
		if err := h.cache.Set(ctx, key, data); err != nil {
			h.logger.Warn("heatmap cache write failed", "event_id", id, "error", err)
		}
	}
	return &HeatmapOutput{CacheStatus: "MISS", Body: body}, nil
}

// Chart renders the heat-map as an ECharts HTML page.
func (h *HeatmapHandler) Chart(w http.ResponseWriter, r *http.Request) {
	ev, res, err := h.compute(r.Context(), chi.URLParam(r, "event_id"), h.scoring, excludeParam(r))
	if err != nil {
		h.writeErr(w, "failed to compute heatmap", err)
		return
	}
	g, err := ev.Grid()
	if err != nil {
		h.writeErr(w, "failed to build event grid", err)
		return
	}

	var buf bytes.Buffer
	if err := render.HeatmapChart(&buf, ev.Title, g, res); err != nil {
		h.writeErr(w, "failed to render chart", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Calendar exports the best slots as tentative iCalendar events.
func (h *HeatmapHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	limit := defaultBestLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxBestLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxBestLimit))
			return
		}
		limit = n
	}

	ev, res, err := h.compute(r.Context(), chi.URLParam(r, "event_id"), h.scoring, excludeParam(r))
	if err != nil {
		h.writeErr(w, "failed to compute heatmap", err)
		return
	}
	ics, err := render.BestSlotsCalendar(render.CalendarEvent{
		ID:          ev.ID.String(),
		Title:       ev.Title,
		Description: ev.Description,
		Organizer:   ev.Organizer,
	}, res.Best(limit), h.loc, time.Now())
	if err != nil {
		h.writeErr(w, "failed to render calendar", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ev.ID.String()+`.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ics))
}

func (h *HeatmapHandler) params(scheme string) (aggregate.Params, error) {
	p := h.scoring
	if scheme == "" {
		return p, nil
	}
	s, err := aggregate.ParseScheme(scheme)
	if err != nil {
		return aggregate.Params{}, err
	}
	p.Scheme = s
	return p, nil
}

func (h *HeatmapHandler) compute(ctx context.Context, rawID string, p aggregate.Params, exclude []string) (*storage.Event, aggregate.Result, error) {
	ev, responses, err := loadEvent(ctx, h.router, rawID)
	if err != nil {
		return nil, aggregate.Result{}, err
	}
	mask, err := ev.Mask()
	if err != nil {
		return nil, aggregate.Result{}, err
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, m := range exclude {
		excluded[m] = struct{}{}
	}

	start := time.Now()
	res := aggregate.Compute(responses, mask, excluded, p)
	metrics.ObserveHeatmap(string(p.Scheme), time.Since(start))
	return ev, res, nil
}

func (h *HeatmapHandler) writeErr(w http.ResponseWriter, msg string, err error) {
	err = storeError(h.logger, msg, err)
	writeError(w, statusOf(err), err.Error())
}

func excludeParam(r *http.Request) []string {
	var out []string
	for _, v := range r.URL.Query()["exclude"] {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	return out
}

func heatmapToBody(eventID uuid.UUID, scheme aggregate.Scheme, res aggregate.Result) HeatmapBody {
	keys := res.Keys()
	body := HeatmapBody{
		EventID:    eventID,
		Scheme:     string(scheme),
		Considered: res.Considered,
		Cells:      make([]HeatmapCell, len(keys)),
	}
	for i, k := range keys {
		body.Cells[i] = toHeatmapCell(k.String(), res.Cells[k])
	}
	best := res.Best(defaultBestLimit)
	body.Best = make([]HeatmapCell, len(best))
	for i, r := range best {
		body.Best[i] = toHeatmapCell(r.Key.String(), r.CellScore)
	}
	return body
}

func toHeatmapCell(key string, cs aggregate.CellScore) HeatmapCell {
	return HeatmapCell{Key: key, Score: cs.Score, Respondents: cs.Respondents, Intensity: cs.Intensity}
}
