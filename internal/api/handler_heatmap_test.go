package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

func mustKey(t *testing.T, s string) grid.CellKey {
	t.Helper()
	k, err := grid.ParseKey(s)
	if err != nil {
		t.Fatalf("ParseKey(%q): %v", s, err)
	}
	return k
}

// heatmapFixture has bob on 10th 9am and carol on 10th 9am and 10am.
func heatmapFixture(t *testing.T) (*testServer, uuid.UUID) {
	t.Helper()
	ts := newTestServer(t)
	ev := ts.createEvent(t, nil)
	ts.submit(t, ev.ID, "bob", map[string]any{"2025-03-10_9am": true})
	ts.submit(t, ev.ID, "carol", map[string]any{"2025-03-10_9am": true, "2025-03-10_10am": true})
	return ts, ev.ID
}

func decodeHeatmap(t *testing.T, ts *testServer, path string) (HeatmapBody, string) {
	t.Helper()
	w := ts.do(http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	var body HeatmapBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body, w.Header().Get("X-Cache")
}

func cellByKey(body HeatmapBody, key string) (HeatmapCell, bool) {
	for _, c := range body.Cells {
		if c.Key == key {
			return c, true
		}
	}
	return HeatmapCell{}, false
}

func TestHeatmap_Penalized(t *testing.T) {
	ts, id := heatmapFixture(t)
	body, _ := decodeHeatmap(t, ts, "/v1/events/"+id.String()+"/heatmap")

	if body.Scheme != "penalized" {
		t.Errorf("scheme: got %q", body.Scheme)
	}
	if body.Considered != 2 {
		t.Errorf("considered: got %d, want 2", body.Considered)
	}
	if len(body.Cells) != 6 {
		t.Errorf("cells: got %d, want 6", len(body.Cells))
	}
	if body.Cells[0].Key != "2025-03-10_9am" {
		t.Errorf("first cell: got %q", body.Cells[0].Key)
	}

	tests := []struct {
		key         string
		score       float64
		respondents int
		intensity   float64
	}{
		{"2025-03-10_9am", 2, 2, 1},
		{"2025-03-10_10am", 5, 1, 0.5},
		{"2025-03-11_11am", 8, 0, 0},
	}
	for _, tt := range tests {
		c, ok := cellByKey(body, tt.key)
		if !ok {
			t.Errorf("%s: missing", tt.key)
			continue
		}
		if c.Score != tt.score || c.Respondents != tt.respondents || c.Intensity != tt.intensity {
			t.Errorf("%s: got %+v, want score=%v respondents=%d intensity=%v", tt.key, c, tt.score, tt.respondents, tt.intensity)
		}
	}

	if len(body.Best) != 2 || body.Best[0].Key != "2025-03-10_9am" || body.Best[1].Key != "2025-03-10_10am" {
		t.Errorf("best: got %+v", body.Best)
	}
}

func TestHeatmap_CountScheme(t *testing.T) {
	ts, id := heatmapFixture(t)
	body, _ := decodeHeatmap(t, ts, "/v1/events/"+id.String()+"/heatmap?scheme=count")

	c, _ := cellByKey(body, "2025-03-10_10am")
	if c.Score != 1 || c.Intensity != 0.5 {
		t.Errorf("10am: got %+v, want score=1 intensity=0.5", c)
	}
}

func TestHeatmap_Exclude(t *testing.T) {
	ts, id := heatmapFixture(t)
	body, _ := decodeHeatmap(t, ts, "/v1/events/"+id.String()+"/heatmap?exclude=carol")

	if body.Considered != 1 {
		t.Errorf("considered: got %d, want 1", body.Considered)
	}
	c, _ := cellByKey(body, "2025-03-10_10am")
	if c.Respondents != 0 || c.Intensity != 0 {
		t.Errorf("10am without carol: got %+v", c)
	}
}

func TestHeatmap_CachedUntilNextSubmission(t *testing.T) {
	ts, id := heatmapFixture(t)
	path := "/v1/events/" + id.String() + "/heatmap"

	if _, status := decodeHeatmap(t, ts, path); status != "MISS" {
		t.Errorf("first read: got %q, want MISS", status)
	}
	first, status := decodeHeatmap(t, ts, path)
	if status != "HIT" {
		t.Errorf("second read: got %q, want HIT", status)
	}
	if first.Considered != 2 {
		t.Errorf("cached considered: got %d, want 2", first.Considered)
	}

	ts.submit(t, id, "dave", map[string]any{"2025-03-11_9am": true})
	after, status := decodeHeatmap(t, ts, path)
	if status != "MISS" {
		t.Errorf("read after submit: got %q, want MISS", status)
	}
	if after.Considered != 3 {
		t.Errorf("considered after submit: got %d, want 3", after.Considered)
	}
}

func TestHeatmap_ExclusionsCachedSeparately(t *testing.T) {
	ts, id := heatmapFixture(t)
	base := "/v1/events/" + id.String() + "/heatmap"

	decodeHeatmap(t, ts, base)
	if _, status := decodeHeatmap(t, ts, base+"?exclude=carol"); status != "MISS" {
		t.Errorf("excluded view: got %q, want MISS", status)
	}
	if _, status := decodeHeatmap(t, ts, base+"?exclude=carol"); status != "HIT" {
		t.Errorf("excluded view again: got %q, want HIT", status)
	}
}

func TestHeatmap_UnknownScheme(t *testing.T) {
	ts, id := heatmapFixture(t)
	w := ts.do(http.MethodGet, "/v1/events/"+id.String()+"/heatmap?scheme=borda", nil)
	if w.Code < 400 || w.Code >= 500 {
		t.Errorf("status: got %d, want 4xx", w.Code)
	}
}

func TestHeatmapChart(t *testing.T) {
	ts, id := heatmapFixture(t)
	w := ts.do(http.MethodGet, "/v1/events/"+id.String()+"/heatmap.html", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "echarts") {
		t.Error("chart page does not load echarts")
	}
}

func TestHeatmapChart_NotFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/v1/events/"+uuid.NewString()+"/heatmap.html", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestBestCalendar(t *testing.T) {
	ts, id := heatmapFixture(t)
	w := ts.do(http.MethodGet, "/v1/events/"+id.String()+"/best.ics?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type: got %q", ct)
	}
	body := w.Body.String()
	if n := strings.Count(body, "BEGIN:VEVENT"); n != 1 {
		t.Errorf("VEVENT count: got %d, want 1", n)
	}
	if !strings.Contains(body, "DTSTART:20250310T090000Z") {
		t.Errorf("missing best slot start in:\n%s", body)
	}
}

func TestBestCalendar_BadLimit(t *testing.T) {
	ts, id := heatmapFixture(t)
	for _, limit := range []string{"0", "abc", "21"} {
		w := ts.do(http.MethodGet, "/v1/events/"+id.String()+"/best.ics?limit="+limit, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want %d", limit, w.Code, http.StatusBadRequest)
		}
	}
}
