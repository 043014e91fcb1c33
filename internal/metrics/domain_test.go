package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheHit(t *testing.T) {
	hits := testutil.ToFloat64(heatmapCache.WithLabelValues("hit"))
	misses := testutil.ToFloat64(heatmapCache.WithLabelValues("miss"))

	CacheHit(true)
	CacheHit(false)
	CacheHit(false)

	if got := testutil.ToFloat64(heatmapCache.WithLabelValues("hit")) - hits; got != 1 {
		t.Errorf("hits delta: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(heatmapCache.WithLabelValues("miss")) - misses; got != 2 {
		t.Errorf("misses delta: got %v, want 2", got)
	}
}

func TestNotification(t *testing.T) {
	c := notifications.WithLabelValues("response.submitted", "breaker_open")
	before := testutil.ToFloat64(c)

	Notification("response.submitted", "breaker_open")

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("delta: got %v, want 1", got)
	}
}

func TestObserveHeatmap(t *testing.T) {
	ObserveHeatmap("penalized", 2*time.Millisecond)
	if n := testutil.CollectAndCount(heatmapDuration); n < 1 {
		t.Errorf("expected at least one histogram series, got %d", n)
	}
}
