package grid

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used for grid columns.
const DateLayout = "2006-01-02"

// HourLabels is the display-time catalog covering one day at hour granularity.
var HourLabels = []string{
	"12am", "1am", "2am", "3am", "4am", "5am", "6am", "7am", "8am", "9am", "10am", "11am",
	"12pm", "1pm", "2pm", "3pm", "4pm", "5pm", "6pm", "7pm", "8pm", "9pm", "10pm", "11pm",
}

// keySep separates the date and time parts of a serialized CellKey.
const keySep = "_"

// CellKey identifies one (date, time) position in a grid.
type CellKey struct {
	Date string
	Time string
}

// Key builds a CellKey from its parts.
func Key(date, t string) CellKey {
	return CellKey{Date: date, Time: t}
}

// String returns the composite form, e.g. "2025-03-04_9am".
func (k CellKey) String() string {
	return k.Date + keySep + k.Time
}

// IsZero reports whether k is the empty key.
func (k CellKey) IsZero() bool {
	return k.Date == "" && k.Time == ""
}

// MarshalText implements encoding.TextMarshaler so CellKey can be a JSON map key.
func (k CellKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CellKey) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses the composite form. Time labels never contain the separator,
// so the split happens on the last one.
func ParseKey(s string) (CellKey, error) {
	i := strings.LastIndex(s, keySep)
	if i <= 0 || i == len(s)-1 {
		return CellKey{}, fmt.Errorf("malformed cell key %q", s)
	}
	return CellKey{Date: s[:i], Time: s[i+1:]}, nil
}

// Grid is the ordered dates × times cross product an event is laid out on.
type Grid struct {
	dates     []string
	times     []string
	dateIndex map[string]int
	timeIndex map[string]int
}

// New validates dates and times and builds a Grid. Dates must be ISO
// calendar dates; both axes must be non-empty and free of duplicates.
func New(dates, times []string) (*Grid, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("grid: no dates")
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("grid: no times")
	}

	g := &Grid{
		dates:     append([]string(nil), dates...),
		times:     append([]string(nil), times...),
		dateIndex: make(map[string]int, len(dates)),
		timeIndex: make(map[string]int, len(times)),
	}
	for i, d := range dates {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return nil, fmt.Errorf("grid: invalid date %q: %w", d, err)
		}
		if _, dup := g.dateIndex[d]; dup {
			return nil, fmt.Errorf("grid: duplicate date %q", d)
		}
		g.dateIndex[d] = i
	}
	for i, t := range times {
		if t == "" || strings.Contains(t, keySep) {
			return nil, fmt.Errorf("grid: invalid time label %q", t)
		}
		if _, dup := g.timeIndex[t]; dup {
			return nil, fmt.Errorf("grid: duplicate time %q", t)
		}
		g.timeIndex[t] = i
	}
	return g, nil
}

// HourTimes returns the catalog labels from start up to and including end.
func HourTimes(start, end string) ([]string, error) {
	from, to := -1, -1
	for i, l := range HourLabels {
		if l == start {
			from = i
		}
		if l == end {
			to = i
		}
	}
	if from < 0 || to < 0 {
		return nil, fmt.Errorf("unknown hour label in range %q..%q", start, end)
	}
	if from > to {
		return nil, fmt.Errorf("hour range %q..%q is reversed", start, end)
	}
	return append([]string(nil), HourLabels[from:to+1]...), nil
}

// HourOf returns the hour of day for a catalog label.
func HourOf(label string) (int, bool) {
	for i, l := range HourLabels {
		if l == label {
			return i, true
		}
	}
	return 0, false
}

// Start returns the wall-clock start of k in loc. Only hour-catalog labels
// can be converted.
func (k CellKey) Start(loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, k.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("cell %s: %w", k, err)
	}
	h, ok := HourOf(k.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("cell %s: time is not an hour label", k)
	}
	return d.Add(time.Duration(h) * time.Hour), nil
}

// Dates returns the ordered date axis.
func (g *Grid) Dates() []string { return append([]string(nil), g.dates...) }

// Times returns the ordered time axis.
func (g *Grid) Times() []string { return append([]string(nil), g.times...) }

// DateIndex returns the column of date, or -1.
func (g *Grid) DateIndex(date string) int {
	if i, ok := g.dateIndex[date]; ok {
		return i
	}
	return -1
}

// TimeIndex returns the row of t, or -1.
func (g *Grid) TimeIndex(t string) int {
	if i, ok := g.timeIndex[t]; ok {
		return i
	}
	return -1
}

// Contains reports whether k lies inside the grid.
func (g *Grid) Contains(k CellKey) bool {
	_, okD := g.dateIndex[k.Date]
	_, okT := g.timeIndex[k.Time]
	return okD && okT
}

// Keys returns every cell, date-major then time.
func (g *Grid) Keys() []CellKey {
	keys := make([]CellKey, 0, len(g.dates)*len(g.times))
	for _, d := range g.dates {
		for _, t := range g.times {
			keys = append(keys, Key(d, t))
		}
	}
	return keys
}

// Column returns every cell of date, or nil if date is not in the grid.
func (g *Grid) Column(date string) []CellKey {
	if g.DateIndex(date) < 0 {
		return nil
	}
	keys := make([]CellKey, 0, len(g.times))
	for _, t := range g.times {
		keys = append(keys, Key(date, t))
	}
	return keys
}

// Range returns the rectangle of cells spanned by a and b in
// (date-index, time-index) space. The result does not depend on argument
// order. Either corner outside the grid yields nil.
func (g *Grid) Range(a, b CellKey) []CellKey {
	if !g.Contains(a) || !g.Contains(b) {
		return nil
	}
	d0, d1 := ordered(g.dateIndex[a.Date], g.dateIndex[b.Date])
	t0, t1 := ordered(g.timeIndex[a.Time], g.timeIndex[b.Time])

	keys := make([]CellKey, 0, (d1-d0+1)*(t1-t0+1))
	for d := d0; d <= d1; d++ {
		for t := t0; t <= t1; t++ {
			keys = append(keys, Key(g.dates[d], g.times[t]))
		}
	}
	return keys
}

func ordered(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}
