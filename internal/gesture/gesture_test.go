package gesture

import (
	"testing"
	"time"

	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

var (
	d1 = "2025-03-03"
	d2 = "2025-03-04"
	d3 = "2025-03-05"
	t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

// testMask is a 3-date × 4-time grid with 2025-03-04 10am masked out.
func testMask(t *testing.T) *grid.SlotMask {
	t.Helper()
	g, err := grid.New([]string{d1, d2, d3}, []string{"9am", "10am", "11am", "12pm"})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	tmpl := make(map[grid.CellKey]bool)
	for _, k := range g.Keys() {
		tmpl[k] = true
	}
	tmpl[grid.Key(d2, "10am")] = false
	return grid.NewSlotMask(g, tmpl)
}

func binaryController(t *testing.T) *Controller {
	t.Helper()
	return NewController(testMask(t), nil, Config{Mode: grid.ModeBinary})
}

func mouse(kind Kind, k grid.CellKey) Event {
	return Event{Kind: kind, Pointer: Mouse, Cell: k, At: t0}
}

func touch(kind Kind, k grid.CellKey, x, y float64, at time.Duration) Event {
	return Event{Kind: kind, Pointer: Touch, Cell: k, X: x, Y: y, At: t0.Add(at)}
}

func assertDraft(t *testing.T, got grid.Draft, want map[grid.CellKey]grid.Level) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("draft size: got %d (%v), want %d (%v)", len(got), got, len(want), want)
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("cell %v: got %d, want %d", k, got.Get(k), v)
		}
	}
}

// --- Press / Release ---

func TestMouseTap_TogglesSingleCell(t *testing.T) {
	c := binaryController(t)
	k := grid.Key(d1, "9am")

	c.Handle(mouse(Press, k))
	if c.State().Phase != Armed {
		t.Errorf("phase after press: got %v, want armed", c.State().Phase)
	}
	c.Handle(mouse(Release, k))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{k: grid.Ideal})
	if c.State().Phase != Idle {
		t.Errorf("phase after release: got %v, want idle", c.State().Phase)
	}

	c.Handle(mouse(Press, k))
	c.Handle(mouse(Release, k))
	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
}

func TestTouchTap_MatchesMouseTap(t *testing.T) {
	k := grid.Key(d2, "11am")

	m := binaryController(t)
	m.Handle(mouse(Press, k))
	m.Handle(mouse(Release, k))

	tc := binaryController(t)
	p := tc.Handle(touch(Press, k, 100, 100, 0))
	if len(p) != 0 {
		t.Errorf("touch press should not paint, got %v", p)
	}
	tc.Handle(touch(Move, k, 103, 102, 50*time.Millisecond))
	tc.Handle(touch(Release, k, 103, 102, 120*time.Millisecond))

	assertDraft(t, tc.Draft(), map[grid.CellKey]grid.Level{k: grid.Ideal})
	assertDraft(t, m.Draft(), map[grid.CellKey]grid.Level{k: grid.Ideal})
}

func TestTouchLongPress_IsNotATap(t *testing.T) {
	c := binaryController(t)
	k := grid.Key(d1, "9am")

	c.Handle(touch(Press, k, 0, 0, 0))
	c.Handle(touch(Release, k, 0, 0, time.Second))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
}

func TestTouchCancel_DoesNotTap(t *testing.T) {
	c := binaryController(t)
	k := grid.Key(d1, "9am")

	c.Handle(touch(Press, k, 0, 0, 0))
	c.Handle(Event{Kind: Cancel, Pointer: Touch})
	c.Handle(touch(Release, k, 0, 0, 10*time.Millisecond))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
}

func TestPress_OnMaskedCellIsNoop(t *testing.T) {
	c := binaryController(t)
	masked := grid.Key(d2, "10am")

	if p := c.Handle(mouse(Press, masked)); len(p) != 0 {
		t.Errorf("expected no writes, got %v", p)
	}
	if c.State().Phase != Idle {
		t.Errorf("phase: got %v, want idle", c.State().Phase)
	}
}

func TestPress_OutsideGridIsNoop(t *testing.T) {
	c := binaryController(t)
	c.Handle(mouse(Press, grid.Key("2030-01-01", "9am")))
	c.Handle(mouse(Press, grid.CellKey{}))
	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
}

// --- Drag ---

func TestMouseDrag_PaintsCapturedValue(t *testing.T) {
	c := binaryController(t)
	a := grid.Key(d1, "9am")
	b := grid.Key(d1, "10am")
	cc := grid.Key(d1, "11am")

	// b already selected; a drag starting on unselected a paints "selected".
	c.Draft()[b] = grid.Ideal

	c.Handle(mouse(Press, a))
	c.Handle(mouse(Move, b))
	c.Handle(mouse(Move, cc))
	if c.State().Phase != Dragging {
		t.Errorf("phase: got %v, want dragging", c.State().Phase)
	}
	c.Handle(mouse(Release, cc))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{a: grid.Ideal, b: grid.Ideal, cc: grid.Ideal})
}

func TestMouseDrag_ClearsWhenStartingOnSelected(t *testing.T) {
	c := binaryController(t)
	a := grid.Key(d1, "9am")
	b := grid.Key(d2, "9am")
	c.Draft()[a] = grid.Ideal
	c.Draft()[b] = grid.Ideal

	c.Handle(mouse(Press, a))
	c.Handle(mouse(Move, b))
	c.Handle(mouse(Release, b))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
}

func TestDrag_ReenteringCellIsIdempotent(t *testing.T) {
	c := binaryController(t)
	a := grid.Key(d1, "9am")
	b := grid.Key(d1, "10am")

	c.Handle(mouse(Press, a))
	for i := 0; i < 5; i++ {
		c.Handle(mouse(Move, b))
		c.Handle(mouse(Move, a))
	}
	c.Handle(mouse(Release, a))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{a: grid.Ideal, b: grid.Ideal})
}

func TestDrag_SkipsMaskedCells(t *testing.T) {
	c := binaryController(t)
	a := grid.Key(d1, "10am")
	masked := grid.Key(d2, "10am")
	cc := grid.Key(d3, "10am")

	c.Handle(mouse(Press, a))
	c.Handle(mouse(Move, masked))
	c.Handle(mouse(Move, cc))
	c.Handle(mouse(Release, cc))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{a: grid.Ideal, cc: grid.Ideal})
}

func TestMove_WithoutPressDoesNothing(t *testing.T) {
	c := binaryController(t)
	c.Handle(mouse(Move, grid.Key(d1, "9am")))
	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
}

func TestRelease_OutsideGridEndsDrag(t *testing.T) {
	c := binaryController(t)
	a := grid.Key(d1, "9am")
	b := grid.Key(d1, "10am")

	c.Handle(mouse(Press, a))
	c.Handle(mouse(Release, grid.CellKey{}))
	if c.State().Phase != Idle {
		t.Fatalf("phase: got %v, want idle", c.State().Phase)
	}

	// Later unrelated movement must not keep painting.
	c.Handle(mouse(Move, b))
	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{a: grid.Ideal})
}

func TestTouchDrag_CommitsAfterThreshold(t *testing.T) {
	c := binaryController(t)
	a := grid.Key(d1, "9am")
	b := grid.Key(d1, "10am")
	cc := grid.Key(d1, "11am")

	c.Handle(touch(Press, a, 50, 50, 0))
	if p := c.Handle(touch(Move, a, 54, 53, 10*time.Millisecond)); len(p) != 0 {
		t.Errorf("below threshold should not paint, got %v", p)
	}
	if c.State().SuppressScroll() {
		t.Error("scroll must not be suppressed before the drag commits")
	}

	p := c.Handle(touch(Move, b, 50, 80, 40*time.Millisecond))
	if len(p) != 2 || p[0].Key != a || p[1].Key != b {
		t.Errorf("commit should paint start then current cell, got %v", p)
	}
	if !c.State().SuppressScroll() {
		t.Error("scroll should be suppressed while dragging")
	}

	c.Handle(touch(Move, cc, 50, 110, 60*time.Millisecond))
	c.Handle(touch(Release, cc, 50, 110, 90*time.Millisecond))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{a: grid.Ideal, b: grid.Ideal, cc: grid.Ideal})
	if c.State().SuppressScroll() {
		t.Error("scroll suppression must end on release")
	}
}

func TestTouchDrag_ReleaseAfterDragDoesNotToggleAgain(t *testing.T) {
	c := binaryController(t)
	a := grid.Key(d1, "9am")

	c.Handle(touch(Press, a, 0, 0, 0))
	c.Handle(touch(Move, a, 0, 30, 20*time.Millisecond))
	c.Handle(touch(Release, a, 0, 30, 40*time.Millisecond))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{a: grid.Ideal})
}

// --- Level mode ---

func TestLevelMode_PressPaintsSelectedOrClears(t *testing.T) {
	c := NewController(testMask(t), nil, Config{Mode: grid.ModeLevel, SelectedLevel: grid.Acceptable})
	k := grid.Key(d1, "9am")

	c.Handle(mouse(Press, k))
	c.Handle(mouse(Release, k))
	if got := c.Draft().Get(k); got != grid.Acceptable {
		t.Errorf("got %d, want %d", got, grid.Acceptable)
	}

	c.Handle(mouse(Press, k))
	c.Handle(mouse(Release, k))
	if got := c.Draft().Get(k); got != grid.Unset {
		t.Errorf("got %d, want unset", got)
	}

	c.Handle(mouse(Press, k))
	c.Handle(mouse(Release, k))
	c.SetSelectedLevel(grid.Possible)
	c.Handle(mouse(Press, k))
	c.Handle(mouse(Release, k))
	if got := c.Draft().Get(k); got != grid.Possible {
		t.Errorf("switching level should overwrite: got %d, want %d", got, grid.Possible)
	}
}

func TestSetSelectedLevel_IgnoresInvalid(t *testing.T) {
	c := NewController(testMask(t), nil, Config{Mode: grid.ModeLevel, SelectedLevel: grid.Acceptable})
	c.SetSelectedLevel(grid.Unset)
	c.SetSelectedLevel(grid.Level(9))
	if c.SelectedLevel() != grid.Acceptable {
		t.Errorf("got %d, want %d", c.SelectedLevel(), grid.Acceptable)
	}
}

// --- Shift range ---

func TestShiftClick_FillsRectangle(t *testing.T) {
	c := binaryController(t)
	from := grid.Key(d1, "9am")
	to := grid.Key(d3, "11am")

	c.Handle(mouse(Click, from))
	c.Handle(Event{Kind: Click, Pointer: Mouse, Cell: to, Shift: true})

	want := map[grid.CellKey]grid.Level{}
	for _, d := range []string{d1, d2, d3} {
		for _, tm := range []string{"9am", "10am", "11am"} {
			want[grid.Key(d, tm)] = grid.Ideal
		}
	}
	delete(want, grid.Key(d2, "10am")) // masked
	assertDraft(t, c.Draft(), want)
}

func TestShiftClick_OrderIndependent(t *testing.T) {
	a := grid.Key(d1, "12pm")
	b := grid.Key(d2, "9am")

	fwd := binaryController(t)
	fwd.Handle(mouse(Click, a))
	fwd.Handle(Event{Kind: Click, Pointer: Mouse, Cell: b, Shift: true})

	rev := binaryController(t)
	rev.Handle(mouse(Click, b))
	rev.Handle(Event{Kind: Click, Pointer: Mouse, Cell: a, Shift: true})

	if len(fwd.Draft()) != len(rev.Draft()) {
		t.Fatalf("sizes differ: %d vs %d", len(fwd.Draft()), len(rev.Draft()))
	}
	for k, v := range fwd.Draft() {
		if rev.Draft().Get(k) != v {
			t.Errorf("cell %v: %d vs %d", k, v, rev.Draft().Get(k))
		}
	}
}

func TestShiftPress_FillsFromLastPressed(t *testing.T) {
	c := NewController(testMask(t), nil, Config{Mode: grid.ModeLevel, SelectedLevel: grid.Possible})
	a := grid.Key(d1, "9am")
	b := grid.Key(d1, "11am")

	c.Handle(mouse(Press, a))
	c.Handle(mouse(Release, a))
	c.Handle(Event{Kind: Press, Pointer: Mouse, Cell: b, Shift: true, At: t0})
	c.Handle(mouse(Release, b))

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{
		a:                    grid.Possible,
		grid.Key(d1, "10am"): grid.Possible,
		b:                    grid.Possible,
	})
}

func TestShiftClick_WithoutAnchorOnlyAnchors(t *testing.T) {
	c := binaryController(t)
	k := grid.Key(d1, "9am")
	c.Handle(Event{Kind: Click, Pointer: Mouse, Cell: k, Shift: true})

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
	if c.State().LastCell != k {
		t.Errorf("LastCell: got %v, want %v", c.State().LastCell, k)
	}
}

func TestShiftClick_OutsideRectangleUntouched(t *testing.T) {
	c := binaryController(t)
	outside := grid.Key(d3, "12pm")
	c.Draft()[outside] = grid.Ideal

	c.Handle(mouse(Click, grid.Key(d1, "9am")))
	c.Handle(Event{Kind: Click, Pointer: Mouse, Cell: grid.Key(d2, "9am"), Shift: true})

	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{
		grid.Key(d1, "9am"): grid.Ideal,
		grid.Key(d2, "9am"): grid.Ideal,
		outside:             grid.Ideal,
	})
}

// --- Column header ---

func TestHeaderClick_TogglesColumn(t *testing.T) {
	c := binaryController(t)

	c.Handle(Event{Kind: HeaderClick, Date: d2})
	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{
		grid.Key(d2, "9am"):  grid.Ideal,
		grid.Key(d2, "11am"): grid.Ideal,
		grid.Key(d2, "12pm"): grid.Ideal,
	})

	c.Handle(Event{Kind: HeaderClick, Date: d2})
	assertDraft(t, c.Draft(), map[grid.CellKey]grid.Level{})
}

func TestHeaderClick_PartialColumnSelectsAll(t *testing.T) {
	c := NewController(testMask(t), nil, Config{Mode: grid.ModeLevel, SelectedLevel: grid.Acceptable})
	c.Draft()[grid.Key(d1, "9am")] = grid.Acceptable
	c.Draft()[grid.Key(d1, "10am")] = grid.Possible

	c.Handle(Event{Kind: HeaderClick, Date: d1})
	for _, tm := range []string{"9am", "10am", "11am", "12pm"} {
		if got := c.Draft().Get(grid.Key(d1, tm)); got != grid.Acceptable {
			t.Errorf("%s: got %d, want %d", tm, got, grid.Acceptable)
		}
	}
}

func TestHeaderClick_TwiceRestoresUniformColumn(t *testing.T) {
	c := binaryController(t)
	c.Handle(Event{Kind: HeaderClick, Date: d1})
	before := c.Draft().Clone()

	c.Handle(Event{Kind: HeaderClick, Date: d1})
	c.Handle(Event{Kind: HeaderClick, Date: d1})

	assertDraft(t, c.Draft(), before)
}

func TestHeaderClick_UnknownDateIsNoop(t *testing.T) {
	c := binaryController(t)
	if p := c.Handle(Event{Kind: HeaderClick, Date: "2030-01-01"}); len(p) != 0 {
		t.Errorf("expected no writes, got %v", p)
	}
}

// --- Mask invariant ---

func TestNoEventSequenceWritesMaskedCell(t *testing.T) {
	c := binaryController(t)
	masked := grid.Key(d2, "10am")

	events := []Event{
		mouse(Press, masked),
		mouse(Press, grid.Key(d1, "9am")),
		mouse(Move, masked),
		mouse(Move, grid.Key(d3, "12pm")),
		mouse(Release, grid.CellKey{}),
		{Kind: Click, Pointer: Mouse, Cell: grid.Key(d3, "12pm"), Shift: true},
		{Kind: Click, Pointer: Mouse, Cell: grid.Key(d1, "9am"), Shift: true},
		{Kind: HeaderClick, Date: d2},
		{Kind: HeaderClick, Date: d2},
		{Kind: HeaderClick, Date: d2},
		touch(Press, grid.Key(d2, "9am"), 0, 0, 0),
		touch(Move, masked, 0, 40, 10*time.Millisecond),
		touch(Release, masked, 0, 40, 20*time.Millisecond),
		touch(Press, masked, 0, 0, 0),
		touch(Release, masked, 0, 0, time.Millisecond),
	}
	for _, ev := range events {
		c.Handle(ev)
		if c.Draft().Get(masked) != grid.Unset {
			t.Fatalf("masked cell written after event %+v", ev)
		}
	}
}

func TestTransition_IsPure(t *testing.T) {
	mask := testMask(t)
	values := grid.Draft{}
	env := Env{Mask: mask, Mode: grid.ModeBinary, SelectedLevel: grid.Ideal, Thresholds: DefaultThresholds(), Values: values}

	s, patch := Transition(State{}, mouse(Press, grid.Key(d1, "9am")), env)
	if len(values) != 0 {
		t.Error("Transition must not mutate Values")
	}
	if len(patch) != 1 || patch[0].Value != grid.Ideal {
		t.Errorf("patch: got %v", patch)
	}
	if s.Phase != Armed || s.PaintValue != grid.Ideal {
		t.Errorf("state: got %+v", s)
	}
}
