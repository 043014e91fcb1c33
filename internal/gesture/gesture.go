// Package gesture turns raw pointer and touch input over an availability grid
// into ordered draft writes.
//
// The state machine is explicit: a gesture moves Idle -> Armed -> Dragging and
// back to Idle on release or cancel. Transition is a pure function; Controller
// owns a State and a draft and applies the resulting patches in arrival order.
package gesture

import (
	"math"
	"time"

	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

// Phase is the gesture state.
type Phase int

const (
	Idle     Phase = iota // No pointer down.
	Armed                 // Pointer down; a touch has not yet crossed the move threshold.
	Dragging              // Painting every offered cell the pointer enters.
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Dragging:
		return "dragging"
	}
	return "unknown"
}

// Pointer is the input device behind an event.
type Pointer int

const (
	Mouse Pointer = iota
	Touch
)

// Kind is the event type.
type Kind int

const (
	Press       Kind = iota // mouse-down / touch-start
	Move                    // pointer entered a cell / touch moved
	Release                 // mouse-up / touch-end, delivered even outside the grid
	Cancel                  // touch-cancel or lost capture; ends without a tap
	Click                   // discrete click, used for shift range selection
	HeaderClick             // click on a date column header
)

// Event is one raw input event. Cell is the zero key when the pointer is
// outside the grid.
type Event struct {
	Kind    Kind
	Pointer Pointer
	Cell    grid.CellKey
	Date    string
	X, Y    float64
	At      time.Time
	Shift   bool
}

// Thresholds parameterize tap/drag disambiguation for touch input.
type Thresholds struct {
	MoveDistance   float64       // pixels from the touch start before a drag commits
	TapMaxDuration time.Duration // a release after this long is not a tap
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{MoveDistance: 10, TapMaxDuration: 250 * time.Millisecond}
}

// Write is a single draft mutation.
type Write struct {
	Key   grid.CellKey
	Value grid.Level
}

// Patch is an ordered list of writes; later writes win.
type Patch []Write

// Env is everything a transition reads besides the gesture state. Values is
// read, never written.
type Env struct {
	Mask          *grid.SlotMask
	Mode          grid.Mode
	SelectedLevel grid.Level
	Thresholds    Thresholds
	Values        grid.Draft
}

func (e Env) selected() grid.Level {
	return e.Mode.Selected(e.SelectedLevel)
}

// paintFor derives the value a gesture starting at k paints.
func (e Env) paintFor(k grid.CellKey) grid.Level {
	cur := e.Values.Get(k)
	if e.Mode == grid.ModeLevel {
		if cur == e.selected() {
			return grid.Unset
		}
		return e.selected()
	}
	if cur != grid.Unset {
		return grid.Unset
	}
	return grid.Ideal
}

// State is the session-local gesture state.
type State struct {
	Phase      Phase
	Pointer    Pointer
	PaintValue grid.Level
	LastCell   grid.CellKey
	StartCell  grid.CellKey
	StartX     float64
	StartY     float64
	StartAt    time.Time
	Moved      bool
}

// SuppressScroll reports whether the host should prevent default touch
// scrolling for the current gesture.
func (s State) SuppressScroll() bool {
	return s.Phase == Dragging && s.Pointer == Touch
}

// reset ends the current gesture, keeping the range-selection anchor.
func (s State) reset() State {
	return State{LastCell: s.LastCell}
}

// Transition applies ev to s and returns the next state and the writes it
// produces. Writes to cells the mask does not offer are never emitted.
func Transition(s State, ev Event, env Env) (State, Patch) {
	switch ev.Kind {
	case Press:
		return press(s, ev, env)
	case Move:
		return move(s, ev, env)
	case Release:
		return release(s, ev, env)
	case Cancel:
		return s.reset(), nil
	case Click:
		return click(s, ev, env)
	case HeaderClick:
		return s, headerToggle(ev.Date, env)
	}
	return s, nil
}

func press(s State, ev Event, env Env) (State, Patch) {
	// A press while a gesture is active means the release was lost.
	s = s.reset()
	if !env.Mask.IsOffered(ev.Cell) {
		return s, nil
	}
	if ev.Shift && !s.LastCell.IsZero() {
		return rangeFill(s, ev.Cell, env)
	}

	s.Phase = Armed
	s.Pointer = ev.Pointer
	s.PaintValue = env.paintFor(ev.Cell)
	s.StartCell = ev.Cell
	s.StartX, s.StartY = ev.X, ev.Y
	s.StartAt = ev.At
	s.LastCell = ev.Cell

	if ev.Pointer == Touch {
		// Touch waits for the move threshold or a tap on release.
		return s, nil
	}
	return s, Patch{{Key: ev.Cell, Value: s.PaintValue}}
}

func move(s State, ev Event, env Env) (State, Patch) {
	if s.Phase == Idle || ev.Pointer != s.Pointer {
		return s, nil
	}

	var patch Patch
	if s.Phase == Armed {
		if s.Pointer == Touch {
			if math.Hypot(ev.X-s.StartX, ev.Y-s.StartY) < env.Thresholds.MoveDistance {
				return s, nil
			}
			patch = append(patch, Write{Key: s.StartCell, Value: s.PaintValue})
		}
		s.Phase = Dragging
		s.Moved = true
	}

	if env.Mask.IsOffered(ev.Cell) && !(len(patch) > 0 && ev.Cell == s.StartCell) {
		patch = append(patch, Write{Key: ev.Cell, Value: s.PaintValue})
	}
	return s, patch
}

func release(s State, ev Event, env Env) (State, Patch) {
	if s.Phase == Idle {
		return s, nil
	}

	var patch Patch
	if s.Pointer == Touch && ev.Pointer == Touch && s.Phase == Armed && !s.Moved &&
		ev.At.Sub(s.StartAt) < env.Thresholds.TapMaxDuration {
		patch = Patch{{Key: s.StartCell, Value: s.PaintValue}}
	}
	return s.reset(), patch
}

func click(s State, ev Event, env Env) (State, Patch) {
	if !env.Mask.IsOffered(ev.Cell) {
		return s, nil
	}
	if ev.Shift && !s.LastCell.IsZero() {
		return rangeFill(s, ev.Cell, env)
	}
	s.LastCell = ev.Cell
	return s, nil
}

// rangeFill selects every offered cell in the rectangle between the anchor
// and to.
func rangeFill(s State, to grid.CellKey, env Env) (State, Patch) {
	sel := env.selected()
	var patch Patch
	for _, k := range env.Mask.Grid().Range(s.LastCell, to) {
		if env.Mask.IsOffered(k) {
			patch = append(patch, Write{Key: k, Value: sel})
		}
	}
	s.LastCell = to
	return s, patch
}

// headerToggle clears a fully selected column and selects any other.
func headerToggle(date string, env Env) Patch {
	var offered []grid.CellKey
	for _, k := range env.Mask.Grid().Column(date) {
		if env.Mask.IsOffered(k) {
			offered = append(offered, k)
		}
	}
	if len(offered) == 0 {
		return nil
	}

	sel := env.selected()
	full := true
	for _, k := range offered {
		if env.Values.Get(k) != sel {
			full = false
			break
		}
	}

	value := sel
	if full {
		value = grid.Unset
	}
	patch := make(Patch, 0, len(offered))
	for _, k := range offered {
		patch = append(patch, Write{Key: k, Value: value})
	}
	return patch
}
