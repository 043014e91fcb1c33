package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Level is a response level. Binary grids only use Unset and Ideal.
type Level uint8

const (
	Unset      Level = 0
	Ideal      Level = 1
	Acceptable Level = 2
	Possible   Level = 3
)

// MaxLevel is the highest level a response may carry.
const MaxLevel = Possible

// Valid reports whether l is within the level enumeration.
func (l Level) Valid() bool { return l <= MaxLevel }

// UnmarshalJSON accepts integers 0-3 and booleans (binary drafts).
func (l *Level) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*l = Ideal
		return nil
	case "false", "null":
		*l = Unset
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	if n < 0 || n > int(MaxLevel) {
		return fmt.Errorf("level %d out of range", n)
	}
	*l = Level(n)
	return nil
}

// Mode selects how a grid paints cells. It is fixed for a grid's lifetime.
type Mode string

const (
	ModeBinary Mode = "binary"
	ModeLevel  Mode = "level"
)

// ParseMode validates a mode string; empty means binary.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBinary:
		return ModeBinary, nil
	case ModeLevel:
		return ModeLevel, nil
	}
	return "", fmt.Errorf("unknown grid mode %q", s)
}

// Selected returns the value a "select" action writes in this mode.
func (m Mode) Selected(selectedLevel Level) Level {
	if m == ModeLevel && selectedLevel != Unset && selectedLevel.Valid() {
		return selectedLevel
	}
	return Ideal
}

// Draft maps cells to levels for one editing session. Only non-zero values
// are stored.
type Draft map[CellKey]Level

// Get returns the level at k (Unset if absent).
func (d Draft) Get(k CellKey) Level { return d[k] }

// Set writes v at k when k is offered by mask; other writes are dropped.
// It reports whether the write was applied.
func (d Draft) Set(mask *SlotMask, k CellKey, v Level) bool {
	if !mask.IsOffered(k) || !v.Valid() {
		return false
	}
	if v == Unset {
		delete(d, k)
	} else {
		d[k] = v
	}
	return true
}

// Clone returns an independent copy.
func (d Draft) Clone() Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Sanitize returns a copy holding only non-zero values on offered cells.
func (d Draft) Sanitize(mask *SlotMask) Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		if v != Unset && v.Valid() && mask.IsOffered(k) {
			out[k] = v
		}
	}
	return out
}

// ForMode collapses every level to Ideal when m is binary.
func (d Draft) ForMode(m Mode) Draft {
	if m != ModeBinary {
		return d
	}
	out := make(Draft, len(d))
	for k, v := range d {
		if v != Unset {
			out[k] = Ideal
		}
	}
	return out
}
