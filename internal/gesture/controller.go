package gesture

import (
	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

// Config fixes the grid mode and tuning for a Controller.
type Config struct {
	Mode          grid.Mode
	SelectedLevel grid.Level
	Thresholds    Thresholds
}

// Controller binds a gesture state to one draft. It is not safe for
// concurrent use; events must be delivered one at a time in arrival order.
type Controller struct {
	state State
	env   Env
	draft grid.Draft
}

// NewController creates a Controller editing draft under mask. A nil draft
// starts empty. Zero thresholds fall back to DefaultThresholds.
func NewController(mask *grid.SlotMask, draft grid.Draft, cfg Config) *Controller {
	if draft == nil {
		draft = grid.Draft{}
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.Mode == "" {
		cfg.Mode = grid.ModeBinary
	}
	if cfg.SelectedLevel == grid.Unset {
		cfg.SelectedLevel = grid.Ideal
	}
	return &Controller{
		env: Env{
			Mask:          mask,
			Mode:          cfg.Mode,
			SelectedLevel: cfg.SelectedLevel,
			Thresholds:    cfg.Thresholds,
		},
		draft: draft,
	}
}

// Handle runs ev through the state machine and applies the resulting writes
// to the draft. It returns the writes that were applied.
func (c *Controller) Handle(ev Event) Patch {
	env := c.env
	env.Values = c.draft

	next, patch := Transition(c.state, ev, env)
	c.state = next

	applied := patch[:0:0]
	for _, w := range patch {
		if c.draft.Set(c.env.Mask, w.Key, w.Value) {
			applied = append(applied, w)
		}
	}
	return applied
}

// SetSelectedLevel changes the level painted by subsequent gestures in level
// mode. Out-of-range levels are ignored.
func (c *Controller) SetSelectedLevel(l grid.Level) {
	if l == grid.Unset || !l.Valid() {
		return
	}
	c.env.SelectedLevel = l
}

// SelectedLevel returns the level painted in level mode.
func (c *Controller) SelectedLevel() grid.Level { return c.env.SelectedLevel }

// Mode returns the grid mode.
func (c *Controller) Mode() grid.Mode { return c.env.Mode }

// State returns the current gesture state.
func (c *Controller) State() State { return c.state }

// Draft returns the draft being edited. Callers must not mutate it while the
// controller is in use.
func (c *Controller) Draft() grid.Draft { return c.draft }
