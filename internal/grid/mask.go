package grid

// SlotMask is the organizer-defined set of offered cells. It is closed-world:
// anything not explicitly offered is not offered.
type SlotMask struct {
	grid    *Grid
	offered map[CellKey]struct{}
}

// NewSlotMask builds a mask over g from a template. Keys outside the grid and
// false entries are dropped.
func NewSlotMask(g *Grid, template map[CellKey]bool) *SlotMask {
	m := &SlotMask{grid: g, offered: make(map[CellKey]struct{}, len(template))}
	for k, ok := range template {
		if ok && g.Contains(k) {
			m.offered[k] = struct{}{}
		}
	}
	return m
}

// FullMask offers every cell of g.
func FullMask(g *Grid) *SlotMask {
	m := &SlotMask{grid: g, offered: make(map[CellKey]struct{})}
	for _, k := range g.Keys() {
		m.offered[k] = struct{}{}
	}
	return m
}

// Grid returns the grid the mask was built over.
func (m *SlotMask) Grid() *Grid { return m.grid }

// IsOffered reports whether k is open for response.
func (m *SlotMask) IsOffered(k CellKey) bool {
	if m == nil {
		return false
	}
	_, ok := m.offered[k]
	return ok
}

// Len returns the number of offered cells.
func (m *SlotMask) Len() int { return len(m.offered) }

// Offered returns the offered cells in grid order.
func (m *SlotMask) Offered() []CellKey {
	keys := make([]CellKey, 0, len(m.offered))
	for _, k := range m.grid.Keys() {
		if m.IsOffered(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Template returns the mask in its serialized template form.
func (m *SlotMask) Template() map[CellKey]bool {
	t := make(map[CellKey]bool, len(m.offered))
	for k := range m.offered {
		t[k] = true
	}
	return t
}
