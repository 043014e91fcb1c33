package session

import (
	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

// CellView is the render state of one grid cell.
type CellView struct {
	Key         grid.CellKey `json:"key"`
	Offered     bool         `json:"offered"`
	Draft       grid.Level   `json:"draft"`
	Score       float64      `json:"score"`
	Respondents int          `json:"respondents"`
	Intensity   float64      `json:"intensity"`
}

// MemberView lists one respondent and whether they are hidden. Removed
// members were permanently excluded and have no response left.
type MemberView struct {
	Member   string `json:"member"`
	Excluded bool   `json:"excluded"`
	Removed  bool   `json:"removed"`
}

// View is a snapshot of everything a front end draws. Rows are indexed by
// time then date, matching a table with one column per date.
type View struct {
	EventID        string       `json:"event_id"`
	Title          string       `json:"title"`
	Mode           grid.Mode    `json:"mode"`
	SelectedLevel  grid.Level   `json:"selected_level"`
	Offered        int          `json:"offered"`
	Dates          []string     `json:"dates"`
	Times          []string     `json:"times"`
	Rows           [][]CellView `json:"rows"`
	Considered     int          `json:"considered"`
	Members        []MemberView `json:"members"`
	SuppressScroll bool         `json:"suppress_scroll"`
}

// View builds the current read model. It does not change any state.
func (s *Session) View() View {
	g := s.event.Mask.Grid()
	agg := s.Aggregate()
	draft := s.ctrl.Draft()

	dates, times := g.Dates(), g.Times()
	rows := make([][]CellView, len(times))
	for ti, t := range times {
		row := make([]CellView, len(dates))
		for di, d := range dates {
			k := grid.Key(d, t)
			cv := CellView{Key: k, Offered: s.event.Mask.IsOffered(k)}
			if cv.Offered {
				cs := agg.Cells[k]
				cv.Draft = draft.Get(k)
				cv.Score = cs.Score
				cv.Respondents = cs.Respondents
				cv.Intensity = cs.Intensity
			}
			row[di] = cv
		}
		rows[ti] = row
	}

	members := s.responses.Members()
	mv := make([]MemberView, 0, len(members))
	listed := make(map[string]bool, len(members))
	for _, m := range members {
		removed := s.exclusions.IsPermanentlyExcluded(m)
		mv = append(mv, MemberView{
			Member:   m,
			Excluded: removed || s.exclusions.IsTemporarilyExcluded(m),
			Removed:  removed,
		})
		listed[m] = true
	}
	for _, m := range s.exclusions.Permanent() {
		if !listed[m] {
			mv = append(mv, MemberView{Member: m, Excluded: true, Removed: true})
		}
	}

	return View{
		EventID:        s.EventID(),
		Title:          s.event.Title,
		Mode:           s.ctrl.Mode(),
		SelectedLevel:  s.ctrl.SelectedLevel(),
		Offered:        s.event.Mask.Len(),
		Dates:          dates,
		Times:          times,
		Rows:           rows,
		Considered:     agg.Considered,
		Members:        mv,
		SuppressScroll: s.ctrl.State().SuppressScroll(),
	}
}
