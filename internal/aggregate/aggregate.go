// Package aggregate merges member responses into a per-cell heat-map.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/response"
)

// Scheme selects how cell scores are accumulated.
type Scheme string

const (
	// SchemeCount scores one point per respondent marking the cell.
	SchemeCount Scheme = "count"
	// SchemePenalized sums levels and charges non-responders PenaltyWeight.
	// Lower scores are better.
	SchemePenalized Scheme = "penalized"
)

// ParseScheme validates a scheme name; empty means penalized.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", SchemePenalized:
		return SchemePenalized, nil
	case SchemeCount:
		return SchemeCount, nil
	}
	return "", fmt.Errorf("unknown scoring scheme %q", s)
}

// Params configures scoring.
type Params struct {
	Scheme        Scheme
	PenaltyWeight float64
	MaxLevel      grid.Level
}

// DefaultParams returns the penalized scheme with a penalty of 4.
func DefaultParams() Params {
	return Params{Scheme: SchemePenalized, PenaltyWeight: 4, MaxLevel: grid.MaxLevel}
}

// CellScore is the aggregate for one offered cell.
type CellScore struct {
	Score       float64 `json:"score"`
	Respondents int     `json:"respondents"`
	Intensity   float64 `json:"intensity"`
}

// Result is a computed heat-map.
type Result struct {
	Cells      map[grid.CellKey]CellScore `json:"cells"`
	Considered int                        `json:"considered"`
	order      []grid.CellKey
}

// Compute scores every offered cell of mask from the responses whose member
// is not in excluded. It never fails: empty input yields zero scores.
func Compute(responses []response.MemberResponse, mask *grid.SlotMask, excluded map[string]struct{}, p Params) Result {
	considered := make([]response.MemberResponse, 0, len(responses))
	for _, r := range responses {
		if _, skip := excluded[r.Member]; skip {
			continue
		}
		considered = append(considered, r)
	}

	offered := mask.Offered()
	res := Result{
		Cells:      make(map[grid.CellKey]CellScore, len(offered)),
		Considered: len(considered),
		order:      offered,
	}

	n := float64(len(considered))
	for _, k := range offered {
		var cs CellScore
		for _, r := range considered {
			v := r.Availability.Get(k)
			if v != grid.Unset {
				cs.Respondents++
			}
			switch p.Scheme {
			case SchemeCount:
				if v != grid.Unset {
					cs.Score++
				}
			default:
				if v != grid.Unset && v <= p.MaxLevel {
					cs.Score += float64(v)
				} else {
					cs.Score += p.PenaltyWeight
				}
			}
		}
		cs.Intensity = intensity(cs.Score, n, p)
		res.Cells[k] = cs
	}
	return res
}

func intensity(score, n float64, p Params) float64 {
	if n == 0 {
		return 0
	}
	var v float64
	switch p.Scheme {
	case SchemeCount:
		v = score / n
	default:
		maxScore := n * p.PenaltyWeight
		minScore := n * float64(grid.Ideal)
		if maxScore <= minScore {
			return 0
		}
		v = (maxScore - score) / (maxScore - minScore)
	}
	return clamp(v)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Ranked is an offered cell with its score, used for "best slot" listings.
type Ranked struct {
	Key grid.CellKey
	CellScore
}

// Best returns up to n offered cells ordered by intensity, then respondent
// count, then grid order. Cells with zero intensity are skipped.
func (r Result) Best(n int) []Ranked {
	out := make([]Ranked, 0, len(r.order))
	for _, k := range r.order {
		cs := r.Cells[k]
		if cs.Intensity <= 0 {
			continue
		}
		out = append(out, Ranked{Key: k, CellScore: cs})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Intensity != out[j].Intensity {
			return out[i].Intensity > out[j].Intensity
		}
		return out[i].Respondents > out[j].Respondents
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Keys returns the offered cells in grid order.
func (r Result) Keys() []grid.CellKey {
	return append([]grid.CellKey(nil), r.order...)
}
