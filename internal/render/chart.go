// Package render turns computed heat maps into shareable artifacts: an
// interactive ECharts page and an iCalendar feed of the best slots.
package render

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

// heatColors runs from no availability to full availability.
var heatColors = []string{"#f7fbff", "#c6dbef", "#6baed6", "#2171b5", "#08306b"}

// HeatmapChart writes a standalone HTML page plotting intensity per cell,
// dates along x and times down y. Cells outside the slot mask are left
// blank.
func HeatmapChart(w io.Writer, title string, g *grid.Grid, res aggregate.Result) error {
	dates, times := g.Dates(), g.Times()

	// Category y axes grow upwards, so list times bottom first.
	rows := make([]string, len(times))
	for i, t := range times {
		rows[len(times)-1-i] = t
	}

	data := make([]opts.HeatMapData, 0, len(res.Cells))
	for _, k := range res.Keys() {
		cs := res.Cells[k]
		data = append(data, opts.HeatMapData{
			Name:  k.String(),
			Value: [3]interface{}{g.DateIndex(k.Date), len(times) - 1 - g.TimeIndex(k.Time), round2(cs.Intensity)},
		})
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     fmt.Sprintf("%dpx", 160+90*len(dates)),
			Height:    fmt.Sprintf("%dpx", 160+36*len(times)),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d respondents", res.Considered),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			Data:      dates,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:      "category",
			Data:      rows,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: heatColors},
		}),
	)
	hm.AddSeries("availability", data)

	if err := hm.Render(w); err != nil {
		return fmt.Errorf("render heat map: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
