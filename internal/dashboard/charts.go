package dashboard

import (
	"fmt"

	"painel/internal/core"
)

// Figure ids, also used as DOM element ids by the dashboard page.
const (
	FigureTimeSeries = "grafico-serie"
	FigureComparison = "grafico-comparativo"
)

// Figure is a chart description in the shape plotly.js consumes.
type Figure struct {
	ID     string  `json:"id"`
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one plotted series.
type Trace struct {
	Type string    `json:"type"`
	Mode string    `json:"mode,omitempty"`
	Name string    `json:"name"`
	X    []string  `json:"x"`
	Y    []float64 `json:"y"`
}

// Layout holds the figure title and margins.
type Layout struct {
	Title  string `json:"title"`
	Margin Margin `json:"margin"`
}

// Margin is the plot area padding in pixels.
type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

var defaultMargin = Margin{L: 20, R: 20, T: 40, B: 20}

// TimeSeries plots the metric for each record, one point per date.
func TimeSeries(records []core.DerivedRecord, metric core.Metric) Figure {
	trace := Trace{
		Type: "scatter",
		Mode: "lines+markers",
		Name: metric.Label(),
		X:    make([]string, 0, len(records)),
		Y:    make([]float64, 0, len(records)),
	}
	for _, r := range records {
		trace.X = append(trace.X, r.Date.String())
		trace.Y = append(trace.Y, metric.Of(r).InexactFloat64())
	}
	return Figure{
		ID:   FigureTimeSeries,
		Data: []Trace{trace},
		Layout: Layout{
			Title:  fmt.Sprintf("%s ao longo do tempo", metric.Label()),
			Margin: defaultMargin,
		},
	}
}

// MonthlyComparison sums the metric per calendar month and plots the totals
// side by side. Records must be in date order.
func MonthlyComparison(records []core.DerivedRecord, metric core.Metric) Figure {
	trace := Trace{Type: "bar", Name: metric.Label(), X: []string{}, Y: []float64{}}

	var (
		months []string
		totals = map[string]float64{}
	)
	for _, r := range records {
		key := r.Date.Format("2006-01")
		if _, seen := totals[key]; !seen {
			months = append(months, key)
		}
		totals[key] += metric.Of(r).InexactFloat64()
	}
	for _, m := range months {
		trace.X = append(trace.X, m)
		trace.Y = append(trace.Y, totals[m])
	}

	return Figure{
		ID:   FigureComparison,
		Data: []Trace{trace},
		Layout: Layout{
			Title:  fmt.Sprintf("%s por mês", metric.Label()),
			Margin: defaultMargin,
		},
	}
}
