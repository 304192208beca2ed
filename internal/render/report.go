package render

import (
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/pipeline"
)

var statusColours = map[pipeline.Status]string{
	pipeline.StatusCompleted: "#35b779",
	pipeline.StatusFailed:    "#e5534b",
	pipeline.StatusCancelled: "#f0a33a",
	pipeline.StatusRunning:   "#3e4989",
	pipeline.StatusPending:   "#bbbbbb",
}

// WriteReport renders an HTML page with the duration of every executed step and the count of
// steps per status.
func WriteReport(w io.Writer, title string, snap pipeline.Snapshot) error {
	steps := make([]string, 0, len(snap.Order))
	durations := make([]opts.BarData, 0, len(snap.Order))
	counts := map[pipeline.Status]int{}

	for _, step := range snap.Order {
		res := snap.Results[step]
		steps = append(steps, string(step))
		durations = append(durations, opts.BarData{
			Name:      string(res.Status),
			Value:     res.Duration().Round(time.Millisecond).Seconds(),
			ItemStyle: &opts.ItemStyle{Color: statusColours[res.Status]},
		})
		counts[res.Status]++
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Step durations", Subtitle: snap.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
	)
	bar.SetXAxis(steps).
		AddSeries("duration", durations,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	statuses := make([]opts.PieData, 0, len(counts))
	for _, status := range []pipeline.Status{pipeline.StatusCompleted, pipeline.StatusFailed, pipeline.StatusCancelled, pipeline.StatusRunning} {
		if n := counts[status]; n > 0 {
			statuses = append(statuses, opts.PieData{
				Name:      string(status),
				Value:     n,
				ItemStyle: &opts.ItemStyle{Color: statusColours[status]},
			})
		}
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Step status"}),
	)
	pie.AddSeries("status", statuses)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(bar, pie)

	err := page.Render(w)
	if err != nil {
		return errors.Wrap(err, "unable to render report")
	}

	return nil
}
