// Package render emits the viewer artifacts: an HTML chart page of the
// observed and fitted emission series with per-segment trend curves, and the
// run report (markdown rendered to HTML).
package render

import (
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"nh3flux/domain/observation"
	"nh3flux/domain/segment"
	"nh3flux/internal/errors"
)

const timeLabel = "2006-01-02 15:04"

// segmentPalette is the fixed color encoding of the segment curves.
var segmentPalette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2",
	"#59a14f", "#edc948", "#b07aa1", "#ff9da7",
}

// trendWindow is the moving-average window of the smoothed segment curves.
const trendWindow = 9

// WriteChart renders the viewer page: one chart overlaying the observed
// points with the global fitted curve, then one trend chart per non-empty
// segment. Empty segments are skipped, never an error.
func WriteChart(path string, ds observation.Dataset, segs []segment.Segment) error {
	page := components.NewPage()
	page.AddCharts(globalChart(ds))
	for i, seg := range segs {
		if seg.Empty() {
			continue
		}
		page.AddCharts(segmentChart(seg, segmentPalette[i%len(segmentPalette)]))
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.New(errors.CodeRenderError, "failed to create chart file: "+err.Error())
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return errors.New(errors.CodeRenderError, "failed to render chart page: "+err.Error())
	}
	return nil
}

func globalChart(ds observation.Dataset) components.Charter {
	times := make([]string, len(ds))
	observed := make([]opts.ScatterData, len(ds))
	fitted := make([]opts.LineData, len(ds))
	for i, r := range ds {
		times[i] = r.Timestamp.Format(timeLabel)
		observed[i] = opts.ScatterData{Value: r.NH3, SymbolSize: 4}
		fitted[i] = opts.LineData{Value: r.Predicted}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "NH3 emission trend", Width: "1100px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "NH3 emission: observed vs fitted",
			Subtitle: "Gamma GAMM with ARMA residual correlation",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "NH3 emission"}),
	)
	scatter.SetXAxis(times).AddSeries("observed", observed)

	line := charts.NewLine()
	line.SetXAxis(times).AddSeries("fitted", fitted,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	scatter.Overlap(line)
	return scatter
}

// segmentChart overlays the observed readings of one segment with the
// moving-average trend of its predictions.
func segmentChart(seg segment.Segment, color string) components.Charter {
	times := make([]string, len(seg.Points))
	raw := make([]opts.LineData, len(seg.Points))
	predicted := make([]float64, len(seg.Points))
	for i, p := range seg.Points {
		times[i] = p.Timestamp.Format(timeLabel)
		raw[i] = opts.LineData{Value: p.Observed}
		predicted[i] = p.Predicted
	}

	trend := movingAverage(predicted, trendWindow)
	smoothed := make([]opts.LineData, len(trend))
	for i, v := range trend {
		smoothed[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "segment " + seg.Name}),
		charts.WithColorsOpts(opts.Colors{color, "#bab0ac"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "predicted NH3"}),
	)
	line.SetXAxis(times).
		AddSeries("trend", smoothed, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})).
		AddSeries("raw", raw)
	return line
}

// movingAverage smooths x with a centered window, shrinking the window at
// the edges.
func movingAverage(x []float64, window int) []float64 {
	if window < 2 || len(x) == 0 {
		return append([]float64(nil), x...)
	}
	half := window / 2
	out := make([]float64, len(x))
	for i := range x {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(x) {
			hi = len(x) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += x[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
