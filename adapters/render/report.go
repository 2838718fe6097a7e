package render

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"nh3flux/adapters/diagnostics"
	"nh3flux/adapters/gamm"
	"nh3flux/domain/core"
	"nh3flux/domain/observation"
	"nh3flux/domain/segment"
	"nh3flux/internal/errors"
)

// ReportData collects everything the run report presents
type ReportData struct {
	RunID       core.RunID
	GeneratedAt time.Time
	Fraction    float64
	Seed        int64

	Drop       observation.DropReport
	SampleSize int

	Coefs      []gamm.Coef
	EDF        map[string]float64
	Components gamm.Components
	Deviance   float64

	Segments          []segment.Segment
	BaselineUnbounded bool

	Diagnostic  diagnostics.Result
	ResidualACF []float64
}

// BuildMarkdown composes the report as markdown: the smooth/fixed-effect
// summary view, the random-effect/correlation summary view, the segment
// inventory, and the diagnostic outcome.
func BuildMarkdown(d ReportData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# NH3 emission model report\n\n")
	fmt.Fprintf(&b, "Run `%s`, generated %s\n\n", d.RunID, d.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Sampling fraction %.2f, seed %d. Input rows %d, kept %d, sampled %d.\n\n",
		d.Fraction, d.Seed, d.Drop.Total, d.Drop.Kept, d.SampleSize)

	if len(d.Drop.Dropped) > 0 {
		fmt.Fprintf(&b, "Dropped rows:\n\n")
		for reason, n := range d.Drop.Dropped {
			fmt.Fprintf(&b, "- %s: %d\n", reason, n)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Fixed effects and smooth terms\n\n")
	fmt.Fprintf(&b, "| term | level | estimate | std err | z | p |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	for _, c := range d.Coefs {
		fmt.Fprintf(&b, "| %s | %s | %.4f | %.4f | %.2f | %.4g |\n",
			c.Term, c.Level, c.Estimate, c.StdErr, c.ZValue, c.PValue)
	}
	fmt.Fprintf(&b, "\nGamma deviance %.3f. Effective degrees of freedom:\n\n", d.Deviance)
	for term, edf := range d.EDF {
		fmt.Fprintf(&b, "- %s: %.2f\n", term, edf)
	}

	fmt.Fprintf(&b, "\n## Variance components and residual correlation\n\n")
	fmt.Fprintf(&b, "- dispersion: %.4f\n", d.Components.Dispersion)
	fmt.Fprintf(&b, "- day random-intercept variance: %.4f\n", d.Components.DayInterceptVar)
	if len(d.Components.ARMAPhi) > 0 || len(d.Components.ARMATheta) > 0 {
		fmt.Fprintf(&b, "- ARMA phi: %s\n", formatFloats(d.Components.ARMAPhi))
		fmt.Fprintf(&b, "- ARMA theta: %s\n", formatFloats(d.Components.ARMATheta))
		fmt.Fprintf(&b, "- innovation variance: %.4f\n", d.Components.InnovationVar)
	}

	fmt.Fprintf(&b, "\n## Segments\n\n")
	if d.BaselineUnbounded {
		fmt.Fprintf(&b, "No precipitation event \"1\" observed; the baseline segment spans the whole dataset.\n\n")
	}
	fmt.Fprintf(&b, "| segment | axis | n | mean | median | std dev |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	for _, seg := range d.Segments {
		if seg.Empty() {
			fmt.Fprintf(&b, "| %s | %s | 0 | - | - | - |\n", seg.Name, seg.Axis)
			continue
		}
		preds := make([]float64, len(seg.Points))
		for i, p := range seg.Points {
			preds[i] = p.Predicted
		}
		mean, _ := stats.Mean(preds)
		median, _ := stats.Median(preds)
		sd, _ := stats.StandardDeviation(preds)
		fmt.Fprintf(&b, "| %s | %s | %d | %.3f | %.3f | %.3f |\n",
			seg.Name, seg.Axis, len(seg.Points), mean, median, sd)
	}

	fmt.Fprintf(&b, "\n## Serial-correlation diagnostic\n\n")
	switch d.Diagnostic.Status {
	case diagnostics.StatusComputed:
		fmt.Fprintf(&b, "Breusch-Godfrey LM (lag %d): %.4f, p = %.4g\n",
			d.Diagnostic.Lag, d.Diagnostic.Statistic, d.Diagnostic.PValue)
	default:
		fmt.Fprintf(&b, "Breusch-Godfrey test unavailable (%s): %s\n",
			d.Diagnostic.Status, d.Diagnostic.Reason)
	}

	if len(d.ResidualACF) > 1 {
		fmt.Fprintf(&b, "\nDeviance-residual ACF (lags 1..%d): %s\n",
			len(d.ResidualACF)-1, formatFloats(d.ResidualACF[1:]))
	}

	return b.String()
}

// WriteReport renders the markdown report to an HTML file for the viewer.
func WriteReport(path string, d ReportData) error {
	md := BuildMarkdown(d)

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.CompletePage,
		Title: "NH3 emission model report",
	})
	html := markdown.ToHTML([]byte(md), p, renderer)

	if err := os.WriteFile(path, html, 0o644); err != nil {
		return errors.New(errors.CodeRenderError, "failed to write report: "+err.Error())
	}
	return nil
}

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.3f", x)
	}
	return strings.Join(parts, ", ")
}
