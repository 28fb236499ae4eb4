package plotting

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/smearceptance/internal/unfold"
)

// UnfoldedSpectrum is the data behind RenderUnfoldedHTML.
type UnfoldedSpectrum struct {
	Title string
	// Labels name the true bins; bin indices are used when empty.
	Labels []string
	Toys   *unfold.ToyResult
	// Truth is an optional reference spectrum.
	Truth []float64
	// Truncation is shown in the subtitle.
	Truncation int
}

// RenderUnfoldedHTML writes an interactive page with the toy mean and
// standard deviation per bin, and the reference truth when given.
func RenderUnfoldedHTML(w io.Writer, s UnfoldedSpectrum) error {
	if s.Toys == nil || len(s.Toys.Mean) == 0 {
		return fmt.Errorf("no unfolded spectrum to render")
	}
	n := len(s.Toys.Mean)
	labels := s.Labels
	if len(labels) == 0 {
		labels = make([]string, n)
		for i := range labels {
			labels[i] = fmt.Sprintf("bin %d", i)
		}
	}
	if len(labels) != n {
		return fmt.Errorf("%d labels for %d bins", len(labels), n)
	}
	if s.Truth != nil && len(s.Truth) != n {
		return fmt.Errorf("%d truth bins for %d unfolded bins", len(s.Truth), n)
	}

	mean := make([]opts.BarData, n)
	std := make([]opts.BarData, n)
	for i := 0; i < n; i++ {
		mean[i] = opts.BarData{Value: s.Toys.Mean[i]}
		std[i] = opts.BarData{Value: s.Toys.StdDev[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: s.Title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: s.Title, Subtitle: fmt.Sprintf("toys=%d truncation=%d", s.Toys.N, s.Truncation)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("unfolded", mean).
		AddSeries("stddev", std)

	if s.Truth != nil {
		truth := make([]opts.LineData, n)
		for i, v := range s.Truth {
			truth[i] = opts.LineData{Value: v}
		}
		line := charts.NewLine()
		line.SetXAxis(labels).AddSeries("truth", truth)
		bar.Overlap(line)
	}

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}
