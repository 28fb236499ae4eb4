// Package plotting renders response matrices, smearing resolutions and
// unfolded spectra for inspection.
package plotting

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/smearceptance/internal/unfold"
)

// matrixGrid exposes a matrix as plotter.GridXYZ with x = column and
// y = row, centred on integer bin indices.
type matrixGrid struct {
	m mat.Matrix
}

func (g matrixGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g matrixGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }

// SaveResponseHeatmap draws the normalised response (x true bin, y reco bin)
// to path. The image format follows the file extension.
func SaveResponseHeatmap(r *unfold.Response, title, path string) error {
	return SaveMatrixHeatmap(r.A, title, "True bin", "Reco bin", path)
}

// SaveMatrixHeatmap draws any matrix with columns along x and rows along y.
func SaveMatrixHeatmap(m mat.Matrix, title, xLabel, yLabel, path string) error {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("cannot plot an empty matrix")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	hm := plotter.NewHeatMap(matrixGrid{m}, palette.Heat(32, 1))
	p.Add(hm)
	p.X.Min, p.X.Max = -0.5, float64(cols)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(rows)-0.5

	return save(p, 8*vg.Inch, 7*vg.Inch, path)
}

// minResolutionSpan is the narrowest x range drawn for residuals, so
// unsmeared samples still give a readable axis.
const minResolutionSpan = 1e-3

// SaveResolutionHistogram histograms per-track smearing residuals, for
// example (reco - true) / true momentum.
func SaveResolutionHistogram(residuals []float64, bins int, title, xLabel, path string) error {
	if len(residuals) == 0 {
		return fmt.Errorf("no residuals to plot")
	}
	if bins < 1 {
		return fmt.Errorf("bins must be positive, got %d", bins)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Tracks"

	h, err := plotter.NewHist(plotter.Values(residuals), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)
	if lo, hi := floats.Min(residuals), floats.Max(residuals); hi-lo < minResolutionSpan {
		mid := 0.5 * (lo + hi)
		p.X.Min, p.X.Max = mid-0.5*minResolutionSpan, mid+0.5*minResolutionSpan
	}

	return save(p, 8*vg.Inch, 5*vg.Inch, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create plot directory: %w", err)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
