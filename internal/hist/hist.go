// Package hist provides the binned histograms the smearing chain reads
// efficiency curves and migration matrices from.
//
// Histograms have one to three axes with explicit bin edges and no
// under/overflow bins: lookups outside the axis range clamp to the edge bin
// and report it, so callers can warn and carry on.
package hist

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// MaxDims is the highest supported dimensionality.
const MaxDims = 3

// ErrEmpty is returned when sampling from a distribution with no content.
var ErrEmpty = errors.New("histogram has zero integral")

// Axis is a binned axis described by its ascending edges.
type Axis struct {
	Edges []float64
}

// NewAxis validates edges and builds an axis.
func NewAxis(edges []float64) (Axis, error) {
	if len(edges) < 2 {
		return Axis{}, fmt.Errorf("axis needs at least 2 edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return Axis{}, fmt.Errorf("axis edges must be strictly increasing: edge %d (%g) <= edge %d (%g)", i, edges[i], i-1, edges[i-1])
		}
	}
	return Axis{Edges: append([]float64(nil), edges...)}, nil
}

// UniformAxis builds n equal-width bins over [lo, hi).
func UniformAxis(n int, lo, hi float64) (Axis, error) {
	if n <= 0 {
		return Axis{}, fmt.Errorf("axis needs at least one bin, got %d", n)
	}
	edges := make([]float64, n+1)
	w := (hi - lo) / float64(n)
	for i := range edges {
		edges[i] = lo + float64(i)*w
	}
	edges[n] = hi
	return NewAxis(edges)
}

// NBins returns the number of bins.
func (a Axis) NBins() int { return len(a.Edges) - 1 }

// Min returns the lower edge of the first bin.
func (a Axis) Min() float64 { return a.Edges[0] }

// Max returns the upper edge of the last bin.
func (a Axis) Max() float64 { return a.Edges[len(a.Edges)-1] }

// Center returns the centre of bin i.
func (a Axis) Center(i int) float64 { return 0.5 * (a.Edges[i] + a.Edges[i+1]) }

// Width returns the width of bin i.
func (a Axis) Width(i int) float64 { return a.Edges[i+1] - a.Edges[i] }

// Find returns the bin containing x. Values outside the axis clamp to the
// first or last bin and report inRange=false. NaN maps to bin 0, out of range.
func (a Axis) Find(x float64) (bin int, inRange bool) {
	n := a.NBins()
	switch {
	case math.IsNaN(x):
		return 0, false
	case x < a.Edges[0]:
		return 0, false
	case x >= a.Edges[n]:
		if x == a.Edges[n] {
			return n - 1, true
		}
		return n - 1, false
	}
	// First edge strictly greater than x, minus one.
	return sort.SearchFloat64s(a.Edges, math.Nextafter(x, math.Inf(1))) - 1, true
}

// interpBin returns the lower neighbouring bin and weight for linear
// interpolation between bin centres. Beyond the outer centres the edge bin
// content is used unchanged.
func (a Axis) interpBin(x float64) (lo int, t float64) {
	n := a.NBins()
	if n == 1 || x <= a.Center(0) {
		return 0, 0
	}
	if x >= a.Center(n-1) {
		return n - 2, 1
	}
	b, _ := a.Find(x)
	if x < a.Center(b) {
		b--
	}
	return b, (x - a.Center(b)) / (a.Center(b+1) - a.Center(b))
}

// Hist is a dense 1-3 dimensional histogram. Content is stored with the
// first axis varying fastest.
type Hist struct {
	Name    string
	Axes    []Axis
	Content []float64
}

// New builds an empty histogram with one axis per edge slice.
func New(name string, edges ...[]float64) (*Hist, error) {
	if len(edges) == 0 || len(edges) > MaxDims {
		return nil, fmt.Errorf("histogram %q: dimensionality must be 1-%d, got %d", name, MaxDims, len(edges))
	}
	h := &Hist{Name: name}
	size := 1
	for d, e := range edges {
		ax, err := NewAxis(e)
		if err != nil {
			return nil, fmt.Errorf("histogram %q axis %d: %w", name, d, err)
		}
		h.Axes = append(h.Axes, ax)
		size *= ax.NBins()
	}
	h.Content = make([]float64, size)
	return h, nil
}

// FromTable builds a histogram from edges and flattened content.
func FromTable(name string, content []float64, edges ...[]float64) (*Hist, error) {
	h, err := New(name, edges...)
	if err != nil {
		return nil, err
	}
	if len(content) != len(h.Content) {
		return nil, fmt.Errorf("histogram %q: %d content values for %d bins", name, len(content), len(h.Content))
	}
	copy(h.Content, content)
	return h, nil
}

// Dim returns the number of axes.
func (h *Hist) Dim() int { return len(h.Axes) }

// Index flattens per-axis bin numbers.
func (h *Hist) Index(bins ...int) int {
	idx, stride := 0, 1
	for d, b := range bins {
		idx += b * stride
		stride *= h.Axes[d].NBins()
	}
	return idx
}

// At returns the content of the given bin.
func (h *Hist) At(bins ...int) float64 { return h.Content[h.Index(bins...)] }

// Set overwrites the content of the given bin.
func (h *Hist) Set(v float64, bins ...int) { h.Content[h.Index(bins...)] = v }

// Fill adds w to the bin containing x. Out-of-range coordinates are ignored
// and reported.
func (h *Hist) Fill(w float64, x ...float64) bool {
	if len(x) != h.Dim() {
		return false
	}
	bins := make([]int, len(x))
	for d, v := range x {
		b, ok := h.Axes[d].Find(v)
		if !ok {
			return false
		}
		bins[d] = b
	}
	h.Content[h.Index(bins...)] += w
	return true
}

// Lookup returns the content of the bin containing x, clamping out-of-range
// coordinates to the edge bin.
func (h *Hist) Lookup(x ...float64) (v float64, inRange bool) {
	inRange = true
	bins := make([]int, h.Dim())
	for d := range h.Axes {
		b, ok := h.Axes[d].Find(coord(x, d))
		bins[d] = b
		inRange = inRange && ok
	}
	return h.At(bins...), inRange
}

// Interpolate returns the multilinear interpolation between bin centres.
// inRange reports whether x lay inside the axis ranges.
func (h *Hist) Interpolate(x ...float64) (v float64, inRange bool) {
	dim := h.Dim()
	lo := make([]int, dim)
	t := make([]float64, dim)
	inRange = true
	for d := range h.Axes {
		xv := coord(x, d)
		if _, ok := h.Axes[d].Find(xv); !ok {
			inRange = false
		}
		lo[d], t[d] = h.Axes[d].interpBin(xv)
	}

	bins := make([]int, dim)
	for corner := 0; corner < 1<<dim; corner++ {
		w := 1.0
		for d := 0; d < dim; d++ {
			bins[d] = lo[d]
			if corner&(1<<d) != 0 {
				if h.Axes[d].NBins() > 1 {
					bins[d]++
				}
				w *= t[d]
			} else {
				w *= 1 - t[d]
			}
		}
		if w != 0 {
			v += w * h.At(bins...)
		}
	}
	return v, inRange
}

// Integral sums all bin contents.
func (h *Hist) Integral() float64 {
	var sum float64
	for _, c := range h.Content {
		sum += c
	}
	return sum
}

// Scale multiplies every bin by f.
func (h *Hist) Scale(f float64) {
	for i := range h.Content {
		h.Content[i] *= f
	}
}

// Clone returns a deep copy.
func (h *Hist) Clone() *Hist {
	c := &Hist{Name: h.Name, Content: append([]float64(nil), h.Content...)}
	for _, a := range h.Axes {
		c.Axes = append(c.Axes, Axis{Edges: append([]float64(nil), a.Edges...)})
	}
	return c
}

// ProjectionY returns the 1D distribution along the second axis of a 2D
// histogram for first-axis bin ix.
func (h *Hist) ProjectionY(ix int) (*Hist, error) {
	if h.Dim() != 2 {
		return nil, fmt.Errorf("histogram %q: ProjectionY needs 2 dimensions, got %d", h.Name, h.Dim())
	}
	p, err := New(fmt.Sprintf("%s_py%d", h.Name, ix), h.Axes[1].Edges)
	if err != nil {
		return nil, err
	}
	for iy := 0; iy < h.Axes[1].NBins(); iy++ {
		p.Content[iy] = h.At(ix, iy)
	}
	return p, nil
}

// Sample draws a value from a 1D histogram treated as a piecewise-uniform
// density: the bin is chosen by cumulative content, the value uniformly
// within the bin. Negative contents are treated as empty.
func (h *Hist) Sample(rng *rand.Rand) (float64, error) {
	if h.Dim() != 1 {
		return 0, fmt.Errorf("histogram %q: sampling needs 1 dimension, got %d", h.Name, h.Dim())
	}
	var total float64
	for _, c := range h.Content {
		if c > 0 {
			total += c
		}
	}
	if total <= 0 {
		return 0, ErrEmpty
	}
	r := rng.Float64() * total
	ax := h.Axes[0]
	var cum float64
	last := 0
	for i, c := range h.Content {
		if c <= 0 {
			continue
		}
		last = i
		cum += c
		if r < cum {
			return ax.Edges[i] + rng.Float64()*ax.Width(i), nil
		}
	}
	return ax.Edges[last] + rng.Float64()*ax.Width(last), nil
}

func coord(x []float64, d int) float64 {
	if d < len(x) {
		return x[d]
	}
	return 0
}
