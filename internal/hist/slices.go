package hist

import (
	"fmt"
	"sort"
)

// Slice is the distribution of the second axis for one first-axis range of
// a 2D histogram, covering [Low, High).
type Slice struct {
	Low, High float64
	Dist      *Hist
}

// Slices is an ordered, contiguous set of slices, searchable by first-axis
// value.
type Slices []Slice

// SliceX cuts a 2D histogram into one Slice per first-axis bin.
func SliceX(h *Hist) (Slices, error) {
	if h.Dim() != 2 {
		return nil, fmt.Errorf("histogram %q: slicing needs 2 dimensions, got %d", h.Name, h.Dim())
	}
	ax := h.Axes[0]
	out := make(Slices, 0, ax.NBins())
	for ix := 0; ix < ax.NBins(); ix++ {
		dist, err := h.ProjectionY(ix)
		if err != nil {
			return nil, err
		}
		out = append(out, Slice{Low: ax.Edges[ix], High: ax.Edges[ix+1], Dist: dist})
	}
	return out, nil
}

// Find returns the slice whose range contains x. ok is false when x is
// outside the overall range.
func (s Slices) Find(x float64) (sl *Slice, ok bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].High > x })
	if i == len(s) || x < s[i].Low {
		return nil, false
	}
	return &s[i], true
}

// Range returns the overall covered interval.
func (s Slices) Range() (lo, hi float64) {
	if len(s) == 0 {
		return 0, 0
	}
	return s[0].Low, s[len(s)-1].High
}
