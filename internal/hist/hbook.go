package hist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hbook/rootcnv"
)

// FromH1D converts an hbook 1D histogram, taking bin sums of weights as
// content.
func FromH1D(name string, h *hbook.H1D) (*Hist, error) {
	bins := h.Binning.Bins
	if len(bins) == 0 {
		return nil, fmt.Errorf("histogram %q has no bins", name)
	}
	edges := make([]float64, 0, len(bins)+1)
	content := make([]float64, 0, len(bins))
	for i := range bins {
		edges = append(edges, bins[i].XMin())
		content = append(content, bins[i].SumW())
	}
	edges = append(edges, bins[len(bins)-1].XMax())
	return FromTable(name, content, edges)
}

// FromH2D converts an hbook 2D histogram. Bins are placed by their centres so
// the conversion does not depend on hbook's internal bin ordering.
func FromH2D(name string, h *hbook.H2D) (*Hist, error) {
	bins := h.Binning.Bins
	if len(bins) == 0 {
		return nil, fmt.Errorf("histogram %q has no bins", name)
	}
	xset := map[float64]struct{}{}
	yset := map[float64]struct{}{}
	var xmax, ymax float64
	for i := range bins {
		b := &bins[i]
		xset[b.XMin()] = struct{}{}
		yset[b.YMin()] = struct{}{}
		if i == 0 || b.XMax() > xmax {
			xmax = b.XMax()
		}
		if i == 0 || b.YMax() > ymax {
			ymax = b.YMax()
		}
	}
	xedges := append(sortedKeys(xset), xmax)
	yedges := append(sortedKeys(yset), ymax)

	out, err := New(name, xedges, yedges)
	if err != nil {
		return nil, err
	}
	for i := range bins {
		b := &bins[i]
		ix, _ := out.Axes[0].Find(b.XMid())
		iy, _ := out.Axes[1].Find(b.YMid())
		out.Set(b.SumW(), ix, iy)
	}
	return out, nil
}

// ToH1D converts a 1D histogram to hbook, filling each bin centre with its
// content.
func ToH1D(h *Hist) (*hbook.H1D, error) {
	if h.Dim() != 1 {
		return nil, fmt.Errorf("histogram %q: ToH1D needs 1 dimension, got %d", h.Name, h.Dim())
	}
	out := hbook.NewH1DFromEdges(h.Axes[0].Edges)
	out.Ann["name"] = strings.TrimLeft(h.Name, "/")
	for i := 0; i < h.Axes[0].NBins(); i++ {
		out.Fill(h.Axes[0].Center(i), h.Content[i])
	}
	return out, nil
}

// ToH2D converts a 2D histogram to hbook.
func ToH2D(h *Hist) (*hbook.H2D, error) {
	if h.Dim() != 2 {
		return nil, fmt.Errorf("histogram %q: ToH2D needs 2 dimensions, got %d", h.Name, h.Dim())
	}
	out := hbook.NewH2DFromEdges(h.Axes[0].Edges, h.Axes[1].Edges)
	out.Ann["name"] = strings.TrimLeft(h.Name, "/")
	for iy := 0; iy < h.Axes[1].NBins(); iy++ {
		for ix := 0; ix < h.Axes[0].NBins(); ix++ {
			out.Fill(h.Axes[0].Center(ix), h.Axes[1].Center(iy), h.At(ix, iy))
		}
	}
	return out, nil
}

// ReadFile loads histogram name from a ROOT (.root) or YODA (.yoda) file.
func ReadFile(path, name string) (*Hist, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".root":
		return ReadROOT(path, name)
	case ".yoda":
		return ReadYODA(path, name)
	default:
		return nil, fmt.Errorf("unsupported histogram file %q: want .root or .yoda", path)
	}
}

// ReadROOT loads a TH1 or TH2 from a ROOT file.
func ReadROOT(path, name string) (*Hist, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ROOT file %q: %w", path, err)
	}
	defer f.Close()

	obj, err := f.Get(name)
	if err != nil {
		return nil, fmt.Errorf("histogram %q not found in %q: %w", name, path, err)
	}
	switch h := obj.(type) {
	case rhist.H2:
		return FromH2D(name, rootcnv.H2D(h))
	case rhist.H1:
		return FromH1D(name, rootcnv.H1D(h))
	default:
		return nil, fmt.Errorf("object %q in %q is a %T, not a TH1 or TH2", name, path, obj)
	}
}

// ReadYODA loads a HISTO1D or HISTO2D block whose path matches name.
func ReadYODA(path, name string) (*Hist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open YODA file %q: %w", path, err)
	}
	defer f.Close()

	blocks, err := yodaBlocks(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read YODA file %q: %w", path, err)
	}
	for _, blk := range blocks {
		if strings.TrimLeft(blk.path, "/") != strings.TrimLeft(name, "/") {
			continue
		}
		switch {
		case strings.HasPrefix(blk.kind, "YODA_HISTO1D"):
			h := hbook.NewH1D(1, 0, 1)
			if err := h.UnmarshalYODA(blk.data); err != nil {
				return nil, fmt.Errorf("failed to decode %q: %w", name, err)
			}
			return FromH1D(name, h)
		case strings.HasPrefix(blk.kind, "YODA_HISTO2D"):
			h := hbook.NewH2D(1, 0, 1, 1, 0, 1)
			if err := h.UnmarshalYODA(blk.data); err != nil {
				return nil, fmt.Errorf("failed to decode %q: %w", name, err)
			}
			return FromH2D(name, h)
		default:
			return nil, fmt.Errorf("object %q in %q is a %s, not a histogram", name, path, blk.kind)
		}
	}
	return nil, fmt.Errorf("histogram %q not found in %q", name, path)
}

// WriteYODA writes 1D and 2D histograms as consecutive YODA blocks.
func WriteYODA(w io.Writer, hs ...*Hist) error {
	for _, h := range hs {
		var (
			data []byte
			err  error
		)
		switch h.Dim() {
		case 1:
			var hb *hbook.H1D
			if hb, err = ToH1D(h); err == nil {
				data, err = hb.MarshalYODA()
			}
		case 2:
			var hb *hbook.H2D
			if hb, err = ToH2D(h); err == nil {
				data, err = hb.MarshalYODA()
			}
		default:
			err = fmt.Errorf("histogram %q: YODA output supports 1 or 2 dimensions, got %d", h.Name, h.Dim())
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

type yodaBlock struct {
	kind string
	path string
	data []byte
}

func yodaBlocks(r io.Reader) ([]yodaBlock, error) {
	var (
		out []yodaBlock
		cur *yodaBlock
		buf bytes.Buffer
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "BEGIN ") {
			fields := strings.Fields(line)
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed YODA header %q", line)
			}
			cur = &yodaBlock{kind: fields[1], path: fields[2]}
			buf.Reset()
		}
		if cur == nil {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.HasPrefix(line, "END ") {
			cur.data = append([]byte(nil), buf.Bytes()...)
			out = append(out, *cur)
			cur = nil
		}
	}
	return out, sc.Err()
}

func sortedKeys(m map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}
