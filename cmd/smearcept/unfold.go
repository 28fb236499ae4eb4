package main

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/smearceptance/internal/eventio"
	"github.com/banshee-data/smearceptance/internal/hist"
	"github.com/banshee-data/smearceptance/internal/plotting"
	"github.com/banshee-data/smearceptance/internal/responsedb"
	"github.com/banshee-data/smearceptance/internal/smear"
	"github.com/banshee-data/smearceptance/internal/unfold"
)

type unfoldOptions struct {
	response string
	html     string
	fixed    bool
}

func (a *app) newUnfoldCmd() *cobra.Command {
	var o unfoldOptions
	cmd := &cobra.Command{
		Use:   "unfold <events.jsonl|->",
		Short: "Unfold the reconstructed spectrum of smeared events with a stored response",
		Long: `unfold smears every event, histograms the reconstructed value of the
configured variable, picks the smallest truncation that gives a non-negative
unfolded spectrum and propagates the reco uncertainties with toys. The true
spectrum of the same events is shown for comparison.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.unfold(args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.response, "response", "", "response ID or label (default the latest <smearcepter>/<variable>)")
	f.StringVar(&o.html, "html", "", "write an interactive chart of the unfolded spectrum to this file")
	f.BoolVar(&o.fixed, "fixed-truncation", false, "use the stored truncation instead of searching")
	return cmd
}

// resolveResponse accepts a record ID or a label, preferring an exact ID.
func resolveResponse(db *responsedb.DB, ref string) (*responsedb.ResponseRecord, error) {
	rec, err := db.GetResponse(ref)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	id, err := db.LatestResponse(ref)
	if err != nil {
		return nil, fmt.Errorf("no response with ID or label %q: %w", ref, err)
	}
	return db.GetResponse(id)
}

func (a *app) unfold(eventsPath string, o unfoldOptions) error {
	c, err := a.component()
	if err != nil {
		return err
	}
	k, pdg, bins := a.cfg.GetVariable(), a.cfg.GetResponsePDG(), a.cfg.GetBins()

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	ref := o.response
	if ref == "" {
		ref = c.Name() + "/" + k.String()
	}
	rec, err := resolveResponse(db, ref)
	if err != nil {
		return err
	}
	if rec.NReco != len(bins)-1 {
		return fmt.Errorf("response %s has %d reco bins, the configured binning has %d", rec.ResponseID, rec.NReco, len(bins)-1)
	}

	recoH, err := hist.New("reco", bins)
	if err != nil {
		return err
	}
	truthH, err := hist.New("truth", bins)
	if err != nil {
		return err
	}
	_, err = a.forEachEvent(eventsPath, func(ev *eventio.Event) error {
		ri, err := smear.Smearcept(c, ev.Event)
		if err != nil {
			return err
		}
		pr, ok := selectPair(ev.Event, ri, k, pdg)
		if !ok {
			return nil
		}
		truthH.Fill(ev.Weight, pr.True)
		if pr.Reconstructed {
			recoH.Fill(ev.Weight, pr.Reco)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var r *unfold.Response
	if o.fixed {
		r, err = unfold.BuildResponse(rec.Migration, rec.Truncation)
	} else {
		r, _, err = unfold.AutoTruncate(rec.Migration, recoH.Content, a.cfg.GetMaxTruncation())
	}
	if err != nil {
		return err
	}

	errs := make([]float64, len(recoH.Content))
	for i, v := range recoH.Content {
		errs[i] = math.Sqrt(math.Abs(v))
	}
	mode := a.cfg.GetThrowMode()
	toys, err := unfold.PropagateToys(recoH.Content, errs, r.Inverse, unfold.ToyConfig{
		N:          a.cfg.GetToys(),
		Mode:       mode,
		NoNegative: a.cfg.GetNoNegative(),
		Seed:       a.cfg.GetSeed(),
	})
	if err != nil {
		return err
	}
	if _, err := db.SaveUnfold(rec.ResponseID, r.Truncation, mode, toys); err != nil {
		return err
	}

	labels := binLabels(bins)
	if o.html != "" {
		if err := writeUnfoldedHTML(o.html, plotting.UnfoldedSpectrum{
			Title:      rec.Name,
			Labels:     labels,
			Toys:       toys,
			Truth:      truthH.Content,
			Truncation: r.Truncation,
		}); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "unfolded with response %s (%s), truncation %d, %d toys (%s)\n",
		rec.ResponseID, rec.Name, r.Truncation, toys.N, mode)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "bin\treco\tunfolded\tstddev\ttruth\t")
	for i := range labels {
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.1f\t%.1f\t\n", labels[i], recoH.Content[i], toys.Mean[i], toys.StdDev[i], truthH.Content[i])
	}
	return tw.Flush()
}

func writeUnfoldedHTML(path string, s plotting.UnfoldedSpectrum) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := plotting.RenderUnfoldedHTML(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func binLabels(edges []float64) []string {
	labels := make([]string, len(edges)-1)
	for i := range labels {
		labels[i] = fmt.Sprintf("[%g,%g)", edges[i], edges[i+1])
	}
	return labels
}
