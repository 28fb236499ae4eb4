package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/smearceptance/internal/eventio"
	"github.com/banshee-data/smearceptance/internal/hist"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/plotting"
	"github.com/banshee-data/smearceptance/internal/security"
	"github.com/banshee-data/smearceptance/internal/smear"
	"github.com/banshee-data/smearceptance/internal/unfold"
)

const resolutionBins = 50

type responseOptions struct {
	label    string
	notes    string
	truncate int
	plotDir  string
}

func (a *app) newResponseCmd() *cobra.Command {
	var o responseOptions
	cmd := &cobra.Command{
		Use:   "response <events.jsonl|->",
		Short: "Build a response matrix from smeared events and store it",
		Long: `response smears every event, pairs the true and reconstructed value of
the configured variable, fills a migration matrix over the configured bins,
decomposes it and stores the result in the response database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.response(args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.label, "label", "", "name to store the response under (default <smearcepter>/<variable>)")
	f.StringVar(&o.notes, "notes", "", "free-form notes stored with the response")
	f.IntVar(&o.truncate, "truncate", 0, "singular values to drop from the stored inverse")
	f.StringVar(&o.plotDir, "plots", "", "directory to write <label>_response.png and <label>_resolution.png into")
	return cmd
}

// migrationTally fills a true-versus-reco histogram from smeared events.
type migrationTally struct {
	k   particle.KinVar
	pdg int
	h   *hist.Hist

	selected, lost, outside int
	residuals               []float64
}

func newMigrationTally(k particle.KinVar, pdg int, bins []float64) (*migrationTally, error) {
	h, err := hist.New("migration", bins, bins)
	if err != nil {
		return nil, err
	}
	return &migrationTally{k: k, pdg: pdg, h: h}, nil
}

func (t *migrationTally) add(c smear.Component, ev *eventio.Event) error {
	ri, err := smear.Smearcept(c, ev.Event)
	if err != nil {
		return err
	}
	pr, ok := selectPair(ev.Event, ri, t.k, t.pdg)
	if !ok {
		return nil
	}
	t.selected++
	if !pr.Reconstructed {
		t.lost++
		return nil
	}
	if !t.h.Fill(ev.Weight, pr.True, pr.Reco) {
		t.outside++
		return nil
	}
	if pr.True != 0 {
		t.residuals = append(t.residuals, (pr.Reco-pr.True)/pr.True)
	}
	return nil
}

func (a *app) response(eventsPath string, o responseOptions) error {
	c, err := a.component()
	if err != nil {
		return err
	}
	k := a.cfg.GetVariable()
	tally, err := newMigrationTally(k, a.cfg.GetResponsePDG(), a.cfg.GetBins())
	if err != nil {
		return err
	}

	n, err := a.forEachEvent(eventsPath, func(ev *eventio.Event) error { return tally.add(c, ev) })
	if err != nil {
		return err
	}
	if tally.h.Integral() == 0 {
		return fmt.Errorf("no reconstructed %s values inside the response bins (%d events, %d selected)", k, n, tally.selected)
	}

	r, err := unfold.ResponseFromHist(tally.h, o.truncate)
	if err != nil {
		return err
	}

	label := o.label
	if label == "" {
		label = c.Name() + "/" + k.String()
	}
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := db.SaveResponse(label, r, o.notes)
	if err != nil {
		return err
	}

	if o.plotDir != "" {
		if err := writeResponsePlots(o.plotDir, label, k, r, tally.residuals); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "response %s (%s)\n", id, label)
	fmt.Fprintf(a.out, "events %d, selected %d, not reconstructed %d, outside bins %d\n",
		n, tally.selected, tally.lost, tally.outside)
	fmt.Fprintf(a.out, "rank %d of %d, truncation %d, closure %.3g\n", r.Rank, len(r.Singular), r.Truncation, r.Closure)
	fmt.Fprintf(a.out, "singular values %.4g\n", r.Singular)
	return nil
}

func writeResponsePlots(dir, label string, k particle.KinVar, r *unfold.Response, residuals []float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	base := filepath.Join(dir, security.SanitizeFilename(label))
	if err := plotting.SaveResponseHeatmap(r, label, base+"_response.png"); err != nil {
		return err
	}
	if len(residuals) == 0 {
		return nil
	}
	return plotting.SaveResolutionHistogram(residuals, resolutionBins, label,
		fmt.Sprintf("(reco - true) / true %s", k), base+"_resolution.png")
}
