package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/smearceptance/internal/eventio"
	"github.com/banshee-data/smearceptance/internal/smear"
)

func (a *app) newRunCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "run <events.jsonl|->",
		Short: "Smear events and write reconstructed records as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(args[0], outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) run(eventsPath, outPath string) error {
	c, err := a.component()
	if err != nil {
		return err
	}

	var out io.Writer = a.out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := eventio.NewWriter(out)
	start := a.clock.Now()

	n, err := a.forEachEvent(eventsPath, func(ev *eventio.Event) error {
		ri, err := smear.Smearcept(c, ev.Event)
		if err != nil {
			return err
		}
		ri.Weight *= ev.Weight
		return w.WriteReco(ev.ID, ri)
	})
	if ferr := w.Flush(); err == nil && ferr != nil {
		err = fmt.Errorf("flush output: %w", ferr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.errOut, "smeared %d events with %s in %s\n", n, c.Name(), a.clock.Since(start).Round(time.Millisecond))
	return printStats(a.errOut, c.Stats())
}

func printStats(w io.Writer, s smear.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "particles\t%d\n", s.Particles)
	fmt.Fprintf(tw, "tracks\t%d\n", s.Tracks)
	fmt.Fprintf(tw, "deposits\t%d\n", s.Deposits)
	fmt.Fprintf(tw, "rejected\t%d\n", s.Rejected)
	fmt.Fprintf(tw, "ignored\t%d\n", s.Ignored)
	fmt.Fprintf(tw, "fallback\t%d\n", s.Fallback)
	fmt.Fprintf(tw, "out of range\t%d\n", s.OutOfRange)
	fmt.Fprintf(tw, "empty slices\t%d\n", s.EmptySlice)
	fmt.Fprintf(tw, "dropped NaN\t%d\n", s.NaN)
	fmt.Fprintf(tw, "redraws\t%d\n", s.Redraws)
	fmt.Fprintf(tw, "energy lost\t%.4g MeV\n", s.EnergyLost)
	return tw.Flush()
}
