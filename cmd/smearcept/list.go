package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) newListCmd() *cobra.Command {
	var responses bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured smearcepters, or stored responses with --responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if responses {
				return a.listResponses()
			}
			return a.listSmearcepters()
		},
	}
	cmd.Flags().BoolVar(&responses, "responses", false, "list stored response matrices")
	return cmd
}

func (a *app) listSmearcepters() error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSOURCE")
	for _, info := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, info.Type, info.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "\ntypes: %s\n", strings.Join(reg.Types(), ", "))
	return err
}

func (a *app) listResponses() error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	recs, err := db.ListResponses()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBINS\tRANK\tTRUNCATION\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%d\t%s\n",
			r.ResponseID, r.Name, r.NReco, r.NTrue, r.Rank, r.Truncation, r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
