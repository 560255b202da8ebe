package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/animus-labs/gluejobs/internal/jobs"
	"github.com/spf13/cobra"
)

func newJobsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the available jobs and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tREQUIRED\tOPTIONAL\tDESCRIPTION")
			for _, def := range jobs.All() {
				optional := strings.Join(def.Optional, ",")
				if optional == "" {
					optional = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.Name, strings.Join(def.Required, ","), optional, def.Description)
			}
			return w.Flush()
		},
	}
}
