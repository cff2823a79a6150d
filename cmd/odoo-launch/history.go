// history.go implements 'odoo-launch history': list every recorded run.
package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/odoo-launch/internal/history"
)

var (
	statusRunning = color.New(color.FgGreen).SprintFunc()
	statusFailed  = color.New(color.FgRed).SprintFunc()
	statusOther   = color.New(color.FgYellow).SprintFunc()
)

func newHistoryCommand(configPath *string) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(*configPath)
			if err != nil {
				return err
			}
			records, err := history.NewLedger(m.Defaults.HistoryLog).LoadAll()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tEDITION\tVERSION\tSTATUS\tHTTP\tPG\tSEED\tSTARTED")
			for _, rec := range records {
				if statusFilter != "" && rec.Status != statusFilter {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					rec.RunID, rec.Edition, rec.Version, colorStatus(rec.Status),
					rec.HTTPPort, rec.PGPort, rec.Seed, age(rec.StartedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show runs with this status")
	return cmd
}

func colorStatus(status string) string {
	switch status {
	case history.StatusRunning:
		return statusRunning(status)
	case history.StatusFailed:
		return statusFailed(status)
	default:
		return statusOther(status)
	}
}

// age renders the record timestamp as a rounded time-ago string, falling
// back to the raw value for records written by other tools.
func age(startedAt string) string {
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return startedAt
	}
	return time.Since(t).Round(time.Minute).String() + " ago"
}
