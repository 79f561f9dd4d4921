package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/calladmin/calladmin-client/internal/api"
	"github.com/calladmin/calladmin-client/internal/archive"
	"github.com/calladmin/calladmin-client/internal/utils"
)

// HistoryCmd returns the history command
func HistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show calls recorded in the local archive",
		Long: `Read the newest calls from the archive file without contacting a running client.

The archive is written by "calladmin-client run" when archive.enabled is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := archive.Open(cfg.Archive.Path)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			total, err := a.Count(cmd.Context())
			if err != nil {
				return err
			}

			view := api.HistoryView{Total: total}
			for _, e := range entries {
				item := api.HistoryEntry{Call: e.Call, FirstSeenAt: e.FirstSeenAt.Format(time.RFC3339)}
				if !e.HandledAt.IsZero() {
					item.HandledAt = e.HandledAt.Format(time.RFC3339)
				}
				view.Entries = append(view.Entries, item)
			}
			printHistory(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of calls to show")
	return cmd
}

func printHistory(out io.Writer, view api.HistoryView) {
	if len(view.Entries) == 0 {
		fmt.Fprintln(out, "No calls recorded.")
		return
	}
	fmt.Fprintf(out, "Showing %d of %d calls\n\n", len(view.Entries), view.Total)
	for _, e := range view.Entries {
		c := e.Call
		state := color.New(color.FgYellow).Sprint("OPEN   ")
		if c.Handled {
			state = color.New(color.FgGreen).Sprint("HANDLED")
		}
		fmt.Fprintf(out, "%s %s  %s\n", state, utils.CallCaption(c.ReportedAt, c.ServerName, time.Local), c.TargetReason)
		fmt.Fprintf(out, "        %s (%s) reported %s (%s)\n", c.ClientName, c.ClientID, c.TargetName, c.TargetID)
	}
}
