package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/calladmin/calladmin-client/internal/api"
)

// CtlCmd returns the ctl command group for driving a running client
func CtlCmd() *cobra.Command {
	var addr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running client over its gRPC control port",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "Control server address (default: server.address from config)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-request timeout")

	// withClient dials the control server and runs fn with a bounded context.
	withClient := func(cmd *cobra.Command, fn func(ctx context.Context, client *api.Client) error) error {
		target := addr
		if target == "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			target = cfg.Server.Address
		}
		conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", target, err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return fn(ctx, api.NewClient(conn))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show polling state, trackers and known calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *api.Client) error {
				st, err := client.GetStatus(ctx)
				if err != nil {
					return err
				}
				view, err := api.FromStatusStruct(st)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), view)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "handle <index>",
		Short: "Mark the call at index as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			return withClient(cmd, func(ctx context.Context, client *api.Client) error {
				if err := client.MarkHandled(ctx, int32(index)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Call #%d marked as handled\n", index)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reconnect",
		Short: "Restart polling after too many errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *api.Client) error {
				if err := client.Reconnect(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reconnecting")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh-trackers",
		Short: "Ask the running client to reload the trackers list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *api.Client) error {
				if err := client.RefreshTrackers(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Retrieving current trackers")
				return nil
			})
		},
	})

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived calls from the running client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *api.Client) error {
				st, err := client.ListHistory(ctx, int32(limit))
				if err != nil {
					return err
				}
				view, err := api.FromHistoryStruct(st)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of calls to show")
	cmd.AddCommand(historyCmd)

	return cmd
}

func printStatus(out io.Writer, view api.StatusView) {
	status := view.Status
	if view.Escalation.ThresholdExceeded {
		status = color.New(color.FgRed).Sprint(status)
	} else {
		status = color.New(color.FgGreen).Sprint(status)
	}
	fmt.Fprintf(out, "Status:   %s\n", status)
	fmt.Fprintf(out, "Errors:   %d of %d\n", view.Escalation.Attempts, view.Escalation.Threshold)
	fmt.Fprintf(out, "Next:     %s", view.NextMode)
	if view.InFlight {
		fmt.Fprint(out, " (request in flight)")
	}
	fmt.Fprintln(out)
	if view.FetchP95Ms > 0 {
		fmt.Fprintf(out, "p95:      %dms\n", view.FetchP95Ms)
	}
	fmt.Fprintf(out, "Trackers: %s\n", strings.Join(view.Trackers, ", "))
	fmt.Fprintln(out)

	if len(view.Calls) == 0 {
		fmt.Fprintln(out, "No calls.")
		return
	}
	for _, entry := range view.Calls {
		mark := " "
		if entry.Call.Handled {
			mark = color.New(color.FgGreen).Sprint("✓")
		}
		fmt.Fprintf(out, "[%d] %s %s: %s reported %s for %q\n",
			entry.Position, mark, entry.Caption, entry.Call.ClientName, entry.Call.TargetName, entry.Call.TargetReason)
	}
}
