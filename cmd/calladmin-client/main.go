package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calladmin/calladmin-client/internal/cli"
	"github.com/calladmin/calladmin-client/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "calladmin-client",
		Short:   "CallAdmin client - watch game server reports from the terminal",
		Version: version.String(),
		Long: `calladmin-client polls a CallAdmin web API for player reports, announces
new calls and exposes a local gRPC port for handling them.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String(cli.ConfigFlag, "", "Path to configuration file (default: $CALLADMIN_CONFIG or the XDG config dir)")

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.TrackersCmd())
	rootCmd.AddCommand(cli.HistoryCmd())
	rootCmd.AddCommand(cli.CheckUpdateCmd())
	rootCmd.AddCommand(cli.CtlCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
