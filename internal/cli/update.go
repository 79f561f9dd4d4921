package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/calladmin/calladmin-client/internal/repo"
	"github.com/calladmin/calladmin-client/internal/version"
)

// CheckUpdateCmd returns the check-update command
func CheckUpdateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check-update",
		Short: "Check whether a newer client version is published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			info, err := repo.NewUpdateChecker(cfg.API.UpdateURL, timeout).Check(cmd.Context(), version.Version)
			if err != nil {
				return err
			}
			if info.Available {
				fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgYellow).Sprint(info.Message()))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgGreen).Sprint(info.Message()))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP timeout for the version page")
	return cmd
}
