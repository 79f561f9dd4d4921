package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calladmin/calladmin-client/internal/config"
	"github.com/calladmin/calladmin-client/internal/engine"
	"github.com/calladmin/calladmin-client/internal/parser"
	"github.com/calladmin/calladmin-client/internal/repo"
	"github.com/calladmin/calladmin-client/internal/transport"
)

// TrackersCmd returns the trackers command
func TrackersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trackers",
		Short: "List admins currently tracking calls",
		Long: `Fetch trackers.php once and print one line per tracker.

Names are resolved through the presence service when trackers.presenceURL is set;
trackers that cannot be resolved are shown by id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireAPI(); err != nil {
				return err
			}
			logger, closer := newLogger(cfg)
			defer closer.Close()
			return listTrackers(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

func listTrackers(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	worker := transport.NewWorker(cfg.Poll.ConnectTimeout, cfg.Poll.TotalTimeout, logger)
	defer worker.Close()

	req := transport.Request{
		ID:   uuid.NewString(),
		Kind: transport.KindTrackers,
		URL:  repo.NewEndpoints(cfg.API.BaseURL, cfg.API.Key).TrackersURL(),
	}
	if err := worker.Fetch(req); err != nil {
		return err
	}

	var res transport.Result
	select {
	case res = <-worker.Results():
	case <-ctx.Done():
		return ctx.Err()
	}

	ids, err := engine.DecodeTrackers(parser.New(logger), res)
	if err != nil {
		return err
	}

	resolver, provider := newResolver(cfg, logger)
	defer provider.Close()
	for _, label := range engine.Labels(resolver.ResolveAll(ctx, ids, cfg.Client.ActorID)) {
		fmt.Fprintln(out, label)
	}
	return nil
}
