package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/calladmin/calladmin-client/internal/cache"
	"github.com/calladmin/calladmin-client/internal/config"
	"github.com/calladmin/calladmin-client/internal/engine"
	"github.com/calladmin/calladmin-client/internal/repo"
	"github.com/calladmin/calladmin-client/internal/utils"
)

// ConfigFlag is the persistent flag naming the config file.
const ConfigFlag = "config"

func configPath(cmd *cobra.Command) string {
	if f := cmd.Flag(ConfigFlag); f != nil {
		return f.Value.String()
	}
	return ""
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	return utils.NewLogger(utils.LogOptions{
		Level:      cfg.Logging.Level,
		JSON:       cfg.Logging.JSON,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
}

func engineSettings(cfg *config.Config) engine.Settings {
	return engine.Settings{
		BaseURL:     cfg.API.BaseURL,
		Key:         cfg.API.Key,
		Interval:    cfg.Poll.Interval,
		MaxAttempts: cfg.Poll.MaxAttempts,
		MaxCalls:    cfg.Poll.MaxCalls,
		Spectator:   cfg.Client.Spectator,
		ActorID:     cfg.Client.ActorID,
		Available:   cfg.Client.Available,
	}
}

// newResolver wires presence lookups through an in-memory cache. Without a presence
// URL every lookup reports unavailable and trackers keep their raw ids.
func newResolver(cfg *config.Config, logger *slog.Logger) (*engine.Resolver, cache.Provider) {
	var provider cache.Provider = cache.NoopProvider{}
	if cfg.Trackers.PresenceURL != "" {
		provider = cache.NewMemoryProvider()
	}
	presence := repo.NewPresenceClient(cfg.Trackers.PresenceURL, cfg.Trackers.PresenceTimeout, provider, cfg.Trackers.CacheTTL)
	resolver := engine.NewResolver(presence, cfg.Trackers.ResolveInterval, cfg.Trackers.ResolveAttempts, logger)
	return resolver, provider
}
