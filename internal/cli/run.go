package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/calladmin/calladmin-client/internal/api"
	"github.com/calladmin/calladmin-client/internal/archive"
	"github.com/calladmin/calladmin-client/internal/config"
	"github.com/calladmin/calladmin-client/internal/engine"
	"github.com/calladmin/calladmin-client/internal/metrics"
	"github.com/calladmin/calladmin-client/internal/notify"
	"github.com/calladmin/calladmin-client/internal/parser"
	"github.com/calladmin/calladmin-client/internal/registry"
	"github.com/calladmin/calladmin-client/internal/services"
	"github.com/calladmin/calladmin-client/internal/transport"
	"github.com/calladmin/calladmin-client/internal/version"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the CallAdmin API and announce new calls",
		Long: `Poll notice.php on the configured interval and announce every new call.

The first cycle after start (and after every reconnect) loads the backlog silently.
After poll.maxAttempts consecutive failures polling stops until a reconnect is
requested with "calladmin-client ctl reconnect".

SIGHUP re-reads the config file and restarts polling with the new poll and client
settings. Server, logging, archive and sink settings need a full restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireAPI(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reload := make(chan os.Signal, 1)
			signal.Notify(reload, syscall.SIGHUP)
			defer signal.Stop(reload)

			return run(ctx, cfg, runEnv{
				out:        cmd.OutOrStdout(),
				configPath: configPath(cmd),
				reload:     reload,
			})
		},
	}
}

// runEnv carries what run needs from the process around it.
type runEnv struct {
	out        io.Writer
	configPath string
	reload     <-chan os.Signal
}

func run(ctx context.Context, cfg *config.Config, env runEnv) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	logger, logCloser := newLogger(cfg)
	defer logCloser.Close()
	logger.Info("starting calladmin-client",
		slog.String("version", version.String()),
		slog.String("api", cfg.API.BaseURL),
		slog.Bool("spectator", cfg.Client.Spectator),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	resolver, presenceCache := newResolver(cfg, logger)
	defer presenceCache.Close()

	var (
		journal engine.Journal
		history services.HistoryRepo
	)
	if cfg.Archive.Enabled {
		a, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer a.Close()
		journal, history = a, a
		logger.Info("call archive enabled", slog.String("path", cfg.Archive.Path))
	}

	dispatchers, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, d := range dispatchers {
			if err := d.Close(); err != nil {
				logger.Warn("closing sink failed", slog.Any("error", err))
			}
		}
	}()

	health := api.NewHealthReporter()
	notifiers := notify.Multi{notify.NewConsole(env.out, time.Local), health}
	for _, d := range dispatchers {
		notifiers = append(notifiers, d)
	}

	eng, err := engine.New(engine.Deps{
		Notices:  transport.NewWorker(cfg.Poll.ConnectTimeout, cfg.Poll.TotalTimeout, logger.With(slog.String("worker", "notices"))),
		Trackers: transport.NewWorker(cfg.Poll.ConnectTimeout, cfg.Poll.TotalTimeout, logger.With(slog.String("worker", "trackers"))),
		Parser:   parser.New(logger),
		Registry: registry.New(time.Local),
		Notifier: notifiers,
		Journal:  journal,
		Resolver: resolver,
		Logger:   logger,
	}, engineSettings(cfg))
	if err != nil {
		return err
	}

	service := services.NewControlService(logger, eng, history)
	server, err := api.NewServer(cfg.Server, service, health)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}
	go func() {
		logger.Info("control server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	metricsServer := startMetricsServer(cfg.Server.MetricsAddress, logger, stop)
	go watchReload(ctx, env, eng, logger)

	runErr := eng.Run(ctx)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}

	logger.Info("calladmin-client stopped")
	return runErr
}

// watchReload applies the engine settings of a freshly loaded config on every reload
// signal. A config that fails to load or validate leaves polling untouched.
func watchReload(ctx context.Context, env runEnv, eng *engine.Engine, logger *slog.Logger) {
	if env.reload == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-env.reload:
			cfg, err := config.Load(env.configPath)
			if err == nil {
				err = cfg.RequireAPI()
			}
			if err != nil {
				logger.Error("config reload failed", slog.String("signal", sig.String()), slog.Any("error", err))
				continue
			}
			if err := eng.Reconfigure(ctx, engineSettings(cfg)); err != nil {
				logger.Error("applying reloaded config failed", slog.Any("error", err))
				continue
			}
			logger.Info("config reloaded, polling restarted",
				slog.String("signal", sig.String()),
				slog.Duration("interval", cfg.Poll.Interval),
				slog.Int("max_calls", cfg.Poll.MaxCalls),
			)
		}
	}
}

func startMetricsServer(addr string, logger *slog.Logger, stop context.CancelFunc) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server exited", slog.Any("error", err))
			stop()
		}
	}()
	return srv
}

// openSinks starts a dispatcher for every configured outbound sink.
func openSinks(cfg *config.Config, logger *slog.Logger) ([]*notify.Dispatcher, error) {
	var sinks []notify.Sink
	if len(cfg.Sinks.Kafka.Brokers) > 0 {
		sinks = append(sinks, notify.NewKafkaSink(cfg.Sinks.Kafka.Brokers, cfg.Sinks.Kafka.Topic))
		logger.Info("kafka sink enabled", slog.String("topic", cfg.Sinks.Kafka.Topic))
	}
	if cfg.Sinks.Telegram.Token != "" {
		tg, err := notify.NewTelegramSink(cfg.Sinks.Telegram.Token, cfg.Sinks.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
		logger.Info("telegram sink enabled", slog.Int64("chat_id", cfg.Sinks.Telegram.ChatID))
	}

	dispatchers := make([]*notify.Dispatcher, 0, len(sinks))
	for _, s := range sinks {
		d := notify.NewDispatcher(s, cfg.Sinks.QueueSize, cfg.Sinks.Workers, logger)
		d.Start()
		dispatchers = append(dispatchers, d)
	}
	return dispatchers, nil
}
