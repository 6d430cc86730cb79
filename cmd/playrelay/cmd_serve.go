package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/user/playrelay/internal/autopost"
	"github.com/user/playrelay/internal/bot"
	"github.com/user/playrelay/internal/config"
	"github.com/user/playrelay/internal/destination"
	"github.com/user/playrelay/internal/gateway"
	"github.com/user/playrelay/internal/link"
	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/metrics"
	"github.com/user/playrelay/internal/publish"
	"github.com/user/playrelay/internal/scheduler"
	"github.com/user/playrelay/internal/session"
	"github.com/user/playrelay/internal/telegram"
	"github.com/user/playrelay/internal/types"
	"github.com/user/playrelay/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// relayStats feeds the health endpoint.
type relayStats struct {
	sessions *session.Store
	registry *destination.Registry
}

func (s relayStats) ActiveSessions() int { return s.sessions.Len() }
func (s relayStats) Destinations() int   { return s.registry.Len() }

// newEngine builds the publish engine shared by the daemon and one-off
// commands.
func newEngine(cfg *config.Config, pub publish.Publisher, registry *destination.Registry) *publish.Engine {
	return publish.New(pub, registry, publish.NewCapability(),
		publish.WithDelay(cfg.Publish.Delay),
		publish.WithCaption(cfg.Player.Caption),
		publish.WithButtonText(cfg.Player.ButtonText),
	)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	log := xlog.WithComponent("serve")

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pid := daemonPIDFile(cfg.DataDir)
	if proc, err := pid.running(); err == nil && proc.Pid != os.Getpid() {
		return fmt.Errorf("playrelay already running (PID %d)", proc.Pid)
	}
	if err := pid.write(); err != nil {
		return err
	}
	defer pid.remove()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	normalizer := link.New(cfg.Player.URL)
	sessions := session.NewStore(normalizer)
	registry := cfg.Registry()
	if registry.Len() == 0 {
		log.Warn().Msg("no destinations configured; /post and /postall will refuse")
	}

	// The gateway and the adapter reference each other through the
	// processor, which is attached once the handler exists.
	gw := gateway.New(nil, int64(cfg.MaxConcurrent))
	adapter, err := telegram.New(cfg.Telegram.Token, gw, telegram.Options{})
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	engine := newEngine(cfg, adapter, registry)
	broadcaster := publish.NewBroadcaster(ctx, engine, int64(cfg.Publish.MaxBroadcasts))

	var poster *autopost.Poster
	var autoPoster bot.AutoPoster
	if cfg.Autopost.ContentRoot != "" {
		poster = autopost.NewPoster(cfg.Autopost.ContentRoot, engine, normalizer)
		autoPoster = poster
	}

	handler := bot.New(adapter, sessions, engine, broadcaster, autoPoster, bot.Options{
		AdminID:           cfg.Telegram.AdminID,
		ClearAfterPublish: cfg.Publish.ClearAfterPublish,
	})
	gw.Queue.SetProcessor(handler.Process)
	gw.Start(ctx)

	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.TTL)
	if err := metrics.RegisterSessionGauge(prometheus.DefaultRegisterer, func() float64 {
		return float64(sessions.Len())
	}); err != nil {
		log.Warn().Err(err).Msg("session gauge not registered")
	}

	var sched *scheduler.Scheduler
	if poster != nil {
		sched = scheduler.New(cfg.Schedules(), func(id types.DestinationID) bool {
			_, ok := registry.Get(id)
			return ok
		}, func(ctx context.Context, dest types.DestinationID) {
			if _, err := poster.Run(ctx, dest); err != nil {
				log.Warn().Err(err).Str("destination", string(dest)).Msg("scheduled autopost")
			}
		})
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else if len(cfg.Autopost.Schedules) > 0 {
		log.Warn().Msg("autopost schedules ignored: no content root configured")
	}

	srv := webhook.NewServer(adapter, relayStats{sessions: sessions, registry: registry}, webhook.Config{
		Secret:    cfg.Telegram.WebhookSecret,
		StaticDir: cfg.HTTP.StaticDir,
		RateLimit: cfg.HTTP.RateLimit,
	})
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.Listen()); err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	if cfg.Telegram.WebhookURL != "" {
		if err := adapter.RegisterWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			log.Error().Err(err).Msg("webhook registration failed; updates will not arrive until it succeeds")
		}
	} else {
		go func() {
			if err := adapter.Poll(ctx); err != nil {
				log.Error().Err(err).Msg("polling stopped")
			}
		}()
	}

	log.Info().
		Str("bot", adapter.Username()).
		Int("destinations", registry.Len()).
		Str("listen", cfg.Listen()).
		Bool("webhook", cfg.Telegram.WebhookURL != "").
		Bool("autopost", poster != nil).
		Str("pid_file", string(pid)).
		Msg("playrelay started")

	shutdown := func() {
		cancel()
		if sched != nil {
			sched.Stop()
		}
		gw.Stop()
		broadcaster.Wait()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			log.Info().Msg("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				log.Error().Err(err).Msg("failed to get executable path")
				continue
			}
			shutdown()
			pid.remove()
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				return fmt.Errorf("re-exec: %w", err)
			}
		}
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdown()
		return nil
	}
}
