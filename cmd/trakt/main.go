package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/owdiscord/trakt/internal/app"
	"github.com/owdiscord/trakt/internal/config"
	"github.com/owdiscord/trakt/internal/database"
	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/engine"
	"github.com/owdiscord/trakt/internal/follow"
	"github.com/owdiscord/trakt/internal/logging"
	"github.com/owdiscord/trakt/internal/platform/retry"
	"github.com/owdiscord/trakt/internal/platform/version"
	"github.com/owdiscord/trakt/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Database connect failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	pool, err := retry.Do(ctx, policy,
		func(error) retry.Action { return retry.Retry },
		func() (*pgxpool.Pool, error) { return database.Connect(ctx, cfg.DatabaseURL) },
	)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// logGateway stands in for the chat gateway's role and notification adapters
// until the gateway layer wires real ones. It only logs, so it is safe in
// trial mode and local runs.
type logGateway struct{}

func (logGateway) GrantRole(_ context.Context, id domain.UserID, reason string) error {
	slog.Info("Role grant requested", "user_id", uint64(id), "reason", reason)
	return nil
}

func (logGateway) RevokeRole(_ context.Context, id domain.UserID, reason string) error {
	slog.Info("Role revoke requested", "user_id", uint64(id), "reason", reason)
	return nil
}

func (logGateway) AnnounceAward(_ context.Context, id domain.UserID, msg string) error {
	slog.Info("Award announcement", "user_id", uint64(id), "message", msg)
	return nil
}

func (logGateway) NotifyFollow(_ context.Context, owner, target domain.UserID, event domain.EventContext) error {
	slog.Info("Follow alert",
		"owner", uint64(owner), "target", uint64(target),
		"guild_id", event.GuildID, "channel_id", event.ChannelID, "message_id", event.MessageID)
	return nil
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("Tracker starting",
		"env", cfg.AppEnv, "trial_mode", cfg.TrialMode,
		"version", build.Version, "commit", build.Commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := setupDB(ctx, cfg)
	defer pool.Close()

	thresholds := database.Thresholds{
		MessageAward:        cfg.MessageAwardThreshold,
		TimeAward:           cfg.TimeAwardThreshold,
		TimeTrackingMessage: cfg.TimeTrackingMessageThreshold,
		DecayMagnitude:      cfg.MessageDecayMagnitude,
		TimeTickPeriod:      cfg.TimeTickPeriod,
	}
	users := database.NewUserRepo(pool, thresholds)
	voice := database.NewVoiceRepo(pool, database.VoiceThresholds{
		Week:  cfg.VoiceWeekThreshold,
		Month: cfg.VoiceMonthThreshold,
	})
	follows := database.NewFollowRepo(pool)

	if err := users.StartupSanityCheck(ctx); err != nil {
		slog.Error("Startup sanity check failed", "error", err)
		os.Exit(1)
	}

	gateway := logGateway{}

	cache := engine.NewCache(users, clock, cfg.MessageTimeout, cfg.MessageAwardThreshold)
	if err := cache.Start(ctx); err != nil {
		slog.Error("Failed to start progress cache", "error", err)
		os.Exit(1)
	}

	awards := app.NewAwardCoordinator(users, voice, gateway, gateway, cache, cfg.TrialMode)

	scheduler := app.NewScheduler(cache, users, voice, awards, clock, app.Periods{
		Flush:     cfg.FlushPeriod,
		TimeTick:  cfg.TimeTickPeriod,
		DecayTick: cfg.DecayPeriod,
		VoiceTick: cfg.VoiceTickPeriod,
	}, cfg.MessageDecayMagnitude)
	scheduler.Start(ctx)

	sanctions := app.NewSanctionProcessor(users, app.DelayPeriods{
		Warn: cfg.WarnDelayPeriods,
		Mute: cfg.MuteDelayPeriods,
		Ban:  cfg.BanDelayPeriods,
	})
	sanctions.Start()

	throttle := follow.NewThrottle(follows, gateway, clock)
	if err := throttle.Start(ctx); err != nil {
		slog.Error("Failed to load follow rules", "error", err)
		os.Exit(1)
	}

	voiceTracker := app.NewVoiceTracker(voice, clock)

	// The gateway layer (connection, event decoding, commands) plugs into this
	// service; it is the whole externally callable surface.
	service := app.NewService(cache, users, throttle, sanctions, voiceTracker)

	opsSrv := server.NewServer(pool, service)
	go func() {
		if err := opsSrv.Start(cfg.MetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops server failed", "error", err)
		}
	}()
	slog.Info("Collection started", "ops_port", cfg.MetricsPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("Shutdown signal received, cleaning up...")

	// Stop scheduling first so no new ticks start, then drain the queues.
	scheduler.Stop()
	sanctions.Stop()
	cache.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Ops server shutdown error", "error", err)
	}
}
