package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	MetricsPort string `env:"METRICS_PORT" default:"9091"`
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// TrialMode announces award decisions without touching roles or flags.
	TrialMode bool `env:"TRIAL_MODE" default:"false"`

	MessageAwardThreshold        int `env:"MESSAGE_AWARD_THRESHOLD" default:"560"`
	TimeAwardThreshold           int `env:"TIME_AWARD_THRESHOLD" default:"14"`
	TimeTrackingMessageThreshold int `env:"TIME_TRACKING_MESSAGE_THRESHOLD" default:"280"`
	MessageDecayMagnitude        int `env:"MESSAGE_DECAY_MAGNITUDE" default:"28"`

	MessageTimeout  time.Duration `env:"MESSAGE_TIMEOUT" default:"30s"`
	FlushPeriod     time.Duration `env:"FLUSH_PERIOD" default:"10s"`
	TimeTickPeriod  time.Duration `env:"TIME_TICK_PERIOD" default:"3h"`
	DecayPeriod     time.Duration `env:"DECAY_PERIOD" default:"24h"`
	VoiceTickPeriod time.Duration `env:"VOICE_TICK_PERIOD" default:"24h"`

	WarnDelayPeriods int `env:"WARN_DELAY_PERIODS" default:"1"`
	MuteDelayPeriods int `env:"MUTE_DELAY_PERIODS" default:"8"`
	BanDelayPeriods  int `env:"BAN_DELAY_PERIODS" default:"56"`

	VoiceWeekThreshold  time.Duration `env:"VOICE_WEEK_THRESHOLD" default:"10h"`
	VoiceMonthThreshold time.Duration `env:"VOICE_MONTH_THRESHOLD" default:"30h"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	if cfg.MessageAwardThreshold <= 0 {
		return errors.New("MESSAGE_AWARD_THRESHOLD must be positive")
	}
	if cfg.TimeAwardThreshold <= 0 {
		return errors.New("TIME_AWARD_THRESHOLD must be positive")
	}
	if cfg.TimeTrackingMessageThreshold >= cfg.MessageAwardThreshold {
		return fmt.Errorf("TIME_TRACKING_MESSAGE_THRESHOLD (%d) must be below MESSAGE_AWARD_THRESHOLD (%d)",
			cfg.TimeTrackingMessageThreshold, cfg.MessageAwardThreshold)
	}
	if cfg.MessageDecayMagnitude <= 0 {
		return errors.New("MESSAGE_DECAY_MAGNITUDE must be positive")
	}

	for name, d := range map[string]time.Duration{
		"MESSAGE_TIMEOUT":   cfg.MessageTimeout,
		"FLUSH_PERIOD":      cfg.FlushPeriod,
		"TIME_TICK_PERIOD":  cfg.TimeTickPeriod,
		"DECAY_PERIOD":      cfg.DecayPeriod,
		"VOICE_TICK_PERIOD": cfg.VoiceTickPeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}
