package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner bot and CLI.
type Config struct {
	TelegramToken string
	DatabaseURL   string

	Logger   LoggerConfig
	Planner  PlannerConfig
	Schedule ScheduleConfig
	Bot      BotConfig
	Auth     AuthConfig
}

type LoggerConfig struct {
	Level        string
	Mode         string
	Encoding     string
	ColorEnabled bool
}

type PlannerConfig struct {
	SortPreferences []string
	RemoteTimeout   time.Duration
}

type ScheduleConfig struct {
	DigestTime   string
	ReviewDay    time.Weekday
	ReviewTime   string
	SyncInterval time.Duration
}

type BotConfig struct {
	SessionTTL   time.Duration
	SessionLimit int
	SendRate     float64
}

type AuthConfig struct {
	HydrationTimeout time.Duration
}

// Load reads config.yaml (optional) and environment variables with sane defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/weeklyplanner/")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "weekly_planner.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.mode", "production")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.color_enabled", false)

	v.SetDefault("planner.sort_preferences", []string{"meeting", "priority", "order"})
	v.SetDefault("planner.remote_timeout", 10*time.Second)

	v.SetDefault("schedule.digest_time", "08:00")
	v.SetDefault("schedule.review_day", "friday")
	v.SetDefault("schedule.review_time", "20:00")
	v.SetDefault("schedule.sync_interval", 15*time.Minute)

	v.SetDefault("bot.session_ttl", 6*time.Hour)
	v.SetDefault("bot.session_limit", 1000)
	v.SetDefault("bot.send_rate", 20.0)

	v.SetDefault("auth.hydration_timeout", 5*time.Second)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		TelegramToken: strings.TrimSpace(v.GetString("telegram.token")),
		DatabaseURL:   strings.TrimSpace(v.GetString("database.url")),
		Logger: LoggerConfig{
			Level:        v.GetString("logger.level"),
			Mode:         v.GetString("logger.mode"),
			Encoding:     v.GetString("logger.encoding"),
			ColorEnabled: v.GetBool("logger.color_enabled"),
		},
		Planner: PlannerConfig{
			SortPreferences: v.GetStringSlice("planner.sort_preferences"),
			RemoteTimeout:   v.GetDuration("planner.remote_timeout"),
		},
		Schedule: ScheduleConfig{
			DigestTime:   v.GetString("schedule.digest_time"),
			ReviewTime:   v.GetString("schedule.review_time"),
			SyncInterval: v.GetDuration("schedule.sync_interval"),
		},
		Bot: BotConfig{
			SessionTTL:   v.GetDuration("bot.session_ttl"),
			SessionLimit: v.GetInt("bot.session_limit"),
			SendRate:     v.GetFloat64("bot.send_rate"),
		},
		Auth: AuthConfig{
			HydrationTimeout: v.GetDuration("auth.hydration_timeout"),
		},
	}

	day, err := parseWeekday(v.GetString("schedule.review_day"))
	if err != nil {
		return cfg, err
	}
	cfg.Schedule.ReviewDay = day

	if cfg.Bot.SessionLimit <= 0 {
		cfg.Bot.SessionLimit = 1000
	}
	if cfg.Planner.RemoteTimeout <= 0 {
		cfg.Planner.RemoteTimeout = 10 * time.Second
	}

	return cfg, nil
}

// RequireTelegram reports an error when the bot token is missing.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	clean := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if clean == name || clean == name[:3] {
			return d, nil
		}
	}
	return time.Friday, fmt.Errorf("invalid weekday %q", raw)
}
