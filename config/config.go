package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	TransportSlack   = "slack"
	TransportDiscord = "discord"
)

type Config struct {
	viper *viper.Viper
}

func (c *Config) GetTransport() string {
	return strings.ToLower(c.viper.GetString("transport"))
}

func (c *Config) GetSlackToken() string {
	return c.viper.GetString("slack.token")
}

func (c *Config) GetSlackSigningSecret() string {
	return c.viper.GetString("slack.signing_secret")
}

func (c *Config) GetDiscordToken() string {
	return c.viper.GetString("discord.token")
}

func (c *Config) GetDiscordGuildID() string {
	return c.viper.GetString("discord.guild_id")
}

func (c *Config) GetDBDriver() string {
	return c.viper.GetString("db.driver")
}

func (c *Config) GetDBUsername() string {
	return c.viper.GetString("db.username")
}

func (c *Config) GetDBPassword() string {
	return c.viper.GetString("db.password")
}

func (c *Config) GetDBName() string {
	return c.viper.GetString("db.name")
}

func (c *Config) GetDBHost() string {
	return c.viper.GetString("db.host")
}

// GetDBDSN overrides the dsn built from the other db settings.
func (c *Config) GetDBDSN() string {
	return c.viper.GetString("db.dsn")
}

func (c *Config) GetRedisURL() string {
	return c.viper.GetString("redis.url")
}

func (c *Config) GetHTTPAddr() string {
	return c.viper.GetString("http.addr")
}

// GetBotURL is the base of deep links, e.g. https://slack.com/app_redirect?app=A1&start=
func (c *Config) GetBotURL() string {
	return c.viper.GetString("bot.url")
}

func (c *Config) GetDefaultLocale() string {
	return c.viper.GetString("bot.locale")
}

func (c *Config) GetDailyVoteCap() int {
	return c.viper.GetInt("bot.daily_vote_cap")
}

func (c *Config) GetDrainInterval() time.Duration {
	return c.viper.GetDuration("worker.drain_interval")
}

func (c *Config) GetPruneInterval() time.Duration {
	return c.viper.GetDuration("worker.prune_interval")
}

func (c *Config) GetTicketMaxAge() time.Duration {
	return c.viper.GetDuration("worker.ticket_max_age")
}

func (c *Config) GetNotificationInterval() time.Duration {
	return c.viper.GetDuration("worker.notification_interval")
}

func (c *Config) GetRetryMargin() time.Duration {
	return c.viper.GetDuration("scheduler.retry_margin")
}

func (c *Config) GetInvalidRetryDelay() time.Duration {
	return c.viper.GetDuration("scheduler.invalid_retry_delay")
}

func (c *Config) GetTransportTimeout() time.Duration {
	return c.viper.GetDuration("scheduler.transport_timeout")
}

// Validate checks that the selected transport and store can be reached with
// the configured credentials.
func (c *Config) Validate() error {
	var errs []error

	switch c.GetTransport() {
	case TransportSlack:
		if c.GetSlackToken() == "" {
			errs = append(errs, errors.New("slack.token is required"))
		}
		if c.GetSlackSigningSecret() == "" {
			errs = append(errs, errors.New("slack.signing_secret is required"))
		}
	case TransportDiscord:
		if c.GetDiscordToken() == "" {
			errs = append(errs, errors.New("discord.token is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.GetTransport()))
	}

	switch c.GetDBDriver() {
	case "mysql", "postgres":
		if c.GetDBDSN() == "" && c.GetDBName() == "" {
			errs = append(errs, errors.New("db.name or db.dsn is required"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.GetDBDriver()))
	}

	if c.GetDailyVoteCap() < 0 {
		errs = append(errs, errors.New("bot.daily_vote_cap must not be negative"))
	}

	return errors.Join(errs...)
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	config := Config{
		viper: v,
	}

	v.SetEnvPrefix("PAUL")

	_ = v.BindEnv("transport", "PAUL_TRANSPORT")

	_ = v.BindEnv("slack.token", "PAUL_SLACK_TOKEN")
	_ = v.BindEnv("slack.signing_secret", "PAUL_SLACK_SIGNING_SECRET")

	_ = v.BindEnv("discord.token", "PAUL_DISCORD_TOKEN")
	_ = v.BindEnv("discord.guild_id", "PAUL_DISCORD_GUILD_ID")

	_ = v.BindEnv("db.driver", "PAUL_DB_DRIVER")
	_ = v.BindEnv("db.username", "PAUL_DB_USERNAME")
	_ = v.BindEnv("db.password", "PAUL_DB_PASSWORD")
	_ = v.BindEnv("db.name", "PAUL_DB_NAME")
	_ = v.BindEnv("db.host", "PAUL_DB_HOST")
	_ = v.BindEnv("db.dsn", "PAUL_DB_DSN")

	_ = v.BindEnv("redis.url", "PAUL_REDIS_URL")
	_ = v.BindEnv("http.addr", "PAUL_HTTP_ADDR", "PORT")

	_ = v.BindEnv("bot.url", "PAUL_BOT_URL")
	_ = v.BindEnv("bot.locale", "PAUL_BOT_LOCALE")
	_ = v.BindEnv("bot.daily_vote_cap", "PAUL_DAILY_VOTE_CAP")

	_ = v.BindEnv("worker.drain_interval", "PAUL_DRAIN_INTERVAL")
	_ = v.BindEnv("worker.prune_interval", "PAUL_PRUNE_INTERVAL")
	_ = v.BindEnv("worker.ticket_max_age", "PAUL_TICKET_MAX_AGE")
	_ = v.BindEnv("worker.notification_interval", "PAUL_NOTIFICATION_INTERVAL")

	_ = v.BindEnv("scheduler.retry_margin", "PAUL_RETRY_MARGIN")
	_ = v.BindEnv("scheduler.invalid_retry_delay", "PAUL_INVALID_RETRY_DELAY")
	_ = v.BindEnv("scheduler.transport_timeout", "PAUL_TRANSPORT_TIMEOUT")

	v.SetDefault("transport", TransportSlack)
	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.host", "tcp(127.0.0.1:3306)")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("bot.locale", "en")
	v.SetDefault("bot.daily_vote_cap", 2000)
	v.SetDefault("worker.drain_interval", time.Second)
	v.SetDefault("worker.prune_interval", 8*time.Hour)
	v.SetDefault("worker.ticket_max_age", 72*time.Hour)
	v.SetDefault("worker.notification_interval", time.Minute)
	v.SetDefault("scheduler.retry_margin", time.Second)
	v.SetDefault("scheduler.invalid_retry_delay", 5*time.Second)
	v.SetDefault("scheduler.transport_timeout", 10*time.Second)

	v.SetConfigName("paul")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return &config, nil
}
