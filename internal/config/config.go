package config

import (
	"os"
	"strings"
	"time"

	"github.com/interactive-solutions/go-intake"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type AppEnv string

const (
	ProductionEnv AppEnv = "production"
	DevelopEnv    AppEnv = "develop"
	LocalEnv      AppEnv = "local"
	TestEnv       AppEnv = "test"
)

type (
	Config struct {
		AppEnv   AppEnv
		LogLevel logrus.Level
		HTTP     HTTP
		Webhook  Webhook
		Relay    Relay
		Limit    Limit
		Redis    Redis
		Database Database
		Notify   Notify
	}

	HTTP struct {
		Port       int
		Origins    []string
		TrustProxy bool
	}

	Webhook struct {
		CallbackURL string
		ProjectURL  string
	}

	Relay struct {
		Attempts int
		Backoff  time.Duration
		Timeout  time.Duration
	}

	Limit struct {
		Max    int
		Window time.Duration
	}

	Redis struct {
		URL string
	}

	Database struct {
		URL string
	}

	Notify struct {
		Provider string
		To       string
		From     string

		AwsRegion     string
		MailgunDomain string
		MailgunApiKey string
	}
)

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, errors.Wrap(err, "config : failed to read .env")
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", string(DevelopEnv))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 3001)
	v.SetDefault("CORS_ORIGINS", strings.Join(intake.DefaultAllowedOrigins, ","))
	v.SetDefault("TRUST_PROXY", true)
	v.SetDefault("RELAY_ATTEMPTS", 3)
	v.SetDefault("RELAY_BACKOFF", "5s")
	v.SetDefault("RELAY_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_MAX", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")

	level, err := logrus.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return nil, errors.Wrap(err, "config : invalid LOG_LEVEL")
	}

	cfg := &Config{
		AppEnv:   AppEnv(v.GetString("APP_ENV")),
		LogLevel: level,
		HTTP: HTTP{
			Port:       v.GetInt("PORT"),
			Origins:    splitList(v.GetString("CORS_ORIGINS")),
			TrustProxy: v.GetBool("TRUST_PROXY"),
		},
		Webhook: Webhook{
			CallbackURL: v.GetString("CALLBACK_WEBHOOK_URL"),
			ProjectURL:  v.GetString("PROJECT_WEBHOOK_URL"),
		},
		Relay: Relay{
			Attempts: v.GetInt("RELAY_ATTEMPTS"),
			Backoff:  v.GetDuration("RELAY_BACKOFF"),
			Timeout:  v.GetDuration("RELAY_TIMEOUT"),
		},
		Limit: Limit{
			Max:    v.GetInt("RATE_LIMIT_MAX"),
			Window: v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Redis: Redis{
			URL: v.GetString("REDIS_URL"),
		},
		Database: Database{
			URL: v.GetString("DATABASE_URL"),
		},
		Notify: Notify{
			Provider:      strings.ToLower(v.GetString("NOTIFY_PROVIDER")),
			To:            v.GetString("NOTIFY_TO"),
			From:          v.GetString("NOTIFY_FROM"),
			AwsRegion:     v.GetString("AWS_REGION"),
			MailgunDomain: v.GetString("MAILGUN_DOMAIN"),
			MailgunApiKey: v.GetString("MAILGUN_API_KEY"),
		},
	}

	return cfg, nil
}

// Validate checks what the serve command cannot run without.
func (c *Config) Validate() error {
	if c.Webhook.CallbackURL == "" {
		return errors.New("config : CALLBACK_WEBHOOK_URL is required")
	}

	if c.Webhook.ProjectURL == "" {
		return errors.New("config : PROJECT_WEBHOOK_URL is required")
	}

	if c.Relay.Attempts < 1 {
		return errors.Errorf("config : RELAY_ATTEMPTS must be at least 1, got %d", c.Relay.Attempts)
	}

	if c.Limit.Max < 1 || c.Limit.Window <= 0 {
		return errors.New("config : RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}

	switch c.Notify.Provider {
	case "":
	case "ses", "mailgun":
		if c.Notify.To == "" || c.Notify.From == "" {
			return errors.New("config : NOTIFY_TO and NOTIFY_FROM are required with NOTIFY_PROVIDER")
		}
	default:
		return errors.Errorf("config : NOTIFY_PROVIDER %q is not supported", c.Notify.Provider)
	}

	return nil
}

func splitList(value string) []string {
	var items []string

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

func isNotExist(err error) bool {
	return os.IsNotExist(errors.Cause(err))
}
