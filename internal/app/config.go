package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (GROCER_ prefix), a .env file, or YAML config files.
type Config struct {
	Addr           string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string        `env:"DATABASE_URL" usage:"PostgreSQL connection URL (GROCER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DatabaseConns  int32         `default:"0" usage:"Max PostgreSQL connections, 0 keeps the driver default" flag:"database-conns"`
	ImageBaseURL   string        `env:"IMAGE_BASE_URL" default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	JWTSecret      string        `env:"JWT_SECRET" usage:"HS256 secret for bearer tokens (GROCER_JWT_SECRET)" flag:"jwt-secret"`
	APIKeyPepper   string        `env:"API_KEY_PEPPER" usage:"HMAC pepper for API key hashing (GROCER_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RequestTimeout time.Duration `default:"15s" usage:"Per-request deadline, event streams excluded" flag:"request-timeout"`
	Mail           MailConfig
	Events         EventsConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// MailConfig selects the e-mail provider for order notifications.
type MailConfig struct {
	Provider  string        `default:"log" usage:"Mail provider: sendgrid, postmark or log"`
	APIKey    string        `env:"API_KEY" usage:"Provider API key or server token" flag:"mail-api-key"`
	From      string        `default:"orders@krishnamarketing.in" usage:"Sender address"`
	FromName  string        `default:"Krishna Marketing" usage:"Sender name" flag:"mail-from-name"`
	Workers   int           `default:"2" usage:"Concurrent mail senders"`
	QueueSize int           `default:"256" usage:"Pending mail queue length" flag:"mail-queue-size"`
	Timeout   time.Duration `default:"10s" usage:"Timeout of a single send"`
}

// EventsConfig tunes order event streams.
type EventsConfig struct {
	Buffer    int           `default:"16" usage:"Per-subscriber event buffer"`
	Heartbeat time.Duration `default:"25s" usage:"Keep-alive interval of event streams"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"15m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env when present, then loads configuration from the
// environment and YAML config files and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GROCER",
		Files:     []string{"config.yaml", "/etc/grocer/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set GROCER_DATABASE_URL or DATABASE_URL")
	case c.JWTSecret == "":
		return errors.New("JWT secret is required: set GROCER_JWT_SECRET or JWT_SECRET")
	case c.APIKeyPepper == "":
		return errors.New("API key pepper is required: set GROCER_API_KEY_PEPPER")
	}
	switch c.Mail.Provider {
	case "log":
	case "sendgrid", "postmark":
		if c.Mail.APIKey == "" {
			return errors.Errorf("mail provider %q needs GROCER_MAIL_API_KEY", c.Mail.Provider)
		}
	default:
		return errors.Errorf("unknown mail provider %q", c.Mail.Provider)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's GROCER_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.JWTSecret == "" {
		c.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
