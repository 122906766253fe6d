package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/plantops/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	PublicURL        string
	AuthCookieSecure bool
	MigrateOnStart   bool

	OTLPEndpoint string
	SentryDSN    string

	// PlatformAdminBypassEnabled lets platform admins skip seat checks.
	PlatformAdminBypassEnabled bool

	DB         db.Config
	Redis      RedisConfig
	Stripe     StripeConfig
	Email      EmailConfig
	Trial      TrialConfig
	Invitation InvitationConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type StripeConfig struct {
	SecretKey          string
	WebhookSecret      string
	ManagerSeatPriceID string
	TechSeatPriceID    string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type TrialConfig struct {
	Duration     time.Duration
	ManagerSeats int
	TechSeats    int
}

type InvitationConfig struct {
	TTL           time.Duration
	RatePerMinute float64
	Burst         int
	SweepSpec     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:                    getenv("APP_SERVICE", "plantops"),
		AppVersion:                 getenv("APP_VERSION", "0.1.0"),
		Environment:                environment,
		HTTPAddr:                   getenv("HTTP_ADDR", ":8080"),
		PublicURL:                  strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:5173"), "/"),
		AuthCookieSecure:           authCookieSecure,
		MigrateOnStart:             getenvBool("MIGRATE_ON_START", true),
		OTLPEndpoint:               getenv("OTLP_ENDPOINT", "localhost:4317"),
		SentryDSN:                  strings.TrimSpace(getenv("SENTRY_DSN", "")),
		PlatformAdminBypassEnabled: getenvBool("PLATFORM_ADMIN_BYPASS_ENABLED", true),
		DB: db.Config{
			Type:            getenv("DATABASE_TYPE", "postgres"),
			URL:             strings.TrimSpace(getenv("DATABASE_URL", "")),
			Host:            getenv("DATABASE_HOST", "localhost"),
			Port:            getenv("DATABASE_PORT", "5432"),
			Name:            getenv("DATABASE_NAME", "plantops"),
			User:            getenv("DATABASE_USER", "postgres"),
			Password:        getenv("DATABASE_PASSWORD", ""),
			SSLMode:         getenv("DATABASE_SSLMODE", "disable"),
			MaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
			MaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
			ConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getenvDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SlowThreshold:   getenvDuration("DATABASE_SLOW_THRESHOLD", 200*time.Millisecond),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Stripe: StripeConfig{
			SecretKey:          strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:      strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			ManagerSeatPriceID: strings.TrimSpace(getenv("STRIPE_MANAGER_SEAT_PRICE_ID", "")),
			TechSeatPriceID:    strings.TrimSpace(getenv("STRIPE_TECH_SEAT_PRICE_ID", "")),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@plantops.local"),
		},
		Trial: TrialConfig{
			Duration:     getenvDuration("TRIAL_DURATION", 14*24*time.Hour),
			ManagerSeats: getenvInt("TRIAL_MANAGER_SEATS", 2),
			TechSeats:    getenvInt("TRIAL_TECH_SEATS", 5),
		},
		Invitation: InvitationConfig{
			TTL:           getenvDuration("INVITATION_TTL", 7*24*time.Hour),
			RatePerMinute: getenvFloat("INVITATION_RATE_PER_MINUTE", 10),
			Burst:         getenvInt("INVITATION_BURST", 20),
			SweepSpec:     getenv("INVITATION_SWEEP_SPEC", "@every 15m"),
		},
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
