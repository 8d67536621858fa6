package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetDurationEnv parses values such as "30s" or "1h".
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Nats     NatsConfig
	Auth     AuthConfig
	Payments PaymentsConfig
	Payouts  PayoutsConfig
	Crypto   CryptoConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	Port        string
	Env         string
	LogFile     string
	CORSOrigins string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host       string
	Port       string
	Password   string
	DB         int
	BalanceTTL time.Duration
}

type NatsConfig struct {
	URL     string
	Enabled bool
}

type AuthConfig struct {
	JWTSecret string
}

type PaymentsConfig struct {
	WebhookSecret string
	Gateway       string
}

type PayoutsConfig struct {
	StripeKey     string
	WebhookSecret string
	Timeout       time.Duration
	StaleAfter    time.Duration
	MaxRetries    int
}

type CryptoConfig struct {
	// BankAccountKey is a 32 byte key, hex encoded.
	BankAccountKey string
}

type JobsConfig struct {
	ReferralSweep  string
	PayoutSweep    string
	ReconcileSweep string
}

func Load() *Config {
	return &Config{
		App: AppConfig{
			Port:        GetEnv("PORT", "3000"),
			Env:         GetEnv("ENV", "development"),
			LogFile:     GetEnv("LOG_FILE", "logs/sayan.log"),
			CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		},
		Database: DatabaseConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "sayan"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:       GetEnv("REDIS_HOST", "localhost"),
			Port:       GetEnv("REDIS_PORT", "6379"),
			Password:   GetEnv("REDIS_PASSWORD", ""),
			DB:         GetIntEnv("REDIS_DB", 0),
			BalanceTTL: GetDurationEnv("REDIS_BALANCE_TTL", 5*time.Minute),
		},
		Nats: NatsConfig{
			URL:     GetEnv("NATS_URL", "nats://localhost:4222"),
			Enabled: GetBoolEnv("NATS_ENABLED", true),
		},
		Auth: AuthConfig{
			JWTSecret: GetEnv("JWT_SECRET", "sayan"),
		},
		Payments: PaymentsConfig{
			WebhookSecret: GetEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Gateway:       GetEnv("PAYMENT_GATEWAY", "moyasar"),
		},
		Payouts: PayoutsConfig{
			StripeKey:     GetEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: GetEnv("PAYOUT_WEBHOOK_SECRET", ""),
			Timeout:       GetDurationEnv("PAYOUT_TIMEOUT", 30*time.Second),
			StaleAfter:    GetDurationEnv("PAYOUT_STALE_AFTER", 15*time.Minute),
			MaxRetries:    GetIntEnv("PAYOUT_MAX_NETWORK_RETRIES", 2),
		},
		Crypto: CryptoConfig{
			BankAccountKey: GetEnv("BANK_ACCOUNT_KEY", ""),
		},
		Jobs: JobsConfig{
			ReferralSweep:  GetEnv("CRON_REFERRAL_SWEEP", "*/10 * * * *"),
			PayoutSweep:    GetEnv("CRON_PAYOUT_SWEEP", "*/5 * * * *"),
			ReconcileSweep: GetEnv("CRON_RECONCILE_SWEEP", "0 3 * * *"),
		},
	}
}

// Validate reports settings the server must not run without. Webhook
// secrets are mandatory in production; elsewhere unsigned deliveries are
// simply rejected.
func (c *Config) Validate() error {
	if c.App.Env != "production" {
		return nil
	}
	var errs []error
	if c.Payments.WebhookSecret == "" {
		errs = append(errs, errors.New("PAYMENT_WEBHOOK_SECRET is required in production"))
	}
	if c.Payouts.WebhookSecret == "" {
		errs = append(errs, errors.New("PAYOUT_WEBHOOK_SECRET is required in production"))
	}
	return errors.Join(errs...)
}
