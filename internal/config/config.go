package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates everything the payment service reads at boot.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	PayOS    PayOSConfig
	Payment  PaymentConfig
	Logging  LoggingConfig
	SMTP     SMTPConfig
	JWT      JWTConfig
}

type HTTPConfig struct {
	Port      string
	APIPrefix string
}

type DatabaseConfig struct {
	URL string
}

// RedisConfig is optional; an empty Addr disables cross-instance sweep locking
// and real-time notifications.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PayOSConfig struct {
	ClientID    string
	ApiKey      string
	ChecksumKey string
	ReturnURL   string
	CancelURL   string
	Timeout     time.Duration
}

type PaymentConfig struct {
	PendingTimeout    time.Duration
	SchedulerInterval time.Duration
	SweepBatchSize    int
	SweepWorkers      int
}

type LoggingConfig struct {
	Level  string
	Format string // json|console
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type JWTConfig struct {
	Secret string
}

const (
	defaultPort                  = "8080"
	defaultAPIPrefix             = "/api/v1"
	defaultGatewayTimeout        = 10 * time.Second
	defaultPendingTimeoutMinutes = 15
	defaultSchedulerInterval     = 2 * time.Minute
	defaultSweepBatchSize        = 100
	defaultSweepWorkers          = 4
	defaultLogLevel              = "info"
	defaultLogFormat             = "json"
	defaultSMTPPort              = 587
)

// Load reads .env (when present), the optional YAML file at path and the
// process environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Port:      v.GetString("PORT"),
			APIPrefix: v.GetString("API_PREFIX"),
		},
		Database: DatabaseConfig{URL: v.GetString("POSTGRES_URL")},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		PayOS: PayOSConfig{
			ClientID:    v.GetString("PAYOS_CLIENT_ID"),
			ApiKey:      v.GetString("PAYOS_API_KEY"),
			ChecksumKey: v.GetString("PAYOS_CHECKSUM_KEY"),
			ReturnURL:   v.GetString("PAYOS_RETURN_URL"),
			CancelURL:   v.GetString("PAYOS_CANCEL_URL"),
			Timeout:     v.GetDuration("GATEWAY_TIMEOUT"),
		},
		Payment: PaymentConfig{
			PendingTimeout:    time.Duration(v.GetInt("PAYMENT_PENDING_TIMEOUT_MINUTES")) * time.Minute,
			SchedulerInterval: v.GetDuration("PAYMENT_SCHEDULER_INTERVAL"),
			SweepBatchSize:    v.GetInt("PAYMENT_SWEEP_BATCH_SIZE"),
			SweepWorkers:      v.GetInt("PAYMENT_SWEEP_WORKERS"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		JWT: JWTConfig{Secret: v.GetString("JWT_SECRET")},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("API_PREFIX", defaultAPIPrefix)
	v.SetDefault("GATEWAY_TIMEOUT", defaultGatewayTimeout)
	v.SetDefault("PAYMENT_PENDING_TIMEOUT_MINUTES", defaultPendingTimeoutMinutes)
	v.SetDefault("PAYMENT_SCHEDULER_INTERVAL", defaultSchedulerInterval)
	v.SetDefault("PAYMENT_SWEEP_BATCH_SIZE", defaultSweepBatchSize)
	v.SetDefault("PAYMENT_SWEEP_WORKERS", defaultSweepWorkers)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("LOG_FORMAT", defaultLogFormat)
	v.SetDefault("SMTP_PORT", defaultSMTPPort)
	v.SetDefault("REDIS_DB", 0)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"POSTGRES_URL", "JWT_SECRET", "REDIS_ADDR", "REDIS_PASSWORD",
		"PAYOS_CLIENT_ID", "PAYOS_API_KEY", "PAYOS_CHECKSUM_KEY", "PAYOS_RETURN_URL", "PAYOS_CANCEL_URL",
		"SMTP_HOST", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	} {
		v.SetDefault(key, "")
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.PayOS.ChecksumKey == "" {
		errs = append(errs, errors.New("PAYOS_CHECKSUM_KEY is required"))
	}
	if c.PayOS.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if c.Payment.PendingTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_PENDING_TIMEOUT_MINUTES must be positive"))
	}
	if c.Payment.SchedulerInterval <= 0 {
		errs = append(errs, errors.New("PAYMENT_SCHEDULER_INTERVAL must be positive"))
	}
	if c.Payment.SweepBatchSize <= 0 {
		errs = append(errs, errors.New("PAYMENT_SWEEP_BATCH_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
