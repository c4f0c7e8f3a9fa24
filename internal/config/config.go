package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Gateway   GatewayConfig
	Secrets   SecretsConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
	AutoMigrate bool
}

type RedisConfig struct {
	Enabled      bool
	Address      string
	Password     string
	DB           int
	TTL          time.Duration
	BurstLockTTL time.Duration
}

type SchedulerConfig struct {
	Interval  time.Duration
	AutoStart bool
}

type GatewayConfig struct {
	BaseURL            string
	BurstSendTimeout   time.Duration
	InboundSendTimeout time.Duration
	ContentMax         int
}

// SecretsConfig selects where the gateway API key comes from: AWS Secrets
// Manager when SecretID is set, the plain APIKey otherwise.
type SecretsConfig struct {
	SecretID string
	Region   string
	APIKey   string
	TTL      time.Duration
}

type AuthConfig struct {
	InternalToken string
}

// LoadAll reads the whole configuration from the environment and reports
// every problem at once.
func LoadAll() (*Config, error) {
	var errs []error

	str := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	flag := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	seconds := func(key string, def int) time.Duration {
		return time.Duration(num(key, def)) * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: str("POSTGRES_URL"),
			AutoMigrate: flag("DB_AUTO_MIGRATE", false),
		},
		Scheduler: SchedulerConfig{
			Interval:  seconds("SCHED_INTERVAL_SECONDS", 120),
			AutoStart: flag("SCHED_AUTOSTART", false),
		},
		Gateway: GatewayConfig{
			BaseURL:            getEnv("TELNYX_BASE_URL", "https://api.telnyx.com/v2/messages"),
			BurstSendTimeout:   seconds("BURST_SEND_TIMEOUT_SECONDS", 20),
			InboundSendTimeout: seconds("INBOUND_SEND_TIMEOUT_SECONDS", 15),
			ContentMax:         num("CONTENT_MAX", 1600),
		},
		Secrets: SecretsConfig{
			SecretID: os.Getenv("TELNYX_SECRET_ID"),
			Region:   getEnv("AWS_REGION", "us-east-1"),
			APIKey:   os.Getenv("TELNYX_API_KEY"),
			TTL:      seconds("SECRET_TTL_SECONDS", 60),
		},
		Auth: AuthConfig{
			InternalToken: str("INTERNAL_GATEWAY_TOKEN"),
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis = RedisConfig{
			Enabled:      true,
			Address:      addr,
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           num("REDIS_DB", 0),
			TTL:          seconds("REDIS_TTL_SECONDS", 86400),
			BurstLockTTL: seconds("BURST_LOCK_TTL_SECONDS", 900),
		}
	}

	if len(errs) == 0 {
		errs = append(errs, validate(cfg)...)
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) []error {
	var errs []error
	positive := func(key string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}

	positive("SCHED_INTERVAL_SECONDS", cfg.Scheduler.Interval > 0)
	positive("CONTENT_MAX", cfg.Gateway.ContentMax > 0)
	positive("BURST_SEND_TIMEOUT_SECONDS", cfg.Gateway.BurstSendTimeout > 0)
	positive("INBOUND_SEND_TIMEOUT_SECONDS", cfg.Gateway.InboundSendTimeout > 0)
	positive("SECRET_TTL_SECONDS", cfg.Secrets.TTL > 0)
	if cfg.Redis.Enabled {
		positive("REDIS_TTL_SECONDS", cfg.Redis.TTL > 0)
		positive("BURST_LOCK_TTL_SECONDS", cfg.Redis.BurstLockTTL > 0)
	}
	if cfg.Secrets.SecretID == "" && cfg.Secrets.APIKey == "" {
		errs = append(errs, errors.New("one of TELNYX_SECRET_ID or TELNYX_API_KEY is required"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
