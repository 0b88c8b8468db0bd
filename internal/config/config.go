package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TICKET_TIMEZONE must resolve in minimal containers

	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration required by the service.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	DBDriver   string `yaml:"db_driver"` // postgres | sqlite | memory
	DBURL      string `yaml:"db_url"`
	SQLitePath string `yaml:"sqlite_path"`

	// WebhookCredential is the shared secret the mail relay passes as ?token=.
	WebhookCredential    string `yaml:"webhook_credential"`
	TrustedSenderPattern string `yaml:"trusted_sender_pattern"`
	TicketTimezone       string `yaml:"ticket_timezone"`

	// API_KEYS format: "operator1:key1,operator2:key2"
	APIKeysRaw string `yaml:"api_keys"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisStream   string `yaml:"redis_stream"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ReconcileMaxAttempts int  `yaml:"reconcile_max_attempts"`
	Debug                bool `yaml:"debug"`

	// Derived by Load.
	APIKeys  map[string]string `yaml:"-"` // apiKey -> operatorID
	Location *time.Location    `yaml:"-"`
}

func defaults() Config {
	return Config{
		HTTPAddr:             ":8080",
		DBDriver:             "postgres",
		SQLitePath:           "./data/access-status.db",
		TicketTimezone:       "America/New_York",
		RedisStream:          "access-status:updates",
		LogLevel:             "info",
		LogFormat:            "json",
		ReconcileMaxAttempts: 3,
	}
}

// Load reads configuration from the YAML file named by CONFIG_FILE (if any)
// and then from environment variables, which take precedence.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("DB_DRIVER", &cfg.DBDriver)
	str("DB_URL", &cfg.DBURL)
	str("SQLITE_PATH", &cfg.SQLitePath)
	str("WEBHOOK_CREDENTIAL", &cfg.WebhookCredential)
	str("TRUSTED_SENDER_PATTERN", &cfg.TrustedSenderPattern)
	str("TICKET_TIMEZONE", &cfg.TicketTimezone)
	str("API_KEYS", &cfg.APIKeysRaw)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("REDIS_STREAM", &cfg.RedisStream)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	var err error
	if v := strings.TrimSpace(getenv("REDIS_DB")); v != "" {
		if cfg.RedisDB, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("REDIS_DB: %w", err)
		}
	}
	if v := strings.TrimSpace(getenv("RECONCILE_MAX_ATTEMPTS")); v != "" {
		if cfg.ReconcileMaxAttempts, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("RECONCILE_MAX_ATTEMPTS: %w", err)
		}
	}
	if v := strings.TrimSpace(getenv("DEBUG")); v != "" {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("DEBUG: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	c.DBDriver = strings.ToLower(c.DBDriver)
	switch c.DBDriver {
	case "postgres":
		if c.DBURL == "" {
			return errors.New("DB_URL required")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("DB_DRIVER %q: want postgres, sqlite or memory", c.DBDriver)
	}

	if c.WebhookCredential == "" {
		return errors.New("WEBHOOK_CREDENTIAL required")
	}
	if c.ReconcileMaxAttempts < 1 {
		return errors.New("RECONCILE_MAX_ATTEMPTS must be at least 1")
	}

	loc, err := time.LoadLocation(c.TicketTimezone)
	if err != nil {
		return fmt.Errorf("TICKET_TIMEZONE: %w", err)
	}
	c.Location = loc

	if c.APIKeys, err = parseAPIKeys(c.APIKeysRaw); err != nil {
		return err
	}
	// Local dev fallback so operator endpoints work out-of-the-box.
	if len(c.APIKeys) == 0 && c.Debug {
		c.APIKeys = map[string]string{"operator-key-123": "operator1"}
	}
	return nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		operator, key, ok := strings.Cut(p, ":")
		operator, key = strings.TrimSpace(operator), strings.TrimSpace(key)
		if !ok || operator == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "operator:key,operator:key"`)
		}
		keys[key] = operator
	}
	return keys, nil
}
