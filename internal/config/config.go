package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when no path is given; a missing default file means
// configuration comes from the environment only.
const DefaultPath = "config/config.yaml"

// MinDispatchDelay is the platform's per-chat limit for consecutive quizzes.
const MinDispatchDelay = 5 * time.Second

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	QuizLog  QuizLogConfig  `yaml:"quiz_log"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type TelegramConfig struct {
	Token          string        `yaml:"token"            env:"TELEGRAM_TOKEN"`
	Mode           string        `yaml:"mode"             env:"TELEGRAM_MODE"           env-default:"polling"`
	WebhookURL     string        `yaml:"webhook_url"      env:"TELEGRAM_WEBHOOK_URL"`
	WebhookSecret  string        `yaml:"webhook_secret"   env:"TELEGRAM_WEBHOOK_SECRET"`
	PollTimeout    time.Duration `yaml:"poll_timeout"     env:"TELEGRAM_POLL_TIMEOUT"   env-default:"60s"`
	AllowedUsers   []int64       `yaml:"allowed_user_ids" env:"TELEGRAM_ALLOWED_USERS"  env-separator:","`
	AnonymousPolls bool          `yaml:"anonymous_polls"  env:"TELEGRAM_ANONYMOUS_POLLS"`
	// DryRun records dispatches in memory instead of calling the API.
	DryRun bool `yaml:"dry_run" env:"TELEGRAM_DRY_RUN"`
}

type CatalogConfig struct {
	Backend string `yaml:"backend" env:"CATALOG_BACKEND" env-default:"file"`
	Path    string `yaml:"path"    env:"CATALOG_PATH"    env-default:"data/catalog.json"`
}

type QuizLogConfig struct {
	Backend string        `yaml:"backend" env:"QUIZ_LOG_BACKEND" env-default:"file"`
	Dir     string        `yaml:"dir"     env:"QUIZ_LOG_DIR"     env-default:"data/quizlog"`
	TTL     time.Duration `yaml:"ttl"     env:"QUIZ_LOG_TTL"`
}

type DispatchConfig struct {
	Delay      time.Duration `yaml:"delay"       env:"DISPATCH_DELAY"       env-default:"5s"`
	Pacer      string        `yaml:"pacer"       env:"DISPATCH_PACER"       env-default:"fixed"`
	MaxOptions int           `yaml:"max_options" env:"DISPATCH_MAX_OPTIONS" env-default:"10"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"`
	Prefix   string `yaml:"prefix"   env:"REDIS_PREFIX" env-default:"quizbot:"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"POSTGRES_URL"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"data/quizbot.db"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

var (
	catalogBackends = []string{"file", "redis", "sqlite"}
	quizLogBackends = []string{"none", "memory", "file", "redis", "sqlite", "postgres"}
)

// Load reads the YAML file at path and applies environment overrides.
// An empty path falls back to DefaultPath, which may be absent.
func Load(path string) (Config, error) {
	var cfg Config

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return cfg, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !slices.Contains(catalogBackends, c.Catalog.Backend) {
		return fmt.Errorf("catalog.backend must be one of %v (got %q)", catalogBackends, c.Catalog.Backend)
	}
	if !slices.Contains(quizLogBackends, c.QuizLog.Backend) {
		return fmt.Errorf("quiz_log.backend must be one of %v (got %q)", quizLogBackends, c.QuizLog.Backend)
	}
	if (c.Catalog.Backend == "redis" || c.QuizLog.Backend == "redis") && c.Redis.Addr == "" {
		return errors.New("redis.addr is required by the redis backend")
	}
	if c.QuizLog.Backend == "postgres" && c.Postgres.URL == "" {
		return errors.New("postgres.url is required by the postgres quiz log")
	}
	if c.Dispatch.Delay < MinDispatchDelay {
		return fmt.Errorf("dispatch.delay must be >= %s (got %s)", MinDispatchDelay, c.Dispatch.Delay)
	}
	if c.Dispatch.Pacer != "fixed" && c.Dispatch.Pacer != "bucket" {
		return fmt.Errorf("dispatch.pacer must be fixed or bucket (got %q)", c.Dispatch.Pacer)
	}
	if c.Dispatch.MaxOptions < 2 || c.Dispatch.MaxOptions > 10 {
		return fmt.Errorf("dispatch.max_options must be within [2,10] (got %d)", c.Dispatch.MaxOptions)
	}
	if c.Telegram.Mode != "polling" && c.Telegram.Mode != "webhook" {
		return fmt.Errorf("telegram.mode must be polling or webhook (got %q)", c.Telegram.Mode)
	}
	return nil
}

// ValidateDispatch checks what commands that reach the platform need.
func (c Config) ValidateDispatch() error {
	if c.Telegram.Token == "" && !c.Telegram.DryRun {
		return errors.New("telegram.token is required unless telegram.dry_run is set")
	}
	return nil
}
