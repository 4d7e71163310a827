package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DialogConfig tunes the dialog engine and its state storage.
type DialogConfig struct {
	// Store selects the state backend: "memory" or "redis".
	Store        string        `yaml:"store" envconfig:"DIALOG_STORE"`
	RoleTimeout  time.Duration `yaml:"role_timeout" envconfig:"DIALOG_ROLE_TIMEOUT"`
	EventTimeout time.Duration `yaml:"event_timeout" envconfig:"DIALOG_EVENT_TIMEOUT"`
	Workers      int           `yaml:"workers" envconfig:"DIALOG_WORKERS"`
	MailboxSize  int           `yaml:"mailbox_size" envconfig:"DIALOG_MAILBOX_SIZE"`
	// StateTTL expires idle dialogs in durable backends; 0 keeps them forever.
	StateTTL time.Duration `yaml:"state_ttl" envconfig:"DIALOG_STATE_TTL"`
}

// RedisConfig describes the Redis connection used by the durable state store.
type RedisConfig struct {
	Addr      string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" envconfig:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
}

// SenderConfig controls the asynchronous outbound dispatcher.
type SenderConfig struct {
	QueueSize    int           `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers      int           `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"SENDER_RETRY_BACKOFF"`
	MaxDuration  time.Duration `yaml:"max_duration" envconfig:"SENDER_MAX_DURATION"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
	Path   string `yaml:"path" envconfig:"METRICS_PATH"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StoreMemory keeps dialog state in process memory.
	StoreMemory = "memory"
	// StoreRedis keeps dialog state in Redis.
	StoreRedis = "redis"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

const (
	defaultRoleTimeout  = 3 * time.Second
	defaultEventTimeout = 30 * time.Second
	defaultWorkers      = 32
	defaultMailboxSize  = 64
	defaultMetricsPath  = "/metrics"
	defaultRedisPrefix  = "qnabot:"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dialog    DialogConfig    `yaml:"dialog"`
	Redis     RedisConfig     `yaml:"redis"`
	Sender    SenderConfig    `yaml:"sender"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoadEnvFiles loads the first readable dotenv file. Variables that are already
// set in the process environment keep their values.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Decode reads a YAML file into dst and overlays environment variables.
// dst must be a pointer to a struct.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := LoadEnvFiles(); err != nil {
		return err
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if err := normalizeRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	if err := normalizeDialog(cfg); err != nil {
		return err
	}
	normalizeSender(&cfg.Sender)

	if strings.TrimSpace(cfg.Metrics.Listen) != "" && strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	if rl.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	if rl.Burst <= 0 {
		rl.Burst = 1
	}
	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		rl.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeDialog(cfg *Config) error {
	d := &cfg.Dialog
	store := strings.ToLower(strings.TrimSpace(d.Store))
	if store == "" {
		store = StoreMemory
	}
	switch store {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when dialog.store is 'redis'")
		}
		if cfg.Redis.KeyPrefix == "" {
			cfg.Redis.KeyPrefix = defaultRedisPrefix
		}
	default:
		return fmt.Errorf("invalid dialog.store %q; allowed: memory, redis", d.Store)
	}
	d.Store = store

	if d.RoleTimeout < 0 || d.EventTimeout < 0 || d.StateTTL < 0 {
		return fmt.Errorf("dialog timeouts must be >= 0")
	}
	if d.RoleTimeout == 0 {
		d.RoleTimeout = defaultRoleTimeout
	}
	if d.EventTimeout == 0 {
		d.EventTimeout = defaultEventTimeout
	}
	if d.Workers <= 0 {
		d.Workers = defaultWorkers
	}
	if d.MailboxSize <= 0 {
		d.MailboxSize = defaultMailboxSize
	}
	return nil
}

func normalizeSender(s *SenderConfig) {
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
}
