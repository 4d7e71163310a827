package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, StoreMemory, cfg.Dialog.Store)
	assert.Equal(t, defaultRoleTimeout, cfg.Dialog.RoleTimeout)
	assert.Equal(t, defaultEventTimeout, cfg.Dialog.EventTimeout)
	assert.Equal(t, defaultWorkers, cfg.Dialog.Workers)
	assert.Equal(t, defaultMailboxSize, cfg.Dialog.MailboxSize)
	assert.Equal(t, 1, cfg.RateLimit.Burst)
	assert.Empty(t, cfg.Metrics.Path)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "from-file"
dialog:
  role_timeout: 2s
`)
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("DIALOG_ROLE_TIMEOUT", "750ms")
	t.Setenv("METRICS_LISTEN", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, 750*time.Millisecond, cfg.Dialog.RoleTimeout)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.Equal(t, defaultMetricsPath, cfg.Metrics.Path)
}

func TestNormalizeRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"bad run mode", func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" }},
		{"webhook without url", func(c *Config) { c.Telegram.RunMode = RunModeWebhook }},
		{"bad store", func(c *Config) { c.Dialog.Store = "etcd" }},
		{"redis without addr", func(c *Config) { c.Dialog.Store = StoreRedis }},
		{"negative timeout", func(c *Config) { c.Dialog.RoleTimeout = -time.Second }},
		{"bad exclude", func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"poll"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
			tt.mut(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizeRedisStore(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t", RunMode: "polling"},
		Dialog:   DialogConfig{Store: " Redis "},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		RateLimit: RateLimitConfig{
			ExcludeUpdates: []string{" Callback "},
		},
	}
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, StoreRedis, cfg.Dialog.Store)
	assert.Equal(t, defaultRedisPrefix, cfg.Redis.KeyPrefix)
	assert.Equal(t, []string{UpdateCallback}, cfg.RateLimit.ExcludeUpdates)
}

func TestLoadEnvFilesIgnoresMissing(t *testing.T) {
	assert.NoError(t, LoadEnvFiles(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("QNABOT_TEST_ONLY=yes\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("QNABOT_TEST_ONLY") })

	require.NoError(t, LoadEnvFiles(path))
	assert.Equal(t, "yes", os.Getenv("QNABOT_TEST_ONLY"))
}
