package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/qnabot/core/bootstrap"
	coreconfig "github.com/m3rciful/qnabot/core/config"
	coretelegram "github.com/m3rciful/qnabot/core/telegram"
	"github.com/m3rciful/qnabot/internal/qna/flow"

	tele "gopkg.in/telebot.v4"
)

const sampleConfig = `
telegram:
  token: "123:abc"
  admin_id: 1
dialog:
  store: memory
qna:
  storage: memory
  areas: ["Tax", " ", "Law"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, int64(1), cfg.Telegram.AdminID)
	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, StorageMemory, cfg.QnA.Storage)
	assert.Equal(t, []string{"Tax", "Law"}, cfg.QnA.Areas)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestNormalizeStorage(t *testing.T) {
	cfg := Config{}
	cfg.Telegram.Token = "t"
	require.ErrorContains(t, cfg.Normalize(), "database.host")

	cfg.Database.Host = "db"
	cfg.Database.Name = "qna"
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, StoragePostgres, cfg.QnA.Storage)
	assert.Equal(t, "5432", cfg.Database.Port)

	cfg.QnA.Storage = "sqlite"
	assert.ErrorContains(t, cfg.Normalize(), "qna.storage")
}

func testHooks(t *testing.T) Hooks {
	t.Helper()
	return Hooks{
		Bootstrap: func(_ context.Context, opts bootstrap.Options) (*bootstrap.Result, error) {
			assert.True(t, opts.NoDatabase)
			require.Len(t, opts.Seeders, 1)
			return &bootstrap.Result{}, nil
		},
		BuildBot: func(*coreconfig.Config) (*tele.Bot, error) {
			return tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
		},
	}
}

func memoryConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	return cfg
}

func TestBootstrapWiresRoutes(t *testing.T) {
	a, err := BootstrapWith(context.Background(), memoryConfig(t), testHooks(t))
	require.NoError(t, err)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	endpoints := map[any]bool{}
	for _, r := range opts.Routes {
		endpoints[r.Endpoint] = true
	}
	for _, want := range []any{"/start", "/ask", "/cancel", "/reach", "/notifications", "/areas", tele.OnContact, tele.OnText, tele.OnCallback} {
		assert.True(t, endpoints[want], "missing route %v", want)
	}
	assert.NotEmpty(t, opts.Middlewares)
	assert.Len(t, a.Services(), 1)

	areas, err := a.service.Areas(context.Background())
	require.NoError(t, err)
	assert.Len(t, areas, 2)

	require.NoError(t, opts.OnStop(context.Background(), coretelegram.Runtime{}))
}

func TestBootstrapWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig(t)
	cfg.Dialog.Store = coreconfig.StoreRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.KeyPrefix = "test:"

	a, err := BootstrapWith(context.Background(), cfg, testHooks(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		a.dispatcher.Close()
		a.close()
	})

	require.NoError(t, a.engine.Enter(context.Background(), 5, flow.AskQuestion{}))
	assert.True(t, mr.Exists("test:5"))
	st, err := a.engine.Current(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, flow.AskQuestion{}, st)
}

func TestBootstrapFailsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := memoryConfig(t)
	cfg.Dialog.Store = coreconfig.StoreRedis
	cfg.Redis.Addr = addr

	_, err := BootstrapWith(context.Background(), cfg, testHooks(t))
	assert.ErrorContains(t, err, "redis unavailable")
}
