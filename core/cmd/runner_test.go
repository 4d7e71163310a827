package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/qnabot/core/config"
	coretelegram "github.com/m3rciful/qnabot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type testApp struct {
	services []Service
}

func (testApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a testApp) Services() []Service { return a.services }

func baseOptions(app TelegramApp) Options {
	return Options{
		ConfigPath:     "config.yaml",
		LoadConfig:     func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:      func(context.Context, ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("QNABOT_CONFIG", "/etc/qnabot.yaml")

	p, err := Options{ConfigEnvVar: "QNABOT_CONFIG", ConfigPath: "flag.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "flag.yaml", p)

	p, err = Options{ConfigEnvVar: "QNABOT_CONFIG", DefaultConfigPath: "config.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/qnabot.yaml", p)

	_, err = Options{ConfigEnvVar: "QNABOT_UNSET"}.ResolveConfigPath()
	assert.Error(t, err)
}

func TestRunStopsServicesWhenBotReturns(t *testing.T) {
	stopped := make(chan struct{})
	app := testApp{services: []Service{func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}}}

	var hooks []string
	opts := baseOptions(app)
	opts.RunTelegram = func(ctx context.Context, ro coretelegram.RunOptions) error {
		require.NoError(t, ro.OnStart(ctx, coretelegram.Runtime{}))
		hooks = append(hooks, "start")
		require.NoError(t, ro.OnStop(ctx, coretelegram.Runtime{}))
		hooks = append(hooks, "stop")
		return nil
	}

	require.NoError(t, Run(context.Background(), opts))
	<-stopped
	assert.Equal(t, []string{"start", "stop"}, hooks)
}

func TestRunReturnsServiceError(t *testing.T) {
	boom := errors.New("listen failed")
	app := testApp{services: []Service{func(context.Context) error { return boom }}}

	opts := baseOptions(app)
	opts.RunTelegram = func(ctx context.Context, _ coretelegram.RunOptions) error {
		<-ctx.Done()
		return nil
	}

	assert.ErrorIs(t, Run(context.Background(), opts), boom)
}

func TestRunRequiresHooks(t *testing.T) {
	assert.Error(t, Run(context.Background(), Options{}))
	assert.Error(t, Run(context.Background(), Options{LoadConfig: baseOptions(nil).LoadConfig}))
}
