package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/qnabot/core/buildinfo"
	corecmd "github.com/m3rciful/qnabot/core/cmd"
	coredatabase "github.com/m3rciful/qnabot/core/database"
	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/internal/app"
)

const (
	configEnvVar      = "QNABOT_CONFIG"
	defaultConfigPath = "config.yaml"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	runOptions := func() corecmd.Options {
		return corecmd.Options{
			ConfigEnvVar:      configEnvVar,
			DefaultConfigPath: defaultConfigPath,
			ConfigPath:        configPath,
			LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
				return app.Load(path)
			},
			Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
				return app.Bootstrap(ctx, cfg.(*app.Config))
			},
		}
	}
	loadConfig := func() (*app.Config, error) {
		path, err := runOptions().ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		return app.Load(path)
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(cmd.Context(), runOptions())
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.QnA.Storage != app.StoragePostgres {
				return fmt.Errorf("migrate: qna.storage is %q, nothing to migrate", cfg.QnA.Storage)
			}
			if err := logger.InitLogger(&cfg.Config); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			return coredatabase.RunMigrations(cmd.Context(), cfg.Database)
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	config := &cobra.Command{Use: "config", Short: "Inspect the configuration"}
	config.AddCommand(check)

	version := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}

	root := &cobra.Command{
		Use:           "qnabot",
		Short:         "Telegram bot that connects members with questions to members who can answer",
		SilenceUsage:  true,
		Version:       buildinfo.String(),
		RunE:          run.RunE,
		Args:          cobra.NoArgs,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $"+configEnvVar+" or "+defaultConfigPath+")")
	root.AddCommand(run, migrate, config, version)
	return root
}

func printSummary(w io.Writer, cfg *app.Config) {
	fmt.Fprintf(w, "config ok\n")
	fmt.Fprintf(w, "  run_mode:     %s\n", cfg.Telegram.RunMode)
	fmt.Fprintf(w, "  storage:      %s\n", cfg.QnA.Storage)
	fmt.Fprintf(w, "  dialog_store: %s\n", cfg.Dialog.Store)
	fmt.Fprintf(w, "  areas:        %d\n", len(cfg.QnA.Areas))
	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(w, "  metrics:      %s%s\n", cfg.Metrics.Listen, cfg.Metrics.Path)
	}
}
