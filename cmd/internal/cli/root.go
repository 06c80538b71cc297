// Package cli is the pointy command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"pointy/cmd/internal/app"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "pointy",
		Short: "pointy - planning poker from the terminal",
		Long: `pointy keeps a live planning-poker session in sync over a websocket.

Facilitate a session, join one as a participant, vote, reveal and clear votes.
Configuration comes from an optional YAML file and POINTY_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $POINTY_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log format (json, pretty)")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.AddCommand(facilitateCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(revealCmd)
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(devkeyCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return app.Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, nil
}

// withApp builds and starts the app, runs fn, then closes the app. SIGINT and SIGTERM
// cancel the context passed to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, out io.Writer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.Start(ctx)
	return fn(ctx, a, cmd.OutOrStdout())
}
