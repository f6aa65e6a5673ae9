// Package cmd wires the helperd command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// logLevel is process-wide so a config hot-reload can retune it.
var logLevel = new(slog.LevelVar)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "helperd",
		Short: "Per-user helper execution engine",
		Long: "helperd plans helper executions from cron schedules and user\n" +
			"subscriptions into a Redis-backed temporal priority queue, and\n" +
			"dispatches them as they come due.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to config file")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(helpersCmd())
	cmd.AddCommand(queueCmd())
	cmd.AddCommand(tokenCmd())
	return cmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	setupLogging("info")
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("HELPERD_CONFIG"); p != "" {
		return p
	}
	return "helperd.json5"
}

func setupLogging(level string) {
	setLogLevel(level)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}
