package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marginterm",
		Short: "Backend for a Solana margin trading terminal",
		Long: `marginterm polls lending pools, margin accounts and order books, serves
them over HTTP and websocket, and dispatches deposit, withdraw, borrow, repay,
swap and order actions for the configured wallet.

Examples:
  marginterm --config config.toml
  marginterm quote --in 10 --src-reserve 1000 --dst-reserve 25000
  marginterm risk 0.85
  marginterm keygen --out wallet.enc`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "config.toml", "path to configuration file")
	root.PersistentFlags().BoolP("json", "j", false, "output in JSON format")

	serve := newServeCmd()
	root.AddCommand(serve, newQuoteCmd(), newRiskCmd(), newKeygenCmd())
	// Running without a subcommand serves.
	root.RunE = serve.RunE
	return root
}

// parseLevel maps a config log level to slog.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printSuccess(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "\n"+format+"\n\n", args...)
}
