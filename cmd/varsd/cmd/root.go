// Package cmd implements the varsd CLI commands.
//
// The command structure follows the usual cobra layout: a root command with
// persistent flags and one file per subcommand (run, version).
package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "varsd",
	Short: "varsd - reactive variables driven by a tick loop",
	Long: `varsd runs the reactive variable engine as a service.

Settings are read from a YAML file and exposed as variables; editing the
file updates them live. Engine metrics are served for Prometheus.

Use "varsd <command> --help" for more information about a command.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
