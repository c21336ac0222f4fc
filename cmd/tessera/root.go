package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/spatialkit/tessera/config"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tessera")

var (
	configPath string
	verbosity  int
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Host for the spatial tissue tiling worker",
	Long: `Tessera drives a long-lived tiling worker process over line-delimited
JSON on stdin/stdout and serves rendered tissue overlays over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commonlog.Configure(verbosity, nil)
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "directory containing tessera.toml (default: search upward from cwd)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
}

// loadConfig resolves configuration for a command run: an explicit
// --config directory, or the nearest tessera.toml above the working
// directory, or defaults.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.FindAndLoad(".")
}
