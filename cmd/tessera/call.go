package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/spatialkit/tessera/bridge"
)

var callCmd = &cobra.Command{
	Use:   "call <command> [params-json]",
	Short: "Send one command to the tiling worker and print the result",
	Long: `Spawns the configured worker, sends a single command, prints the result
JSON to stdout and exits. Status and errors go to stderr, so the output
can be piped.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		command := args[0]
		params := json.RawMessage("null")
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("params are not valid JSON: %s", args[1])
			}
			params = json.RawMessage(args[1])
		}

		holder := bridge.NewHolder(bridge.Spawner(cfg.Worker.Command, cfg.Worker.Args, cfg.Worker.Dir, cfg.Worker.Env))
		defer holder.Close()

		spinner, _ := pterm.DefaultSpinner.WithWriter(os.Stderr).Start("calling " + command)

		var data json.RawMessage
		err = holder.Do(func(b *bridge.Bridge) error {
			out, err := b.Call(command, params)
			if err != nil {
				return err
			}
			data = out
			return nil
		})
		if err != nil {
			spinner.Stop()
			fmt.Fprintln(os.Stderr, pterm.NewStyle(pterm.FgRed).Sprint("❌ "+err.Error()))
			holder.Close()
			os.Exit(1)
		}
		spinner.Stop()

		printResult(data)
		return nil
	},
}

// printResult pretty-prints a worker result to stdout.
func printResult(data json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}

func init() {
	rootCmd.AddCommand(callCmd)
}
