package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/spatialkit/tessera/bridge"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively send commands to the tiling worker",
	Long: `Starts the configured worker once and reads commands from stdin, one
per line: <command> [params-json]. Type 'exit' or 'quit' to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		holder := bridge.NewHolder(bridge.Spawner(cfg.Worker.Command, cfg.Worker.Args, cfg.Worker.Dir, cfg.Worker.Env))
		defer holder.Close()

		fmt.Printf("tessera repl — worker: %s (type 'exit' to quit)\n", cfg.Worker.Command)
		fmt.Println()

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(">> ")
			if !scanner.Scan() {
				break
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			command, params, err := splitREPLLine(line)
			if err != nil {
				fmt.Println(pterm.NewStyle(pterm.FgRed).Sprint("❌ " + err.Error()))
				continue
			}

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
				fmt.Println(pterm.NewStyle(pterm.FgRed).Sprint("❌ " + err.Error()))
				if bridge.KindOf(err) == bridge.KindIO || bridge.KindOf(err) == bridge.KindProtocol {
					fmt.Println(pterm.NewStyle(pterm.FgYellow).Sprint("⚠️  channel state unknown, restarting worker"))
					holder.Reset()
				}
				continue
			}
			printResult(data)
		}

		fmt.Println()
		return nil
	},
}

// splitREPLLine parses "<command> [params-json]".
func splitREPLLine(line string) (string, json.RawMessage, error) {
	parts := strings.SplitN(line, " ", 2)
	command := parts[0]
	params := json.RawMessage("null")
	if len(parts) == 2 {
		raw := strings.TrimSpace(parts[1])
		if !json.Valid([]byte(raw)) {
			return "", nil, fmt.Errorf("params are not valid JSON: %s", raw)
		}
		params = json.RawMessage(raw)
	}
	return command, params, nil
}

func init() {
	rootCmd.AddCommand(replCmd)
}
