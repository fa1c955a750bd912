package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/cmd/strata/commands"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "strata - layered business canvases",
	Long: `strata - layered business canvases.

Place typed business nodes (organizations, payments, contracts, wallets...) on
a canvas, connect them, and open any node to work on the canvas beneath it.

Available commands:
  am      - Manage configuration ("I am")
  server  - Serve the canvas over HTTP and WebSocket
  repl    - Edit canvases from the terminal
  canvas  - Inspect stored canvases
  catalog - Inspect business templates

Examples:
  strata am show           # Show current configuration
  strata server            # Start the canvas server
  strata canvas ls         # List stored canvases`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON where supported")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("db-path", "", "Database path (overrides database.path)")
	rootCmd.PersistentFlags().String("backend", "", "Storage backend: sqlite, file, memory, dynamodb (overrides storage.backend)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.CanvasCmd)
	rootCmd.AddCommand(commands.CatalogCmd)
	rootCmd.AddCommand(commands.ReplCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintln(os.Stderr, hints)
		}
		os.Exit(1)
	}
}
