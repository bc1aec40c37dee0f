package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/moverdesk/cmd/moverdesk/commands"
	"github.com/teranos/moverdesk/logger"
)

var rootCmd = &cobra.Command{
	Use:   "moverdesk",
	Short: "moverdesk - crew back office for moving jobs",
	Long: `moverdesk - crew back office for moving jobs.

Workers join jobs, clock in from the job site and review their payouts.
Job, worker and payout records live in Zoho Creator; moverdesk is the
authenticated API in front of them.

Available commands:
  am      - Manage moverdesk configuration ("I am")
  server  - Start the HTTP API
  version - Show build information

Examples:
  moverdesk am show              # Show current configuration
  moverdesk am validate          # Check required settings
  moverdesk server -v            # Start the API with info logging`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' writes machine-readable output to stdout
		if cmd.Name() == "show" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs || logger.PreferJSON(), verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
