package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "sheetload",
	Short:   "Load test a workbook REST API with simulated spreadsheet users",
	Version: version,
	Long: `sheetload simulates many concurrent users of an Excel-like workbook service.
Each user logs in, creates a workbook and then edits cells, adds formulas,
creates charts, opens and saves workbooks with randomized think time in
between, while sheetload records latency and failure statistics.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute runs the root command. Errors are printed to stderr.
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	RootCmd.SilenceErrors = true
	RootCmd.AddCommand(newRunCmd())
}
