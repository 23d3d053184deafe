package cmd

import (
	"fmt"
	"os"

	"github.com/abdul-hamid-achik/reqflow/packages/core/parser"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <file|directory>...",
	Short: "Check scenario files for syntax errors",
	Long: `Check scenario files for syntax errors without executing them.

Examples:
  reqflow check api.reqflow
  reqflow check ./scenarios/`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkCommand,
}

func checkCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStderr(), "Error: no scenario files found\n")
		os.Exit(ExitConfigError)
	}

	hasErrors := false
	for _, file := range files {
		if _, err := parser.ParseFile(file); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}
	if hasErrors {
		os.Exit(ExitParseError)
	}
	return nil
}
