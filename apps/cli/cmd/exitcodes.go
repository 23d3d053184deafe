package cmd

import "github.com/abdul-hamid-achik/reqflow/packages/core/runner"

// Exit codes for the reqflow CLI
const (
	// ExitSuccess indicates every entry passed
	ExitSuccess = 0

	// ExitAssertFailure indicates one or more asserts failed
	ExitAssertFailure = 1

	// ExitParseError indicates a scenario file failed to parse
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitRuntimeError indicates a network or capture error
	ExitRuntimeError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitCode maps the worst error class of a run to the process exit code.
func exitCode(class runner.ErrorClass) int {
	switch class {
	case runner.ClassNone:
		return ExitSuccess
	case runner.ClassAssert:
		return ExitAssertFailure
	case runner.ClassParse:
		return ExitParseError
	case runner.ClassConfig:
		return ExitConfigError
	default:
		return ExitRuntimeError
	}
}
