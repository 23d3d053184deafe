package report

import (
	"fmt"
	"io"
	"os"

	"github.com/abdul-hamid-achik/reqflow/packages/core/runner"
	"github.com/fatih/color"
)

// ConsoleFormatter renders file results for a terminal. Pass it a redacting
// writer so secrets never reach the screen.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// FormatFile prints one file result. Safe to call from a completion hook;
// callers serialize, the formatter does not.
func (f *ConsoleFormatter) FormatFile(result *runner.FileResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+result.Path))

	if result.Err != nil {
		fmt.Fprintf(f.writer, "  %s %s\n", red("x"), red(result.Err.Error()))
		return
	}

	for _, e := range result.Entries {
		name := fmt.Sprintf("entry %d", e.Index)
		switch e.Status {
		case runner.StatusSkipped:
			fmt.Fprintf(f.writer, "  %s %s\n", yellow("-"), name)
			continue
		case runner.StatusSuccess:
			fmt.Fprintf(f.writer, "  %s %s %s", green("✓"), name, cyan(fmt.Sprintf("(%dms)", e.Duration.Milliseconds())))
		default:
			fmt.Fprintf(f.writer, "  %s %s %s", red("✗"), name, cyan(fmt.Sprintf("(%dms)", e.Duration.Milliseconds())))
		}
		if len(e.Attempts) > 1 {
			fmt.Fprintf(f.writer, " %s", yellow(fmt.Sprintf("[%d attempts]", len(e.Attempts))))
		}
		fmt.Fprintf(f.writer, "\n")

		if f.verbose {
			if ex := e.Exchange(); ex != nil && ex.Final() != nil {
				fmt.Fprintf(f.writer, "    Status: %d\n", ex.Final().Response.Status)
			}
			for _, c := range e.Captures {
				fmt.Fprintf(f.writer, "    Capture: %s = %s\n", c.Name, c.Value.Render())
			}
		}

		for _, err := range e.Errors {
			fmt.Fprintf(f.writer, "    %s %s\n", red("→"), err.Error())
		}
		if e.Status != runner.StatusSuccess {
			for _, a := range e.Asserts {
				if a.Passed {
					continue
				}
				fmt.Fprintf(f.writer, "      Assert:   %s\n", a.Source)
				fmt.Fprintf(f.writer, "      Expected: %s\n", truncate(a.Expected, 100))
				fmt.Fprintf(f.writer, "      Actual:   %s\n", truncate(a.Actual, 100))
			}
		}
	}
}

// FormatSummary prints run totals and the latency distribution.
func (f *ConsoleFormatter) FormatSummary(r *RunReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	passed, failed, skipped := r.Counts()

	fmt.Fprintf(f.writer, "\nEntries: ")
	if passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", passed)))
	}
	if failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	if skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", passed+failed+skipped)
	fmt.Fprintf(f.writer, "Files:   %d\n", len(r.Files))
	fmt.Fprintf(f.writer, "Time:    %dms\n", r.Duration.Milliseconds())

	if stats := r.Stats(); stats.Entries > 0 && f.verbose {
		fmt.Fprintf(f.writer, "Latency: p50 %dms, p95 %dms, p99 %dms (min %dms, max %dms)\n",
			stats.P50.Milliseconds(),
			stats.P95.Milliseconds(),
			stats.P99.Milliseconds(),
			stats.Min.Milliseconds(),
			stats.Max.Milliseconds(),
		)
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
