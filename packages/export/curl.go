// Package export renders executed requests as curl commands so a failing
// entry can be replayed outside the runner.
package export

import (
	"io"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/core/runner"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
)

// CurlWriter writes one curl command per executed entry. The filter scrubs
// secret values from the transcript.
type CurlWriter struct {
	writer io.Writer
	filter *redact.Filter
}

func NewCurlWriter(w io.Writer, filter *redact.Filter) *CurlWriter {
	return &CurlWriter{writer: w, filter: filter}
}

// WriteRun emits the transcript for every entry that produced at least one
// exchange, in file then entry order. Each entry contributes the initial
// request of its final attempt; redirect hops are curl's own business.
func (c *CurlWriter) WriteRun(files []*runner.FileResult) error {
	for _, f := range files {
		for _, e := range f.Entries {
			ex := e.Exchange()
			if ex == nil || len(ex.Calls) == 0 {
				continue
			}
			line := Command(ex.Calls[0].Request)
			if c.filter != nil {
				line = c.filter.Apply(line)
			}
			if _, err := io.WriteString(c.writer, line+"\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// Command renders a single request as a curl invocation.
func Command(req *http.Request) string {
	var b strings.Builder
	b.WriteString("curl")
	if req.Method != "GET" {
		b.WriteString(" --request ")
		b.WriteString(req.Method)
	}
	for _, h := range req.Headers {
		b.WriteString(" --header ")
		b.WriteString(shellQuote(h.Name + ": " + h.Value))
	}
	if len(req.Body) > 0 {
		b.WriteString(" --data ")
		b.WriteString(shellQuote(string(req.Body)))
	}
	b.WriteString(" ")
	b.WriteString(shellQuote(req.URL))
	return b.String()
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]#~%") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
