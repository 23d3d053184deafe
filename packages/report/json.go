package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/core/runner"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
)

// JSONOutput is the machine-readable shape of one run.
type JSONOutput struct {
	RunID    string      `json:"runId"`
	Time     string      `json:"time"`
	Duration float64     `json:"duration"`
	Summary  JSONSummary `json:"summary"`
	Files    []JSONFile  `json:"files"`
}

type JSONSummary struct {
	Total   int    `json:"total"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
	Success bool   `json:"success"`
	P50     int64  `json:"p50Ms"`
	P95     int64  `json:"p95Ms"`
	P99     int64  `json:"p99Ms"`
	Worst   string `json:"worstErrorClass"`
}

type JSONFile struct {
	Path     string      `json:"path"`
	Success  bool        `json:"success"`
	Duration float64     `json:"duration"`
	Error    string      `json:"error,omitempty"`
	Entries  []JSONEntry `json:"entries,omitempty"`
}

type JSONEntry struct {
	Index    int             `json:"index"`
	Status   string          `json:"status"`
	Duration float64         `json:"duration"`
	Attempts int             `json:"attempts"`
	URL      string          `json:"url,omitempty"`
	Captures []JSONCapture   `json:"captures,omitempty"`
	Asserts  []JSONAssertion `json:"asserts,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
}

type JSONCapture struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type JSONAssertion struct {
	Source   string `json:"source"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Message  string `json:"message,omitempty"`
}

// JSONFormatter serializes a run report. The filter scrubs secrets from the
// serialized document before it reaches the writer.
type JSONFormatter struct {
	writer io.Writer
	filter *redact.Filter
}

func NewJSONFormatter(w io.Writer, filter *redact.Filter) *JSONFormatter {
	return &JSONFormatter{writer: w, filter: filter}
}

func (f *JSONFormatter) Write(r *RunReport) error {
	out := JSONOutput{
		RunID:    r.RunID.String(),
		Time:     r.Started.Format(time.RFC3339),
		Duration: r.Duration.Seconds(),
	}
	passed, failed, skipped := r.Counts()
	stats := r.Stats()
	out.Summary = JSONSummary{
		Total:   passed + failed + skipped,
		Passed:  passed,
		Failed:  failed,
		Skipped: skipped,
		Success: r.Success(),
		P50:     stats.P50.Milliseconds(),
		P95:     stats.P95.Milliseconds(),
		P99:     stats.P99.Milliseconds(),
		Worst:   r.Class().String(),
	}
	for _, fr := range r.Files {
		out.Files = append(out.Files, jsonFile(fr))
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if f.filter != nil {
		data = []byte(f.filter.Apply(string(data)))
	}
	_, err = f.writer.Write(append(data, '\n'))
	return err
}

func jsonFile(fr *runner.FileResult) JSONFile {
	jf := JSONFile{
		Path:     fr.Path,
		Success:  fr.Success(),
		Duration: fr.Duration.Seconds(),
	}
	if fr.Err != nil {
		jf.Error = fr.Err.Error()
	}
	for _, e := range fr.Entries {
		je := JSONEntry{
			Index:    e.Index,
			Status:   e.Status.String(),
			Duration: e.Duration.Seconds(),
			Attempts: len(e.Attempts),
		}
		if ex := e.Exchange(); ex != nil {
			je.URL = ex.EffectiveURL()
		}
		for _, c := range e.Captures {
			v := c.Value.Render()
			if c.Redact {
				v = redact.Mask
			}
			je.Captures = append(je.Captures, JSONCapture{Name: c.Name, Value: v})
		}
		for _, a := range e.Asserts {
			je.Asserts = append(je.Asserts, JSONAssertion{
				Source:   a.Source,
				Passed:   a.Passed,
				Expected: a.Expected,
				Actual:   a.Actual,
				Message:  a.Message,
			})
		}
		for _, err := range e.Errors {
			je.Errors = append(je.Errors, err.Error())
		}
		jf.Entries = append(jf.Entries, je)
	}
	return jf
}
