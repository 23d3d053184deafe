package redact

import (
	"io"
	"strings"
	"sync"
)

// Mask replaces every secret occurrence in redacted output.
const Mask = "***"

// Filter scrubs secret literals from text before it reaches any diagnostic
// stream or export artifact. Secrets can be added while a job runs (captures
// marked redact), so the filter is safe for concurrent use.
type Filter struct {
	mu      sync.RWMutex
	secrets []string
}

func NewFilter(secrets ...string) *Filter {
	f := &Filter{}
	f.Add(secrets...)
	return f
}

// Add registers more secret values. Empty strings are ignored, they would
// otherwise mask everything.
func (f *Filter) Add(secrets ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range secrets {
		if s != "" {
			f.secrets = append(f.secrets, s)
		}
	}
}

// Apply replaces every literal occurrence of a registered secret with Mask.
func (f *Filter) Apply(s string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, secret := range f.secrets {
		s = strings.ReplaceAll(s, secret, Mask)
	}
	return s
}

// Writer wraps a text sink so everything written through it is scrubbed.
// Writes are line-buffered: a secret split across two writes inside one line
// is still caught when the line completes.
type Writer struct {
	dst    io.Writer
	filter *Filter
	mu     sync.Mutex
	buf    strings.Builder
}

func NewWriter(dst io.Writer, filter *Filter) *Writer {
	return &Writer{dst: dst, filter: filter}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	data := w.buf.String()
	idx := strings.LastIndexByte(data, '\n')
	if idx < 0 {
		return len(p), nil
	}
	complete, rest := data[:idx+1], data[idx+1:]
	w.buf.Reset()
	w.buf.WriteString(rest)
	if _, err := io.WriteString(w.dst, w.filter.Apply(complete)); err != nil {
		return len(p), err
	}
	return len(p), nil
}

// Flush scrubs and writes any buffered partial line.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return nil
	}
	data := w.buf.String()
	w.buf.Reset()
	_, err := io.WriteString(w.dst, w.filter.Apply(data))
	return err
}
