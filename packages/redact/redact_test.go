package redact

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Apply(t *testing.T) {
	f := NewFilter("hunter2")
	assert.Equal(t, "token=***", f.Apply("token=hunter2"))
	assert.Equal(t, "*** and ***", f.Apply("hunter2 and hunter2"))
	assert.Equal(t, "nothing here", f.Apply("nothing here"))
}

func TestFilter_AddIgnoresEmpty(t *testing.T) {
	f := NewFilter()
	f.Add("")
	assert.Equal(t, "unchanged", f.Apply("unchanged"))
}

func TestFilter_LiveAdditions(t *testing.T) {
	f := NewFilter()
	assert.Equal(t, "abc123", f.Apply("abc123"))
	f.Add("abc123")
	assert.Equal(t, "***", f.Apply("abc123"))
}

func TestWriter_ScrubsCompleteLines(t *testing.T) {
	var buf bytes.Buffer
	f := NewFilter("s3cret")
	w := NewWriter(&buf, f)

	_, err := w.Write([]byte("value is s3cret\nnext"))
	require.NoError(t, err)
	assert.Equal(t, "value is ***\n", buf.String())

	require.NoError(t, w.Flush())
	assert.Equal(t, "value is ***\nnext", buf.String())
}

func TestWriter_SecretSplitAcrossWrites(t *testing.T) {
	var buf bytes.Buffer
	f := NewFilter("topsecret")
	w := NewWriter(&buf, f)

	_, err := w.Write([]byte("x=top"))
	require.NoError(t, err)
	_, err = w.Write([]byte("secret\n"))
	require.NoError(t, err)

	assert.Equal(t, "x=***\n", buf.String())
	assert.NotContains(t, buf.String(), "topsecret")
}
