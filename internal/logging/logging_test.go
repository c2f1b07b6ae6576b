package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "text", 0)
	require.NoError(t, err)

	log.WithName("batch").Info("row provisioned", "line", 3, "hostname", "odn1-vlb-redirtp-001")
	log.V(1).Info("dropped")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"msg"="row provisioned"`)
	assert.Contains(t, out, `"line"=3`)
	assert.True(t, strings.HasPrefix(out, "batch: "), out)
	assert.NotContains(t, out, "dropped")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "json", 1)
	require.NoError(t, err)

	log.V(1).Info("kept", "rows", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, float64(2), entry["rows"])
	assert.Equal(t, float64(1), entry["level"])
	assert.Contains(t, entry, "ts")
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", 0)
	assert.Error(t, err)
}
