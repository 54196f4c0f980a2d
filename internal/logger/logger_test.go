package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	Init("info", "json")
	SetOutput(os.Stdout)
}

func TestInfo_JSON(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	Init("info", "json")
	SetOutput(&buf)

	Info("converted", "document", "moodle/1/2/a.pdf", "chunks", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "converted", entry["msg"])
	assert.Equal(t, "moodle/1/2/a.pdf", entry["document"])
	assert.EqualValues(t, 3, entry["chunks"])
}

func TestDebug_FilteredAtInfo(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	Init("info", "text")
	SetOutput(&buf)

	Debug("hidden")
	assert.Empty(t, buf.String())

	Init("debug", "text")
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "ERROR", parseLevel("ERROR").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
