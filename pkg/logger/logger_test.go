package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWithFieldsKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, DebugLevel)

	log.WithComponent("store").WithFields(Fields{"ledger": 2, "bank": 1}).Info("reconciled")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "store", lines[0]["component"])
	assert.Equal(t, float64(2), lines[0]["ledger"])
	assert.Equal(t, float64(1), lines[0]["bank"])
	assert.Equal(t, "reconciled", lines[0]["msg"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel)

	log.Debug("hidden")
	log.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warning", lines[0]["level"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: JSONFormat, Output: FileOutput}, true},
		{"discard", Config{Level: ErrorLevel, Format: JSONFormat, Output: DiscardOutput}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel)

	err := TimedOperation("import", log, func() error { return errors.New("boom") })
	require.Error(t, err)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "import", lines[0]["operation"])
	assert.Equal(t, "error", lines[0]["status"])
	assert.Equal(t, "boom", lines[0]["error"])
}
