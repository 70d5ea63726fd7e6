package logger

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONLinesLogger(t *testing.T) {
	var buf strings.Builder
	log := NewJSONLinesLogger(&buf).NewSession()

	assert.Nil(t, log.CommandRun(&CommandRun{Command: "echo hi", ExitCode: 0}))
	assert.Nil(t, log.JobChange(&JobChange{JobID: 1, Command: "sleep 5 &", Status: "running"}))
	assert.Nil(t, log.SessionEnd())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)

	var first LogEntry
	assert.Nil(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.NotZero(t, first.TimestampMicros)
	assert.NotEmpty(t, first.SessionID)
	if assert.NotNil(t, first.CommandRun) {
		assert.Equal(t, "echo hi", first.CommandRun.Command)
	}
	assert.Nil(t, first.JobChange)

	var second LogEntry
	assert.Nil(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, first.SessionID, second.SessionID, "session id is stable across events")
}

func TestSessionlessLogger(t *testing.T) {
	var buf strings.Builder
	log := NewJSONLinesLogger(&buf).Sessionless()

	assert.Nil(t, log.ParseFailure(&ParseFailure{Input: "echo |", Index: 6, Error: "syntax error"}))

	var entry LogEntry
	assert.Nil(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Empty(t, entry.SessionID)
	if assert.NotNil(t, entry.ParseFailure) {
		assert.Equal(t, 6, entry.ParseFailure.Index)
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger().NewSession()
	assert.Nil(t, log.CommandRun(&CommandRun{Command: "x"}))
	assert.Nil(t, log.Panic("boom"))
}
