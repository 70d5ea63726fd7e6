package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"
)

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures structured interaction events: commands run, job state
// changes, parse failures and session lifecycle.
type Logger struct {
	Record LogRecorder
}

// NewJSONLinesLogger creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJSONLinesLogger(w io.Writer) *Logger {
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := json.Marshal(le)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger creates a Logger that discards every event.
func NewNopLogger() *Logger {
	return &Logger{Record: func(*LogEntry) error { return nil }}
}

// LogEntry is one logged event. Exactly one of the event fields is set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	SessionStart *SessionStart `json:"session_start,omitempty"`
	SessionEnd   *SessionEnd   `json:"session_end,omitempty"`
	CommandRun   *CommandRun   `json:"command_run,omitempty"`
	JobChange    *JobChange    `json:"job_change,omitempty"`
	AliasCycle   *AliasCycle   `json:"alias_cycle,omitempty"`
	ParseFailure *ParseFailure `json:"parse_failure,omitempty"`
	Panic        *Panic        `json:"panic,omitempty"`
}

// SessionStart records a new interactive or remote session.
type SessionStart struct {
	User       string `json:"user,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	PTY        bool   `json:"pty"`
}

type SessionEnd struct{}

// CommandRun records one executed input line and its aggregate result.
type CommandRun struct {
	Command        string `json:"command"`
	ExitCode       int    `json:"exit_code"`
	DurationMillis int64  `json:"duration_millis"`
	Streamed       bool   `json:"streamed,omitempty"`
}

// JobChange records a job lifecycle transition.
type JobChange struct {
	JobID    int    `json:"job_id"`
	PID      int    `json:"pid,omitempty"`
	Command  string `json:"command"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// AliasCycle records an aborted cyclic alias expansion.
type AliasCycle struct {
	Alias string `json:"alias"`
}

// ParseFailure records a syntax error in an input line.
type ParseFailure struct {
	Input string `json:"input"`
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Panic records an unexpected internal error converted to an exit code 1
// result at the top level.
type Panic struct {
	Value string `json:"value"`
}

func (l *Logger) record(sessionID string, fill func(*LogEntry)) error {
	le := &LogEntry{
		TimestampMicros: time.Now().UnixNano() / int64(time.Microsecond),
		SessionID:       sessionID,
	}
	fill(le)
	return l.Record(le)
}

// NewSession creates a logger with an attached random session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Sessionless creates a logger without a session ID.
func (l *Logger) Sessionless() *SessionLogger {
	return &SessionLogger{Logger: l}
}

// SessionLogger logs events with a shared session ID.
type SessionLogger struct {
	*Logger
	sessionID string
}

func (s *SessionLogger) SessionStart(event *SessionStart) error {
	return s.record(s.sessionID, func(le *LogEntry) { le.SessionStart = event })
}

func (s *SessionLogger) SessionEnd() error {
	return s.record(s.sessionID, func(le *LogEntry) { le.SessionEnd = &SessionEnd{} })
}

func (s *SessionLogger) CommandRun(event *CommandRun) error {
	return s.record(s.sessionID, func(le *LogEntry) { le.CommandRun = event })
}

func (s *SessionLogger) JobChange(event *JobChange) error {
	return s.record(s.sessionID, func(le *LogEntry) { le.JobChange = event })
}

func (s *SessionLogger) AliasCycle(alias string) error {
	return s.record(s.sessionID, func(le *LogEntry) { le.AliasCycle = &AliasCycle{Alias: alias} })
}

func (s *SessionLogger) ParseFailure(event *ParseFailure) error {
	return s.record(s.sessionID, func(le *LogEntry) { le.ParseFailure = event })
}

func (s *SessionLogger) Panic(value string) error {
	return s.record(s.sessionID, func(le *LogEntry) { le.Panic = &Panic{Value: fmt.Sprint(value)} })
}
