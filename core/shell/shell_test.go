package shell

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"josephlewis.net/gosh/core/config"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/run"
)

// newTestShell builds a shell on an in-memory filesystem with a fixed
// environment so tests never see the host's.
func newTestShell(t *testing.T) (*Shell, *strings.Builder, *strings.Builder) {
	t.Helper()

	cfg := config.Default()
	var stdout, stderr strings.Builder
	s := New(cfg, logger.NewNopLogger().NewSession(), strings.NewReader(""), &stdout, &stderr)

	fs := afero.NewMemMapFs()
	assert.Nil(t, fs.MkdirAll("/home/test/docs", 0755))
	assert.Nil(t, fs.MkdirAll("/var/log", 0755))
	s.fs = fs
	s.runner.Fs = fs

	s.env = map[string]string{
		EnvHome:     "/home/test",
		EnvUser:     "test",
		EnvHostname: "box",
		EnvPath:     "/usr/bin:/bin",
		EnvPrompt:   DefaultPrompt,
	}
	s.cwd = "/home/test"
	s.env[EnvPWD] = s.cwd
	return s, &stdout, &stderr
}

func TestExecuteBuiltin(t *testing.T) {
	s, _, _ := newTestShell(t)

	res := s.Execute("echo hello")
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, []string{"echo hello"}, s.History())
}

func TestExecuteBlankLine(t *testing.T) {
	s, _, _ := newTestShell(t)

	res := s.Execute("   ")
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Empty(t, s.History(), "blank lines stay out of history")
}

func TestHistoryCap(t *testing.T) {
	s, _, _ := newTestShell(t)
	s.historySize = 2

	s.Execute("echo one")
	s.Execute("echo two")
	s.Execute("echo three")

	assert.Equal(t, []string{"echo two", "echo three"}, s.History())
}

func TestAliasesSeededFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Aliases = map[string]string{"greet": "echo hello"}

	var stdout, stderr strings.Builder
	s := New(cfg, logger.NewNopLogger().NewSession(), strings.NewReader(""), &stdout, &stderr)

	value, ok := s.LookupAlias("greet")
	assert.True(t, ok)
	assert.Equal(t, "echo hello", value)

	res := s.Execute("greet world")
	assert.Equal(t, "hello world\n", res.Stdout)
}

func TestExitRequest(t *testing.T) {
	s, _, _ := newTestShell(t)

	done, _ := s.ExitRequested()
	assert.False(t, done)

	res := s.Execute("exit 4")
	assert.Equal(t, 4, res.ExitCode)

	done, code := s.ExitRequested()
	assert.True(t, done)
	assert.Equal(t, 4, code)
}

func TestChdir(t *testing.T) {
	s, _, _ := newTestShell(t)

	t.Run("absolute", func(t *testing.T) {
		assert.Nil(t, s.Chdir("/var/log"))
		assert.Equal(t, "/var/log", s.Getwd())
		assert.Equal(t, "/var/log", s.Getenv(EnvPWD))
		assert.Equal(t, "/home/test", s.Getenv(EnvOldPWD))
	})

	t.Run("relative", func(t *testing.T) {
		assert.Nil(t, s.Chdir("/home/test"))
		assert.Nil(t, s.Chdir("docs"))
		assert.Equal(t, "/home/test/docs", s.Getwd())
	})

	t.Run("missing", func(t *testing.T) {
		before := s.Getwd()
		assert.NotNil(t, s.Chdir("/no/such/dir"))
		assert.Equal(t, before, s.Getwd(), "failed chdir leaves cwd alone")
	})
}

func TestChildEnviron(t *testing.T) {
	s, _, _ := newTestShell(t)

	env := s.ChildEnviron()
	assert.Contains(t, env, "FORCE_COLOR=1")
	assert.Contains(t, env, "CLICOLOR=1")
	assert.Contains(t, env, "HOME=/home/test")
}

func TestPrompt(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	s, _, _ := newTestShell(t)
	s.env[EnvPrompt] = `\u@\h:\w> `

	assert.Equal(t, "test@box:~> ", s.Prompt())

	assert.Nil(t, s.Chdir("docs"))
	assert.Equal(t, "test@box:~/docs> ", s.Prompt())

	assert.Nil(t, s.Chdir("/var/log"))
	assert.Equal(t, "test@box:/var/log> ", s.Prompt())
}

func TestContinuationPrompt(t *testing.T) {
	s, _, _ := newTestShell(t)

	assert.Equal(t, "> ", s.continuationPrompt())
	s.Setenv(EnvPrompt2, ">> ")
	assert.Equal(t, ">> ", s.continuationPrompt())
}

type panicBuiltin struct{}

func (panicBuiltin) Execute(args []string, ctx run.Context) run.Result { panic("kaboom") }
func (panicBuiltin) Description() string                               { return "always panics" }

func TestExecuteRecoversPanics(t *testing.T) {
	s, _, _ := newTestShell(t)
	s.builtins["boom"] = panicBuiltin{}

	res := s.Execute("boom")
	assert.Equal(t, run.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "internal error")
	assert.Contains(t, res.Stderr, "kaboom")
}

func TestNotifyReaped(t *testing.T) {
	s, stdout, _ := newTestShell(t)

	j := s.jobs.AddJob("sleep 1 &", nil, true)
	s.jobs.MarkDone(j.ID, 0)
	s.notifyReaped()
	assert.Contains(t, stdout.String(), "[1]  Done  sleep 1 &")

	stdout.Reset()
	j2 := s.jobs.AddJob("false &", nil, true)
	s.jobs.MarkDone(j2.ID, 1)
	s.notifyReaped()
	assert.Contains(t, stdout.String(), "Exit 1")
}

func TestPrintResultSkipsStreamedStdout(t *testing.T) {
	s, stdout, stderr := newTestShell(t)

	s.printResult(run.Result{Stdout: "already shown", Streamed: true, Stderr: "oops\n"})
	assert.Empty(t, stdout.String())
	assert.Equal(t, "oops\n", stderr.String())

	s.printResult(run.Result{Stdout: "buffered\n"})
	assert.Equal(t, "buffered\n", stdout.String())
}
