package run

import (
	"bytes"
	"io"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"josephlewis.net/gosh/core/expand"
	"josephlewis.net/gosh/core/job"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/plugin"
)

type fakeBuiltin struct {
	fn func(args []string, ctx Context) Result
}

func (f *fakeBuiltin) Execute(args []string, ctx Context) Result { return f.fn(args, ctx) }
func (f *fakeBuiltin) Description() string                       { return "test builtin" }

// fakeCtx is a minimal execution context for runner tests.
type fakeCtx struct {
	env      map[string]string
	aliases  map[string]string
	builtins map[string]Builtin
	plugins  *plugin.Manager
	jobs     *job.Manager
	opts     Options
	cwd      string
	termOut  bytes.Buffer
	termErr  bytes.Buffer
}

func newFakeCtx() *fakeCtx {
	ctx := &fakeCtx{
		env: map[string]string{
			"PATH": "/usr/local/bin:/usr/bin:/bin",
			"HOME": "/home/test",
		},
		aliases:  make(map[string]string),
		builtins: make(map[string]Builtin),
		plugins:  plugin.NewManager(),
		jobs:     job.NewManager(),
		cwd:      "/work",
	}

	ctx.builtins["echo"] = &fakeBuiltin{fn: func(args []string, _ Context) Result {
		return Result{ExitCode: ExitSuccess, Stdout: strings.Join(args, " ") + "\n"}
	}}
	ctx.builtins["true"] = &fakeBuiltin{fn: func([]string, Context) Result {
		return Result{ExitCode: ExitSuccess}
	}}
	ctx.builtins["false"] = &fakeBuiltin{fn: func([]string, Context) Result {
		return Result{ExitCode: ExitFailure}
	}}
	ctx.builtins["fail3"] = &fakeBuiltin{fn: func([]string, Context) Result {
		return Result{ExitCode: 3, Stderr: "fail3: boom\n"}
	}}

	return ctx
}

func (c *fakeCtx) Getenv(key string) string    { return c.env[key] }
func (c *fakeCtx) Setenv(key, value string)    { c.env[key] = value }
func (c *fakeCtx) Unsetenv(key string)         { delete(c.env, key) }
func (c *fakeCtx) Environ() []string           { return nil }
func (c *fakeCtx) ChildEnviron() []string      { return []string{"PATH=" + c.env["PATH"]} }
func (c *fakeCtx) Getwd() string               { return c.cwd }
func (c *fakeCtx) Chdir(dir string) error      { c.cwd = dir; return nil }
func (c *fakeCtx) SetAlias(name, value string) { c.aliases[name] = value }
func (c *fakeCtx) UnsetAlias(name string) bool { delete(c.aliases, name); return true }
func (c *fakeCtx) Aliases() map[string]string  { return c.aliases }
func (c *fakeCtx) LookupAlias(name string) (string, bool) {
	v, ok := c.aliases[name]
	return v, ok
}
func (c *fakeCtx) Builtins() map[string]Builtin { return c.builtins }
func (c *fakeCtx) Plugins() *plugin.Manager     { return c.plugins }
func (c *fakeCtx) Jobs() *job.Manager           { return c.jobs }
func (c *fakeCtx) Options() *Options            { return &c.opts }
func (c *fakeCtx) TerminalIn() io.Reader        { return strings.NewReader("") }
func (c *fakeCtx) TerminalOut() io.Writer       { return &c.termOut }
func (c *fakeCtx) TerminalErr() io.Writer       { return &c.termErr }
func (c *fakeCtx) History() []string            { return nil }
func (c *fakeCtx) RequestExit(code int)         {}

func newTestRunner(ctx *fakeCtx) *Runner {
	return &Runner{
		Ctx: ctx,
		Fs:  afero.NewMemMapFs(),
		Log: logger.NewNopLogger().Sessionless(),
		Expander: &expand.Expander{
			Lookup: ctx.LookupAlias,
			Getenv: ctx.Getenv,
			Getwd:  ctx.Getwd,
		},
	}
}

func TestRunLineSimple(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine("echo hello world")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Equal(t, "hello world\n", res.Stdout)
}

func TestRunLineEmpty(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine("   ")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Empty(t, res.Stdout)
}

func TestRunLineShortCircuit(t *testing.T) {
	cases := map[string]struct {
		line       string
		wantCode   int
		wantStdout string
	}{
		"and skips after failure":  {line: "false && echo yes", wantCode: ExitFailure, wantStdout: ""},
		"and runs after success":   {line: "true && echo yes", wantCode: ExitSuccess, wantStdout: "yes\n"},
		"or runs after failure":    {line: "false || echo rescued", wantCode: ExitSuccess, wantStdout: "rescued\n"},
		"or skips after success":   {line: "true || echo never", wantCode: ExitSuccess, wantStdout: ""},
		"sequence runs both":       {line: "echo a; echo b", wantCode: ExitSuccess, wantStdout: "a\nb\n"},
		"sequence ignores failure": {line: "false; echo b", wantCode: ExitSuccess, wantStdout: "b\n"},
		"chained":                  {line: "false && echo a || echo b", wantCode: ExitSuccess, wantStdout: "b\n"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			r := newTestRunner(newFakeCtx())
			res := r.RunLine(tc.line)
			assert.Equal(t, tc.wantCode, res.ExitCode)
			assert.Equal(t, tc.wantStdout, res.Stdout)
		})
	}
}

func TestRunLineEnvExpansion(t *testing.T) {
	ctx := newFakeCtx()
	ctx.env["NAME"] = "gosh"
	r := newTestRunner(ctx)

	res := r.RunLine("echo hello $NAME")
	assert.Equal(t, "hello gosh\n", res.Stdout)

	res = r.RunLine("echo '$NAME'")
	assert.Equal(t, "$NAME\n", res.Stdout)
}

func TestRunLineParseError(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine(`echo "unterminated`)
	assert.Equal(t, ExitUsage, res.ExitCode)
	assert.Contains(t, res.Stderr, "unterminated quoted string")
	assert.Contains(t, res.Stderr, "^")
}

func TestRunLineAliasExpansion(t *testing.T) {
	ctx := newFakeCtx()
	ctx.aliases["greet"] = `echo "hello $1"`
	r := newTestRunner(ctx)

	res := r.RunLine("greet bob")
	assert.Equal(t, "hello bob\n", res.Stdout)
}

func TestRunLineAliasChain(t *testing.T) {
	ctx := newFakeCtx()
	ctx.aliases["both"] = "echo one && echo two"
	r := newTestRunner(ctx)

	res := r.RunLine("both")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Equal(t, "one\ntwo\n", res.Stdout)
}

func TestPipelinePluginReceivesStdin(t *testing.T) {
	ctx := newFakeCtx()
	ctx.plugins.Register(&plugin.Plugin{
		Name: "textutils",
		Commands: map[string]plugin.CommandFunc{
			"upper": func(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
				data, _ := io.ReadAll(stdin)
				io.WriteString(stdout, strings.ToUpper(string(data)))
				return 0
			},
		},
	})
	r := newTestRunner(ctx)

	res := r.RunLine("echo hi | upper")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Equal(t, "HI\n", res.Stdout)
}

func TestPipelineExitCodeIsLastStage(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine("fail3 | true")
	assert.Equal(t, ExitSuccess, res.ExitCode)
}

func TestPipelinePipefail(t *testing.T) {
	ctx := newFakeCtx()
	ctx.opts.Pipefail = true
	r := newTestRunner(ctx)

	res := r.RunLine("fail3 | true")
	assert.Equal(t, 3, res.ExitCode, "pipefail reports the right-most non-zero stage")

	res = r.RunLine("true | echo done")
	assert.Equal(t, ExitSuccess, res.ExitCode)
}

func TestRedirectionToFile(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine("echo hi > out.txt")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Empty(t, res.Stdout, "redirected output must not reach the terminal")

	content, err := afero.ReadFile(r.Fs, "/work/out.txt")
	assert.Nil(t, err)
	assert.Equal(t, "hi\n", string(content))
}

func TestRedirectionAppend(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	r.RunLine("echo one > log.txt")
	r.RunLine("echo two >> log.txt")

	content, err := afero.ReadFile(r.Fs, "/work/log.txt")
	assert.Nil(t, err)
	assert.Equal(t, "one\ntwo\n", string(content))
}

func TestRedirectionMergeStderr(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine("fail3 2>&1")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "fail3: boom\n", res.Stdout)
	assert.Empty(t, res.Stderr)
}

func TestRedirectionInput(t *testing.T) {
	ctx := newFakeCtx()
	ctx.plugins.Register(&plugin.Plugin{
		Name: "textutils",
		Commands: map[string]plugin.CommandFunc{
			"slurp": func(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
				data, _ := io.ReadAll(stdin)
				stdout.Write(data)
				return 0
			},
		},
	})
	r := newTestRunner(ctx)
	assert.Nil(t, afero.WriteFile(r.Fs, "/work/data.txt", []byte("payload\n"), 0644))

	res := r.RunLine("slurp < data.txt")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Equal(t, "payload\n", res.Stdout)
}

func TestBareRedirectionCreatesFile(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine("> created.txt")
	assert.Equal(t, ExitSuccess, res.ExitCode)

	exists, err := afero.Exists(r.Fs, "/work/created.txt")
	assert.Nil(t, err)
	assert.True(t, exists)
}

func TestBackgroundReturnsImmediately(t *testing.T) {
	ctx := newFakeCtx()
	r := newTestRunner(ctx)

	res := r.RunLine("echo bg &")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Equal(t, "[1] echo bg &\n", res.Stdout)

	done := ctx.jobs.WaitForJob(1)
	if assert.NotNil(t, done) {
		assert.Equal(t, ExitSuccess, done.ExitCode)
	}
}

func TestCommandNotFound(t *testing.T) {
	r := newTestRunner(newFakeCtx())

	res := r.RunLine("definitely-not-a-command-xyz")
	assert.Equal(t, ExitNotFound, res.ExitCode)
	assert.Contains(t, res.Stderr, "command not found")
}

func TestHeredoc(t *testing.T) {
	ctx := newFakeCtx()
	ctx.plugins.Register(&plugin.Plugin{
		Name: "textutils",
		Commands: map[string]plugin.CommandFunc{
			"slurp": func(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
				data, _ := io.ReadAll(stdin)
				stdout.Write(data)
				return 0
			},
		},
	})
	r := newTestRunner(ctx)

	lines := []string{"first", "second", "EOF"}
	r.ReadLine = func() (string, error) {
		line := lines[0]
		lines = lines[1:]
		return line, nil
	}

	res := r.RunLine("slurp << EOF")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Equal(t, "first\nsecond\n", res.Stdout)
}

func TestHeredocEOFWarns(t *testing.T) {
	ctx := newFakeCtx()
	ctx.plugins.Register(&plugin.Plugin{
		Name: "textutils",
		Commands: map[string]plugin.CommandFunc{
			"slurp": func(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
				data, _ := io.ReadAll(stdin)
				stdout.Write(data)
				return 0
			},
		},
	})
	r := newTestRunner(ctx)
	r.ReadLine = func() (string, error) { return "", io.EOF }

	res := r.RunLine("slurp << EOF")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Contains(t, res.Stderr, "here-document delimited by end-of-file")
}

func TestHeredocEOFWarnsInBackground(t *testing.T) {
	ctx := newFakeCtx()
	ctx.plugins.Register(&plugin.Plugin{
		Name: "textutils",
		Commands: map[string]plugin.CommandFunc{
			"slurp": func(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
				data, _ := io.ReadAll(stdin)
				stdout.Write(data)
				return 0
			},
		},
	})
	r := newTestRunner(ctx)
	r.ReadLine = func() (string, error) { return "", io.EOF }

	res := r.RunLine("slurp << EOF &")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Contains(t, res.Stdout, "[1]")
	assert.Contains(t, res.Stderr, "here-document delimited by end-of-file")

	done := ctx.jobs.WaitForJob(1)
	if assert.NotNil(t, done) {
		assert.Equal(t, ExitSuccess, done.ExitCode)
	}
}

func TestRedirectionInputMissingFile(t *testing.T) {
	ctx := newFakeCtx()
	ctx.plugins.Register(&plugin.Plugin{
		Name: "textutils",
		Commands: map[string]plugin.CommandFunc{
			"slurp": func(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
				data, _ := io.ReadAll(stdin)
				stdout.Write(data)
				return 0
			},
		},
	})
	r := newTestRunner(ctx)

	res := r.RunLine("slurp < nope.txt")
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "nope.txt")
	assert.Empty(t, res.Stdout)
}

func TestAliasPipelineRedirectsFinalStage(t *testing.T) {
	ctx := newFakeCtx()
	ctx.aliases["shout"] = "echo hi | upper"
	ctx.plugins.Register(&plugin.Plugin{
		Name: "textutils",
		Commands: map[string]plugin.CommandFunc{
			"upper": func(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
				data, _ := io.ReadAll(stdin)
				io.WriteString(stdout, strings.ToUpper(string(data)))
				return 0
			},
		},
	})
	r := newTestRunner(ctx)

	res := r.RunLine("shout > out.txt")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Empty(t, res.Stdout)

	content, err := afero.ReadFile(r.Fs, "/work/out.txt")
	assert.Nil(t, err)
	assert.Equal(t, "HI\n", string(content))
}

func TestStreamedChainKeepsBufferedOutput(t *testing.T) {
	ctx := newFakeCtx()
	ctx.cwd = t.TempDir()
	ctx.opts.Stream = true
	r := newTestRunner(ctx)

	res := r.RunLine("/bin/echo live; echo held")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.True(t, res.Streamed)
	assert.Equal(t, "live\nheld\n", ctx.termOut.String(),
		"buffered output joining a streamed chain must reach the terminal")
}

func TestBufferedThenStreamedChainKeepsOutput(t *testing.T) {
	ctx := newFakeCtx()
	ctx.cwd = t.TempDir()
	ctx.opts.Stream = true
	r := newTestRunner(ctx)

	res := r.RunLine("echo held; /bin/echo live")
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.True(t, res.Streamed)
	assert.Contains(t, ctx.termOut.String(), "held\n")
	assert.Contains(t, ctx.termOut.String(), "live\n")
}

func TestBackgroundJobLeadsOwnProcessGroup(t *testing.T) {
	ctx := newFakeCtx()
	ctx.cwd = t.TempDir()
	r := newTestRunner(ctx)

	res := r.RunLine("sleep 5 &")
	assert.Equal(t, ExitSuccess, res.ExitCode)

	var pid int
	for i := 0; i < 200 && pid == 0; i++ {
		if j := ctx.jobs.Get(1); j != nil && j.PID != 0 {
			pid = j.PID
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !assert.NotZero(t, pid, "background process never attached") {
		return
	}

	pgid, err := syscall.Getpgid(pid)
	assert.Nil(t, err)
	assert.Equal(t, pid, pgid, "job must lead its own process group")
	assert.NotEqual(t, syscall.Getpgrp(), pgid, "job must not share the shell's group")

	assert.Nil(t, ctx.jobs.TerminateJob(1, syscall.SIGKILL))
	done := ctx.jobs.WaitForJob(1)
	if assert.NotNil(t, done) {
		assert.Equal(t, ExitSignalBase+int(syscall.SIGKILL), done.ExitCode)
	}
}
