package builtin

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"josephlewis.net/gosh/core/job"
	"josephlewis.net/gosh/core/plugin"
	"josephlewis.net/gosh/core/run"
)

// testCtx is a minimal shell context for builtin tests.
type testCtx struct {
	env      map[string]string
	aliases  map[string]string
	cwd      string
	history  []string
	opts     run.Options
	jobs     *job.Manager
	plugins  *plugin.Manager
	exitCode int
	exited   bool
}

func newTestCtx() *testCtx {
	return &testCtx{
		env: map[string]string{
			"HOME": "/home/test",
			"PATH": "/usr/bin:/bin",
		},
		aliases: make(map[string]string),
		cwd:     "/home/test",
		jobs:    job.NewManager(),
		plugins: plugin.NewManager(),
	}
}

func (c *testCtx) Getenv(key string) string { return c.env[key] }
func (c *testCtx) Setenv(key, value string) { c.env[key] = value }
func (c *testCtx) Unsetenv(key string)      { delete(c.env, key) }
func (c *testCtx) Environ() []string {
	var out []string
	for k, v := range c.env {
		out = append(out, k+"="+v)
	}
	return out
}
func (c *testCtx) ChildEnviron() []string { return c.Environ() }
func (c *testCtx) Getwd() string          { return c.cwd }
func (c *testCtx) Chdir(dir string) error {
	c.cwd = dir
	return nil
}
func (c *testCtx) LookupAlias(name string) (string, bool) {
	v, ok := c.aliases[name]
	return v, ok
}
func (c *testCtx) SetAlias(name, value string) { c.aliases[name] = value }
func (c *testCtx) UnsetAlias(name string) bool {
	_, ok := c.aliases[name]
	delete(c.aliases, name)
	return ok
}
func (c *testCtx) Aliases() map[string]string {
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}
func (c *testCtx) Builtins() map[string]run.Builtin { return Registry() }
func (c *testCtx) Plugins() *plugin.Manager         { return c.plugins }
func (c *testCtx) Jobs() *job.Manager               { return c.jobs }
func (c *testCtx) Options() *run.Options            { return &c.opts }
func (c *testCtx) TerminalIn() io.Reader            { return strings.NewReader("") }
func (c *testCtx) TerminalOut() io.Writer           { return io.Discard }
func (c *testCtx) TerminalErr() io.Writer           { return io.Discard }
func (c *testCtx) History() []string                { return c.history }
func (c *testCtx) RequestExit(code int) {
	c.exited = true
	c.exitCode = code
}

func TestRegistryHasCoreBuiltins(t *testing.T) {
	registry := Registry()
	for _, name := range []string{
		"cd", "pwd", "exit", "true", "false", "echo",
		"export", "unset", "env", "alias", "unalias", "set",
		"jobs", "fg", "bg", "disown", "wait", "kill",
		"help", "history", "type",
	} {
		assert.Contains(t, registry, name)
	}
}

func TestCd(t *testing.T) {
	ctx := newTestCtx()

	t.Run("explicit", func(t *testing.T) {
		res := Cd([]string{"/tmp"}, ctx)
		assert.Equal(t, run.ExitSuccess, res.ExitCode)
		assert.Equal(t, "/tmp", ctx.cwd)
	})

	t.Run("home", func(t *testing.T) {
		res := Cd(nil, ctx)
		assert.Equal(t, run.ExitSuccess, res.ExitCode)
		assert.Equal(t, "/home/test", ctx.cwd)
	})

	t.Run("dash", func(t *testing.T) {
		ctx.env["OLDPWD"] = "/var/log"
		res := Cd([]string{"-"}, ctx)
		assert.Equal(t, run.ExitSuccess, res.ExitCode)
		assert.Equal(t, "/var/log\n", res.Stdout)
	})

	t.Run("too many args", func(t *testing.T) {
		res := Cd([]string{"a", "b"}, ctx)
		assert.Equal(t, run.ExitFailure, res.ExitCode)
		assert.Contains(t, res.Stderr, "too many arguments")
	})
}

func TestPwd(t *testing.T) {
	ctx := newTestCtx()
	res := Pwd(nil, ctx)
	assert.Equal(t, "/home/test\n", res.Stdout)
}

func TestExportAndUnset(t *testing.T) {
	ctx := newTestCtx()

	res := Export([]string{"FOO=bar"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Equal(t, "bar", ctx.env["FOO"])

	res = Unset([]string{"FOO"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	_, ok := ctx.env["FOO"]
	assert.False(t, ok)
}

func TestExportListing(t *testing.T) {
	ctx := newTestCtx()
	res := Export(nil, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Contains(t, res.Stdout, "declare -x HOME=/home/test")
}

func TestAlias(t *testing.T) {
	ctx := newTestCtx()

	res := Alias([]string{"ll=ls -la"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Equal(t, "ls -la", ctx.aliases["ll"])

	res = Alias([]string{"ll"}, ctx)
	assert.Equal(t, "alias ll='ls -la'\n", res.Stdout)

	res = Alias(nil, ctx)
	assert.Contains(t, res.Stdout, "alias ll='ls -la'")

	res = Alias([]string{"nope"}, ctx)
	assert.Equal(t, run.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "not found")
}

func TestUnalias(t *testing.T) {
	ctx := newTestCtx()
	ctx.aliases["ll"] = "ls -la"
	ctx.aliases["la"] = "ls -A"

	res := Unalias([]string{"ll"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	_, ok := ctx.aliases["ll"]
	assert.False(t, ok)

	res = Unalias([]string{"-a"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Empty(t, ctx.aliases)

	res = Unalias([]string{"ghost"}, ctx)
	assert.Equal(t, run.ExitFailure, res.ExitCode)
}

func TestSetOptions(t *testing.T) {
	ctx := newTestCtx()

	res := Set([]string{"-o", "pipefail"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.True(t, ctx.opts.Pipefail)

	res = Set([]string{"+o", "pipefail"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.False(t, ctx.opts.Pipefail)

	res = Set(nil, ctx)
	assert.Contains(t, res.Stdout, "pipefail\toff")

	res = Set([]string{"-o", "bogus"}, ctx)
	assert.Equal(t, run.ExitUsage, res.ExitCode)
}

func TestEcho(t *testing.T) {
	ctx := newTestCtx()

	cases := map[string]struct {
		args []string
		want string
	}{
		"plain":            {args: []string{"hello", "world"}, want: "hello world\n"},
		"no newline":       {args: []string{"-n", "hi"}, want: "hi"},
		"escapes":          {args: []string{"-e", `a\tb`}, want: "a\tb\n"},
		"escapes off":      {args: []string{`a\tb`}, want: `a\tb` + "\n"},
		"unknown dash arg": {args: []string{"-x", "y"}, want: "-x y\n"},
		"combined flags":   {args: []string{"-ne", `a\n`}, want: "a\n"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			res := Echo(tc.args, ctx)
			assert.Equal(t, run.ExitSuccess, res.ExitCode)
			assert.Equal(t, tc.want, res.Stdout)
		})
	}
}

func TestExit(t *testing.T) {
	ctx := newTestCtx()

	res := Exit([]string{"3"}, ctx)
	assert.Equal(t, 3, res.ExitCode)
	assert.True(t, ctx.exited)
	assert.Equal(t, 3, ctx.exitCode)

	ctx = newTestCtx()
	res = Exit([]string{"nope"}, ctx)
	assert.Equal(t, run.ExitUsage, res.ExitCode)
	assert.True(t, ctx.exited)
}

func TestHistory(t *testing.T) {
	ctx := newTestCtx()
	ctx.history = []string{"echo a", "ls"}

	res := History(nil, ctx)
	assert.Contains(t, res.Stdout, "    1  echo a")
	assert.Contains(t, res.Stdout, "    2  ls")
}

func TestType(t *testing.T) {
	ctx := newTestCtx()
	ctx.aliases["ll"] = "ls -la"

	res := Type([]string{"ll", "cd"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Contains(t, res.Stdout, "ll is aliased to `ls -la'")
	assert.Contains(t, res.Stdout, "cd is a shell builtin")

	res = Type([]string{"definitely-not-a-command-xyz"}, ctx)
	assert.Equal(t, run.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "not found")
}

func TestJobsListing(t *testing.T) {
	ctx := newTestCtx()
	ctx.jobs.AddJob("sleep 100 &", nil, true)

	res := Jobs(nil, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Contains(t, res.Stdout, "[1]")
	assert.Contains(t, res.Stdout, "Running")
	assert.Contains(t, res.Stdout, "sleep 100 &")
}

func TestDisown(t *testing.T) {
	ctx := newTestCtx()
	ctx.jobs.AddJob("sleep 100 &", nil, true)

	res := Disown([]string{"%1"}, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Empty(t, ctx.jobs.Jobs())

	res = Disown([]string{"%9"}, ctx)
	assert.Equal(t, run.ExitFailure, res.ExitCode)
}

func TestWaitForDoneJob(t *testing.T) {
	ctx := newTestCtx()
	j := ctx.jobs.AddJob("work &", nil, true)
	ctx.jobs.MarkDone(j.ID, 5)

	res := Wait([]string{"%1"}, ctx)
	assert.Equal(t, 5, res.ExitCode)
	assert.Empty(t, ctx.jobs.Jobs(), "waited jobs are removed")
}

func TestHelp(t *testing.T) {
	ctx := newTestCtx()
	res := Help(nil, ctx)
	assert.Equal(t, run.ExitSuccess, res.ExitCode)
	assert.Contains(t, res.Stdout, "cd")
	assert.Contains(t, res.Stdout, "Change the working directory.")
}
