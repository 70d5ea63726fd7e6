// Package shell ties the pieces together: it owns the environment, alias
// table, job table and history of one interactive session and implements
// the execution context the builtins and the runner operate on.
package shell

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"josephlewis.net/gosh/core/builtin"
	"josephlewis.net/gosh/core/config"
	"josephlewis.net/gosh/core/expand"
	"josephlewis.net/gosh/core/job"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/plugin"
	"josephlewis.net/gosh/core/run"
)

const (
	EnvHome     = "HOME"
	EnvPWD      = "PWD"
	EnvOldPWD   = "OLDPWD"
	EnvPath     = "PATH"
	EnvPrompt   = "PS1"
	EnvPrompt2  = "PS2"
	EnvHostname = "HOSTNAME"
	EnvUser     = "USER"

	DefaultPrompt = `\u@\h:\w\$ `
	DefaultPath   = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// Shell is one shell instance. All mutable state lives here rather than in
// package globals, so independent instances (local REPL, network sessions,
// tests) never interfere.
type Shell struct {
	fs  afero.Fs
	log *logger.SessionLogger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	runner *run.Runner

	// HistoryFile, when set before Run, makes the line editor persist
	// history across sessions.
	HistoryFile string

	// mu guards the tables below; background jobs finish on their own
	// goroutines and builtins may read concurrently.
	mu          sync.Mutex
	env         map[string]string
	aliases     map[string]string
	cwd         string
	history     []string
	historySize int

	opts     run.Options
	builtins map[string]run.Builtin
	plugins  *plugin.Manager
	jobs     *job.Manager

	exitRequested bool
	exitCode      int
}

// New builds a shell from the configuration with the given terminal
// streams. The environment is seeded from the process environment overlaid
// with the configuration's exports.
func New(cfg *config.Configuration, log *logger.SessionLogger, stdin io.Reader, stdout, stderr io.Writer) *Shell {
	s := &Shell{
		fs:          afero.NewOsFs(),
		log:         log,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		env:         make(map[string]string),
		aliases:     make(map[string]string),
		historySize: cfg.HistorySize,
		builtins:    builtin.Registry(),
		plugins:     plugin.NewManager(),
		jobs:        job.NewManager(),
		opts: run.Options{
			Pipefail:      cfg.Pipefail,
			Stream:        cfg.StreamOutput,
			TimeoutMillis: cfg.TimeoutMillis,
			KillSignal:    cfg.KillSignal,
		},
	}

	for _, kv := range os.Environ() {
		split := strings.SplitN(kv, "=", 2)
		if len(split) == 2 {
			s.env[split[0]] = split[1]
		}
	}
	for k, v := range cfg.Exports {
		s.env[k] = v
	}
	for k, v := range cfg.Aliases {
		s.aliases[k] = v
	}

	if s.env[EnvPath] == "" {
		s.env[EnvPath] = DefaultPath
	}
	if s.env[EnvPrompt] == "" {
		s.env[EnvPrompt] = cfg.Prompt
	}
	if s.env[EnvHostname] == "" {
		if host, err := os.Hostname(); err == nil {
			s.env[EnvHostname] = host
		}
	}

	s.cwd = "/"
	if wd, err := os.Getwd(); err == nil {
		s.cwd = wd
	}
	s.env[EnvPWD] = s.cwd

	s.runner = &run.Runner{
		Ctx: s,
		Fs:  s.fs,
		Log: log,
		Expander: &expand.Expander{
			Lookup: s.LookupAlias,
			Getenv: s.Getenv,
			Getwd:  s.Getwd,
			Warnf: func(format string, args ...interface{}) {
				fmt.Fprintf(s.stderr, "gosh: "+format+"\n", args...)
				if len(args) > 0 {
					s.log.AliasCycle(fmt.Sprint(args[0]))
				}
			},
		},
	}

	return s
}

// Execute runs one input line to completion and returns its aggregate
// result. A panic anywhere below is converted into an exit code 1 result
// so a broken command can not take down the session.
func (s *Shell) Execute(line string) (res run.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Panic(fmt.Sprint(r))
			res = run.Result{
				ExitCode: run.ExitFailure,
				Stderr:   fmt.Sprintf("gosh: internal error: %v\n", r),
			}
		}
	}()

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return run.Result{ExitCode: run.ExitSuccess}
	}

	s.appendHistory(trimmed)
	res = s.runner.RunLine(line)
	s.jobs.ClearForeground()
	return res
}

// Runner exposes the underlying executor, mainly so callers can install a
// continuation line reader for here-documents.
func (s *Shell) Runner() *run.Runner {
	return s.runner
}

func (s *Shell) appendHistory(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, line)
	if s.historySize > 0 && len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// Getenv implements run.Context.
func (s *Shell) Getenv(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env[key]
}

func (s *Shell) Setenv(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env[key] = value
}

func (s *Shell) Unsetenv(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.env, key)
}

func (s *Shell) Environ() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.env))
	for k, v := range s.env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ChildEnviron adds color hints so spawned commands render like they would
// on a real terminal even though their output is captured.
func (s *Shell) ChildEnviron() []string {
	return append(s.Environ(), "FORCE_COLOR=1", "CLICOLOR=1")
}

func (s *Shell) Getwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Chdir changes the working directory, updating PWD and OLDPWD. The shell
// tracks its own directory instead of calling os.Chdir so concurrent
// sessions in one process stay independent.
func (s *Shell) Chdir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.cwd, dir)
	}
	dir = filepath.Clean(dir)

	info, err := s.fs.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}

	s.env[EnvOldPWD] = s.cwd
	s.cwd = dir
	s.env[EnvPWD] = dir
	return nil
}

func (s *Shell) LookupAlias(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.aliases[name]
	return value, ok
}

func (s *Shell) SetAlias(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[name] = value
}

func (s *Shell) UnsetAlias(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.aliases[name]
	delete(s.aliases, name)
	return ok
}

func (s *Shell) Aliases() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

func (s *Shell) Builtins() map[string]run.Builtin {
	return s.builtins
}

func (s *Shell) Plugins() *plugin.Manager {
	return s.plugins
}

func (s *Shell) Jobs() *job.Manager {
	return s.jobs
}

func (s *Shell) Options() *run.Options {
	return &s.opts
}

func (s *Shell) TerminalIn() io.Reader {
	return s.stdin
}

func (s *Shell) TerminalOut() io.Writer {
	return s.stdout
}

func (s *Shell) TerminalErr() io.Writer {
	return s.stderr
}

func (s *Shell) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

func (s *Shell) RequestExit(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitRequested = true
	s.exitCode = code
}

// ExitRequested reports whether a builtin asked the session to stop, and
// with which code.
func (s *Shell) ExitRequested() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitRequested, s.exitCode
}

var _ run.Context = (*Shell)(nil)
