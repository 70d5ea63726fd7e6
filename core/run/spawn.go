package run

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"josephlewis.net/gosh/core/parse"
	"josephlewis.net/gosh/core/redirect"
)

// externRun is a maximal run of consecutive external stages connected by
// real OS pipes.
type externRun struct {
	stages []*parse.Command
	// firstInput is the stdin of the first stage: carry-over bytes from
	// an upstream in-process stage, the terminal, or nil for none.
	firstInput io.Reader
	// stream mirrors the last stage's stdout/stderr to the terminal
	// live while still capturing it.
	stream     bool
	background bool
	jobID      int
}

type externResult struct {
	exitCodes []int
	stderrs   []string
	stdout    string
	streamed  bool
	timedOut  bool
}

// runExternals spawns every stage of the run before waiting on any of
// them, so pipeline stages execute concurrently and pipe backpressure
// works the way processes expect.
func (r *Runner) runExternals(er externRun) externResult {
	n := len(er.stages)
	out := externResult{
		exitCodes: make([]int, n),
		stderrs:   make([]string, n),
	}

	cwd := r.Ctx.Getwd()
	env := r.Ctx.ChildEnviron()

	cmds := make([]*osexec.Cmd, n)
	plans := make([]*redirect.Plan, n)
	errBufs := make([]*bytes.Buffer, n)
	var outBuf bytes.Buffer
	// Parent-side pipe fds to close once the children hold them.
	var parentClosers []io.Closer

	var nextStdin io.Reader = er.firstInput

	for k, c := range er.stages {
		// Resolve against the shell's PATH, not the parent process's.
		// Relative paths are anchored at the shell's working directory.
		name := c.Name
		if strings.Contains(name, "/") && !filepath.IsAbs(name) {
			name = filepath.Join(cwd, name)
		}
		execPath, lookErr := LookPath(r.Ctx.Getenv("PATH"), name)
		if lookErr != nil {
			out.exitCodes[k] = ExitNotFound
			out.stderrs[k] = fmt.Sprintf("gosh: %s: command not found\n", c.Name)
			nextStdin = nil
			continue
		}

		cmd := osexec.Command(execPath, c.Args...)
		cmd.Args = append([]string{c.Name}, c.Args...)
		cmd.Dir = cwd
		cmd.Env = env

		redirs := effectiveRedirs(c)
		plan, err := redirect.OutputPlan(redirs, cwd, r.Fs)
		if err != nil {
			out.exitCodes[k] = ExitFailure
			out.stderrs[k] = fmt.Sprintf("gosh: %v\n", err)
			nextStdin = nil
			continue
		}
		plans[k] = plan

		// Stdin: an explicit input redirection always wins; otherwise
		// the wire from the previous stage (or the run's first input).
		if text, ok, rerr := redirect.StdinReader(redirs, cwd, r.Fs); ok {
			if rerr != nil {
				plan.Close()
				plans[k] = nil
				out.exitCodes[k] = ExitFailure
				out.stderrs[k] = fmt.Sprintf("gosh: %v\n", rerr)
				nextStdin = nil
				continue
			}
			cmd.Stdin = strings.NewReader(text)
		} else {
			cmd.Stdin = nextStdin
		}
		nextStdin = nil

		// Default stdout: a real pipe to the next stage, or capture
		// for the last one.
		errBufs[k] = &bytes.Buffer{}
		var stdout io.Writer
		var stderr io.Writer = errBufs[k]

		if k < n-1 {
			pr, pw, perr := os.Pipe()
			if perr != nil {
				plan.Close()
				plans[k] = nil
				out.exitCodes[k] = ExitFailure
				out.stderrs[k] = fmt.Sprintf("gosh: %v\n", perr)
				continue
			}
			stdout = pw
			nextStdin = pr
			parentClosers = append(parentClosers, pr, pw)
		} else {
			stdout = &outBuf
		}

		if plan.Stdout != nil {
			stdout = plan.Stdout
		}
		if plan.Stderr != nil {
			stderr = plan.Stderr
		}
		if plan.MergeStderrIntoStdout {
			stderr = stdout
		}
		if plan.MergeStdoutIntoStderr {
			stdout = stderr
		}

		// Stream only when the last stage's stdout still goes to the
		// default capture buffer, not to a redirection target. Stderr is
		// always buffered so diagnostics print exactly once.
		if k == n-1 && er.stream && stdout == io.Writer(&outBuf) {
			stdout = io.MultiWriter(r.Ctx.TerminalOut(), &outBuf)
			out.streamed = true
		}

		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmds[k] = cmd
	}

	// Start every stage before waiting on any. The first started process
	// leads a new process group and the rest join it, so job signals can
	// target the whole pipeline without reaching the shell, and kernel
	// terminal signals never reach the children directly.
	var procs []*os.Process
	var pgid int
	attached := false
	for k, cmd := range cmds {
		if cmd == nil {
			continue
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
		if err := cmd.Start(); err != nil {
			out.exitCodes[k] = ExitNotFound
			out.stderrs[k] = spawnFailureMessage(er.stages[k].Name, err)
			cmds[k] = nil
			continue
		}
		procs = append(procs, cmd.Process)
		if pgid == 0 {
			pgid = cmd.Process.Pid
		}
		if !attached && er.jobID > 0 {
			r.Ctx.Jobs().AttachProcess(er.jobID, cmd.Process)
			attached = true
		}
	}

	// The children own the pipe fds now; release the parent copies so
	// readers see EOF and writers see EPIPE when a peer exits.
	for _, c := range parentClosers {
		c.Close()
	}

	// Foreground commands are bounded by the configured timeout.
	var timedOut bool
	var timedOutMu sync.Mutex
	var timer *time.Timer
	if !er.background && r.Ctx.Options().TimeoutMillis > 0 {
		sig := r.Ctx.Options().Signal()
		timer = time.AfterFunc(time.Duration(r.Ctx.Options().TimeoutMillis)*time.Millisecond, func() {
			timedOutMu.Lock()
			timedOut = true
			timedOutMu.Unlock()
			for _, p := range procs {
				p.Signal(sig)
			}
		})
	}

	for k, cmd := range cmds {
		if cmd == nil {
			continue
		}
		out.exitCodes[k] = exitCodeFromError(cmd.Wait())
		if plans[k] != nil {
			plans[k].Close()
		}
	}

	if timer != nil {
		timer.Stop()
	}
	timedOutMu.Lock()
	out.timedOut = timedOut
	timedOutMu.Unlock()

	// Assemble stderr per stage in pipeline order.
	for k := range er.stages {
		if errBufs[k] != nil && errBufs[k].Len() > 0 {
			out.stderrs[k] += errBufs[k].String()
		}
	}

	out.stdout = outBuf.String()
	if redirect.StdoutDiverted(effectiveRedirs(er.stages[n-1])) {
		out.stdout = ""
	}

	// When streaming left the cursor mid-line, finish the line before
	// the next prompt renders.
	if out.streamed && len(out.stdout) > 0 && !strings.HasSuffix(out.stdout, "\n") {
		fmt.Fprintln(r.Ctx.TerminalOut())
	}

	return out
}

// stageInput resolves the stdin source for the first stage of an external
// run. Later stages are wired by pipes inside runExternals.
func (r *Runner) stageInput(c *parse.Command, i int, carry string) io.Reader {
	// Explicit input redirections are handled per stage in runExternals.
	if redirect.HasInput(effectiveRedirs(c)) {
		return nil
	}
	if i > 0 {
		return strings.NewReader(carry)
	}
	// Hand the terminal to the child only when it is a real file, so
	// the descriptor is inherited directly. Copying from an arbitrary
	// reader would steal buffered input from the line editor.
	if f, ok := r.Ctx.TerminalIn().(*os.File); ok {
		return f
	}
	return nil
}

func spawnFailureMessage(name string, err error) string {
	if errors.Is(err, osexec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return fmt.Sprintf("gosh: %s: command not found\n", name)
	}
	return fmt.Sprintf("gosh: %s: %v\n", name, err)
}

// exitCodeFromError converts a Wait error into a shell exit code,
// including the 128+signal convention for signal-terminated processes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *osexec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return ExitSignalBase + int(ws.Signal())
			}
			return ws.ExitStatus()
		}
		return ee.ExitCode()
	}
	return ExitFailure
}
