package builtin

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"syscall"

	"josephlewis.net/gosh/core/job"
	"josephlewis.net/gosh/core/run"
)

// Jobs lists the shell's job table.
func Jobs(args []string, ctx run.Context) run.Result {
	cmd := &SimpleCommand{
		Use:   "jobs [-l]",
		Short: "List active jobs.",
	}
	long := cmd.Flags().BoolLong("long", 'l', "also print process ids")

	return cmd.Run("jobs", args, func(stdout, stderr io.Writer, args []string) int {
		for _, j := range ctx.Jobs().Jobs() {
			if *long {
				fmt.Fprintf(stdout, "[%d]  %d  %-8s  %s\n", j.ID, j.PID, statusLabel(j.Status), j.Command)
			} else {
				fmt.Fprintf(stdout, "[%d]  %-8s  %s\n", j.ID, statusLabel(j.Status), j.Command)
			}
		}
		return run.ExitSuccess
	})
}

// Fg resumes a job in the foreground and waits for it to finish. With no
// argument it targets the most recent job.
func Fg(args []string, ctx run.Context) run.Result {
	id, err := resolveJobSpec(ctx, args, "fg")
	if err != nil {
		return failf(run.ExitFailure, "fg: %v\n", err)
	}

	j, err := ctx.Jobs().ResumeJobForeground(id)
	if err != nil {
		return failf(run.ExitFailure, "fg: %v\n", err)
	}

	stdout := j.Command + "\n"
	done := ctx.Jobs().WaitForJob(id)
	ctx.Jobs().ClearForeground()
	if done == nil {
		return run.Result{ExitCode: run.ExitFailure, Stdout: stdout}
	}
	ctx.Jobs().RemoveJob(id, false)
	return run.Result{ExitCode: done.ExitCode, Stdout: stdout}
}

// Bg resumes a stopped job in the background.
func Bg(args []string, ctx run.Context) run.Result {
	id, err := resolveJobSpec(ctx, args, "bg")
	if err != nil {
		return failf(run.ExitFailure, "bg: %v\n", err)
	}

	j, err := ctx.Jobs().ResumeJobBackground(id)
	if err != nil {
		return failf(run.ExitFailure, "bg: %v\n", err)
	}
	return run.Result{
		ExitCode: run.ExitSuccess,
		Stdout:   fmt.Sprintf("[%d] %s &\n", j.ID, j.Command),
	}
}

// Disown drops jobs from the table without signaling them. Disowned jobs
// keep running but the shell stops tracking them.
func Disown(args []string, ctx run.Context) run.Result {
	if len(args) == 0 {
		id, err := resolveJobSpec(ctx, args, "disown")
		if err != nil {
			return failf(run.ExitFailure, "disown: %v\n", err)
		}
		args = []string{fmt.Sprintf("%%%d", id)}
	}

	code := run.ExitSuccess
	var stderr strings.Builder
	for _, arg := range args {
		id, err := parseJobSpec(arg)
		if err != nil {
			fmt.Fprintf(&stderr, "disown: %v\n", err)
			code = run.ExitFailure
			continue
		}
		if !ctx.Jobs().RemoveJob(id, true) {
			fmt.Fprintf(&stderr, "disown: %%%d: no such job\n", id)
			code = run.ExitFailure
		}
	}
	return run.Result{ExitCode: code, Stderr: stderr.String()}
}

// Wait blocks until the named jobs finish, or until every job finishes
// when called without arguments.
func Wait(args []string, ctx run.Context) run.Result {
	if len(args) == 0 {
		for _, j := range ctx.Jobs().Jobs() {
			ctx.Jobs().WaitForJob(j.ID)
			ctx.Jobs().RemoveJob(j.ID, false)
		}
		return run.Result{ExitCode: run.ExitSuccess}
	}

	code := run.ExitSuccess
	var stderr strings.Builder
	for _, arg := range args {
		id, err := parseJobSpec(arg)
		if err != nil {
			fmt.Fprintf(&stderr, "wait: %v\n", err)
			code = run.ExitFailure
			continue
		}
		done := ctx.Jobs().WaitForJob(id)
		if done == nil {
			fmt.Fprintf(&stderr, "wait: %%%d: no such job\n", id)
			code = run.ExitFailure
			continue
		}
		code = done.ExitCode
		ctx.Jobs().RemoveJob(id, false)
	}
	return run.Result{ExitCode: code, Stderr: stderr.String()}
}

// Kill delivers a signal to jobs (%N) or raw process ids.
func Kill(args []string, ctx run.Context) run.Result {
	sig := syscall.SIGTERM
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		parsed, err := parseSignal(strings.TrimPrefix(args[0], "-"))
		if err != nil {
			return failf(run.ExitUsage, "kill: %v\n", err)
		}
		sig = parsed
		args = args[1:]
	}
	if len(args) == 0 {
		return failf(run.ExitUsage, "kill: usage: kill [-signal] pid|%%job ...\n")
	}

	code := run.ExitSuccess
	var stderr strings.Builder
	for _, arg := range args {
		if strings.HasPrefix(arg, "%") {
			id, err := parseJobSpec(arg)
			if err != nil {
				fmt.Fprintf(&stderr, "kill: %v\n", err)
				code = run.ExitFailure
				continue
			}
			if err := ctx.Jobs().TerminateJob(id, sig); err != nil {
				fmt.Fprintf(&stderr, "kill: %v\n", err)
				code = run.ExitFailure
			}
			continue
		}

		pid, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(&stderr, "kill: %s: arguments must be process or job ids\n", arg)
			code = run.ExitFailure
			continue
		}
		if err := syscall.Kill(pid, sig); err != nil {
			fmt.Fprintf(&stderr, "kill: (%d): %v\n", pid, err)
			code = run.ExitFailure
		}
	}
	return run.Result{ExitCode: code, Stderr: stderr.String()}
}

// resolveJobSpec resolves the optional job argument of fg/bg style
// builtins, defaulting to the most recently created live job.
func resolveJobSpec(ctx run.Context, args []string, name string) (int, error) {
	switch len(args) {
	case 0:
		jobs := ctx.Jobs().Jobs()
		if len(jobs) == 0 {
			return 0, fmt.Errorf("no current job")
		}
		return jobs[len(jobs)-1].ID, nil
	case 1:
		return parseJobSpec(args[0])
	default:
		return 0, fmt.Errorf("usage: %s [%%job]", name)
	}
}

// parseJobSpec accepts "%N" or bare "N".
func parseJobSpec(spec string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(spec, "%"))
	if err != nil {
		return 0, fmt.Errorf("%s: no such job", spec)
	}
	return id, nil
}

func parseSignal(name string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return syscall.Signal(n), nil
	}
	switch strings.ToUpper(strings.TrimPrefix(name, "SIG")) {
	case "HUP":
		return syscall.SIGHUP, nil
	case "INT":
		return syscall.SIGINT, nil
	case "QUIT":
		return syscall.SIGQUIT, nil
	case "KILL":
		return syscall.SIGKILL, nil
	case "TERM":
		return syscall.SIGTERM, nil
	case "STOP":
		return syscall.SIGSTOP, nil
	case "TSTP":
		return syscall.SIGTSTP, nil
	case "CONT":
		return syscall.SIGCONT, nil
	case "USR1":
		return syscall.SIGUSR1, nil
	case "USR2":
		return syscall.SIGUSR2, nil
	}
	return 0, fmt.Errorf("%s: invalid signal specification", name)
}

func statusLabel(s job.Status) string {
	switch s {
	case job.StatusRunning:
		return "Running"
	case job.StatusStopped:
		return "Stopped"
	case job.StatusDone:
		return "Done"
	}
	return string(s)
}

func init() {
	register("jobs", "List active jobs.", Jobs)
	register("fg", "Resume a job in the foreground.", Fg)
	register("bg", "Resume a job in the background.", Bg)
	register("disown", "Stop tracking a job.", Disown)
	register("wait", "Wait for jobs to finish.", Wait)
	register("kill", "Send a signal to a job or process.", Kill)
}
