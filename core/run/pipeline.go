package run

import (
	"fmt"
	"strings"

	"josephlewis.net/gosh/core/parse"
	"josephlewis.net/gosh/core/plugin"
	"josephlewis.net/gosh/core/redirect"
)

type stageKind int

const (
	kindBuiltin stageKind = iota
	kindPlugin
	kindExternal
	// kindRedirOnly is a bare redirection with no command name, like
	// `> file`, which creates or truncates the target.
	kindRedirOnly
)

type pipelineOpts struct {
	background bool
	// jobID attaches spawned processes to an existing job. Zero means a
	// transient foreground job is created for signal routing.
	jobID int
}

func (r *Runner) runPipeline(stages []*parse.Command, background bool) Result {
	return r.execPipeline(stages, pipelineOpts{background: background})
}

func (r *Runner) runPipelineInJob(stages []*parse.Command, jobID int) Result {
	return r.execPipeline(stages, pipelineOpts{background: true, jobID: jobID})
}

func (r *Runner) runChainInJob(head *parse.Command, jobID int) Result {
	var agg Result
	node := head
	executed := false

	for node != nil {
		stages := append([]*parse.Command{node}, node.Pipe...)
		node.Pipe = nil
		res := r.execPipeline(stages, pipelineOpts{background: true, jobID: jobID})

		if !executed {
			agg = res
			executed = true
		} else {
			agg.merge(res)
		}
		node = nextLink(node, agg.ExitCode)
	}
	return agg
}

// nextLink returns the next chain link to execute after a link completed
// with exitCode, skipping links ruled out by the short-circuit rules.
func nextLink(node *parse.Command, exitCode int) *parse.Command {
	chained := node.Next
	for chained != nil {
		switch {
		case chained.Op == parse.OpSeq,
			chained.Op == parse.OpAnd && exitCode == ExitSuccess,
			chained.Op == parse.OpOr && exitCode != ExitSuccess:
			return chained.Cmd
		}
		chained = chained.Cmd.Next
	}
	return nil
}

// effectiveRedirs is the stage's redirection list with any alias-derived
// stdin file prepended as an ordinary input redirection.
func effectiveRedirs(c *parse.Command) []*redirect.Redirection {
	if c.StdinFile == "" {
		return c.Redirs
	}
	stdin := &redirect.Redirection{
		Kind:      redirect.KindFile,
		Direction: redirect.Input,
		Target:    c.StdinFile,
	}
	return append([]*redirect.Redirection{stdin}, c.Redirs...)
}

// execPipeline resolves each stage's kind, builds the wiring plan, and
// executes the stages. Builtins and plugin commands run in-process with
// buffered output; maximal runs of consecutive wired external stages are
// spawned concurrently and connected with real pipes.
func (r *Runner) execPipeline(stages []*parse.Command, opts pipelineOpts) Result {
	n := len(stages)
	if n == 0 {
		return Result{ExitCode: ExitSuccess}
	}

	builtins := r.Ctx.Builtins()
	kinds := make([]stageKind, n)
	plugins := make([]plugin.CommandFunc, n)
	hasExternal := false

	for i, c := range stages {
		switch {
		case c.Name == "":
			kinds[i] = kindRedirOnly
		case builtins[c.Name] != nil:
			kinds[i] = kindBuiltin
		default:
			if fn, ok := r.Ctx.Plugins().LookupCommand(c.Name); ok {
				kinds[i] = kindPlugin
				plugins[i] = fn
			} else {
				kinds[i] = kindExternal
				hasExternal = true
			}
		}
	}

	raw := rawPipeline(stages)

	// Foreground externals get a transient job so interactive signals
	// can be routed to them while they run.
	jobID := opts.jobID
	if jobID == 0 && hasExternal && !opts.background {
		j := r.Ctx.Jobs().AddJob(raw, nil, false)
		jobID = j.ID
		defer func() {
			r.Ctx.Jobs().MarkDone(jobID, 0)
			r.Ctx.Jobs().RemoveJob(jobID, true)
		}()
	}

	exitCodes := make([]int, n)
	stderrs := make([]string, n)
	finalStdout := ""
	streamed := false
	timedOut := false

	carry := ""

	i := 0
	for i < n {
		c := stages[i]

		switch kinds[i] {
		case kindRedirOnly:
			var so, se string
			if err := redirect.WriteFileTargets(&so, &se, effectiveRedirs(c), r.Ctx.Getwd(), r.Fs); err != nil {
				exitCodes[i] = ExitFailure
				stderrs[i] = fmt.Sprintf("gosh: %v\n", err)
			}
			carry = ""
			i++

		case kindBuiltin, kindPlugin:
			stdin, err := r.stageStdinText(c, i, carry)
			if err != nil {
				exitCodes[i] = ExitFailure
				stderrs[i] = fmt.Sprintf("gosh: %v\n", err)
				carry = ""
				i++
				continue
			}
			res := r.runBuffered(kinds[i], c, plugins[i], stdin)
			exitCodes[i] = res.ExitCode
			stderrs[i] = res.Stderr
			if i == n-1 {
				finalStdout = res.Stdout
			}
			carry = res.Stdout
			i++

		case kindExternal:
			end := externalRunEnd(stages, kinds, i)
			er := r.runExternals(externRun{
				stages:     stages[i:end],
				firstInput: r.stageInput(stages[i], i, carry),
				stream:     end == n && !opts.background && r.Ctx.Options().Stream,
				background: opts.background,
				jobID:      jobID,
			})

			copy(exitCodes[i:end], er.exitCodes)
			copy(stderrs[i:end], er.stderrs)
			if end == n {
				finalStdout = er.stdout
				streamed = er.streamed
			}
			carry = er.stdout
			timedOut = timedOut || er.timedOut
			i = end
		}
	}

	res := Result{
		ExitCode: exitCodes[n-1],
		Stdout:   finalStdout,
		Stderr:   strings.Join(stderrs, ""),
		Streamed: streamed,
	}

	if r.Ctx.Options().Pipefail {
		res.ExitCode = ExitSuccess
		for k := n - 1; k >= 0; k-- {
			if exitCodes[k] != ExitSuccess {
				res.ExitCode = exitCodes[k]
				break
			}
		}
	}

	if timedOut {
		res.ExitCode = ExitTimeout
		res.Stderr += fmt.Sprintf("gosh: process timed out after %dms\n", r.Ctx.Options().TimeoutMillis)
	}

	return res
}

// externalRunEnd finds the end of the maximal run of consecutive external
// stages starting at i that can be wired with real pipes: the run breaks
// before a stage that has its own input redirection and after a stage
// whose stdout was diverted, so no stage is left blocked on a stdin that
// will never be fed.
func externalRunEnd(stages []*parse.Command, kinds []stageKind, i int) int {
	end := i + 1
	for end < len(stages) {
		if kinds[end] != kindExternal {
			break
		}
		if redirect.HasInput(effectiveRedirs(stages[end])) {
			break
		}
		if redirect.StdoutDiverted(effectiveRedirs(stages[end-1])) {
			break
		}
		end++
	}
	return end
}

// stageStdinText resolves buffered stdin for an in-process stage. A
// failing input redirection is returned as an error so the stage fails
// the same way a spawned process would.
func (r *Runner) stageStdinText(c *parse.Command, i int, carry string) (string, error) {
	redirs := effectiveRedirs(c)
	if text, ok, err := redirect.StdinReader(redirs, r.Ctx.Getwd(), r.Fs); ok {
		if err != nil {
			return "", err
		}
		return text, nil
	}
	if i > 0 {
		return carry, nil
	}
	return "", nil
}

// runBuffered executes a builtin or plugin command in-process, then
// simulates redirections on the buffered result: fd duplication becomes
// buffer concatenation and file targets are written out, clearing the
// diverted buffers.
func (r *Runner) runBuffered(kind stageKind, c *parse.Command, fn plugin.CommandFunc, stdin string) Result {
	var res Result

	if kind == kindBuiltin {
		res = r.Ctx.Builtins()[c.Name].Execute(c.Args, r.Ctx)
	} else {
		var stdout, stderr strings.Builder
		code := fn(c.Args, strings.NewReader(stdin), &stdout, &stderr)
		res = Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}
	}

	if err := redirect.WriteFileTargets(&res.Stdout, &res.Stderr, effectiveRedirs(c), r.Ctx.Getwd(), r.Fs); err != nil {
		res.Stderr += fmt.Sprintf("gosh: %v\n", err)
		if res.ExitCode == ExitSuccess {
			res.ExitCode = ExitFailure
		}
	}
	return res
}

func rawPipeline(stages []*parse.Command) string {
	parts := make([]string, len(stages))
	for i, c := range stages {
		parts[i] = c.Raw
	}
	return strings.Join(parts, " | ")
}
