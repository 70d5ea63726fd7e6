// Package run executes parsed pipelines: it resolves each stage to a
// builtin, plugin command or external process, wires stdio between stages,
// aggregates exit codes and converts every failure into a well-formed
// Result.
package run

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"
	"josephlewis.net/gosh/core/expand"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/parse"
)

// Runner executes input lines against a shell context.
type Runner struct {
	Ctx Context
	// Fs is used to open redirection targets; an OsFs in production and
	// a MemMapFs in tests.
	Fs  afero.Fs
	Log *logger.SessionLogger
	// Expander rewrites stage commands through the alias table.
	Expander *expand.Expander
	// ReadLine, when set, supplies continuation lines for here-docs.
	ReadLine func() (string, error)
}

// RunLine splits a line on ;, && and || and executes the segments in order
// with short-circuit semantics. Segments skipped by a short-circuit do not
// affect the final exit code.
func (r *Runner) RunLine(line string) Result {
	segments := parse.SplitByOperators(line)
	if len(segments) == 0 {
		return Result{ExitCode: ExitSuccess}
	}

	var agg Result
	executed := false

	for _, seg := range segments {
		if executed {
			if seg.Op == parse.OpAnd && agg.ExitCode != ExitSuccess {
				continue
			}
			if seg.Op == parse.OpOr && agg.ExitCode == ExitSuccess {
				continue
			}
		}

		res := r.RunSegment(seg.Text)
		if !executed {
			agg = res
			executed = true
		} else {
			r.mergeResult(&agg, res)
		}
	}

	return agg
}

// mergeResult folds a later result into the aggregate. Streamed stdout
// has already reached the terminal, so when only one side streamed, the
// other side's buffered stdout is written out now; a caller honoring
// the aggregate's Streamed flag would otherwise drop it.
func (r *Runner) mergeResult(agg *Result, res Result) {
	switch {
	case agg.Streamed && !res.Streamed && res.Stdout != "":
		io.WriteString(r.Ctx.TerminalOut(), res.Stdout)
	case !agg.Streamed && res.Streamed && agg.Stdout != "":
		io.WriteString(r.Ctx.TerminalOut(), agg.Stdout)
	}
	agg.merge(res)
}

// RunSegment parses and executes one segment.
func (r *Runner) RunSegment(text string) Result {
	start := time.Now()

	// Environment variables expand before parsing so word splitting
	// sees the substituted values. Single-quoted text is left alone.
	text = expand.Vars(text, r.Ctx.Getenv)

	pc, err := parse.Parse(text)
	if err != nil {
		return r.parseFailure(text, err, start)
	}
	if pc.Empty() {
		return Result{ExitCode: ExitSuccess, Duration: time.Since(start)}
	}

	heredocWarning := r.collectHeredoc(pc)

	if pc.Commands[0].Background {
		res := r.runBackground(pc, text, start)
		res.Stderr = heredocWarning + res.Stderr
		return res
	}

	res := r.runParsed(pc)
	res.Stderr = heredocWarning + res.Stderr
	res.Duration = time.Since(start)

	r.Log.CommandRun(&logger.CommandRun{
		Command:        text,
		ExitCode:       res.ExitCode,
		DurationMillis: res.Duration.Milliseconds(),
		Streamed:       res.Streamed,
	})
	return res
}

// collectHeredoc pulls continuation lines until every pending here-doc has
// seen its delimiter. Hitting end of input before the delimiter warns and
// proceeds with what was collected, matching interactive shells.
func (r *Runner) collectHeredoc(pc *parse.ParsedCommand) (warning string) {
	for {
		pending := pc.PendingHeredoc()
		if pending == nil {
			return warning
		}
		if r.ReadLine == nil {
			pending.Complete = true
			continue
		}

		line, err := r.ReadLine()
		if err != nil {
			warning += fmt.Sprintf("gosh: warning: here-document delimited by end-of-file (wanted `%s')\n",
				pending.Delimiter)
			pending.Complete = true
			continue
		}
		pending.AddLine(line)
	}
}

func (r *Runner) parseFailure(text string, err error, start time.Time) Result {
	res := Result{ExitCode: ExitUsage, Duration: time.Since(start)}

	if perr, ok := err.(*parse.ParseError); ok {
		res.Stderr = fmt.Sprintf("gosh: %s\n%s\n", perr.Msg, perr.Caret())
		r.Log.ParseFailure(&logger.ParseFailure{
			Input: text,
			Index: perr.Index,
			Error: perr.Msg,
		})
	} else {
		res.Stderr = fmt.Sprintf("gosh: %v\n", err)
	}
	return res
}

// runParsed executes the stages of one parsed segment in the foreground.
func (r *Runner) runParsed(pc *parse.ParsedCommand) Result {
	stages := r.expandStages(pc.Commands)
	if len(stages) == 0 {
		return Result{ExitCode: ExitSuccess}
	}

	// A single stage whose alias expanded into a chain runs with the
	// chain's own operators.
	if len(pc.Commands) == 1 && stages[0].Next != nil {
		return r.runChain(stages[0], false)
	}

	return r.runPipeline(stages, false)
}

// expandStages alias-expands each pipeline stage and splices in any inner
// pipeline the expansion produced.
func (r *Runner) expandStages(cmds []*parse.Command) []*parse.Command {
	var stages []*parse.Command
	for _, c := range cmds {
		e := r.Expander.Expand(c)
		if e == nil {
			continue
		}
		stages = append(stages, e)
		if len(e.Pipe) > 0 {
			stages = append(stages, e.Pipe...)
			e.Pipe = nil
		}
	}
	return stages
}

// runChain walks a command chain built by alias expansion, honoring the
// ;, && and || operators between links.
func (r *Runner) runChain(head *parse.Command, background bool) Result {
	var agg Result
	node := head
	executed := false

	for node != nil {
		stages := append([]*parse.Command{node}, node.Pipe...)
		node.Pipe = nil
		res := r.runPipeline(stages, background)

		if !executed {
			agg = res
			executed = true
		} else {
			r.mergeResult(&agg, res)
		}
		node = nextLink(node, agg.ExitCode)
	}

	return agg
}

// runBackground registers a job and executes the segment asynchronously.
// The immediate caller sees exit code 0; the eventual result only updates
// the job's terminal status.
func (r *Runner) runBackground(pc *parse.ParsedCommand, text string, start time.Time) Result {
	raw := strings.TrimSpace(text)
	j := r.Ctx.Jobs().AddJob(raw, nil, true)

	r.Log.JobChange(&logger.JobChange{
		JobID:   j.ID,
		Command: raw,
		Status:  "running",
	})

	go func() {
		stages := r.expandStages(pc.Commands)

		var res Result
		switch {
		case len(stages) == 0:
			res = Result{ExitCode: ExitSuccess}
		case len(pc.Commands) == 1 && stages[0].Next != nil:
			res = r.runChainInJob(stages[0], j.ID)
		default:
			res = r.runPipelineInJob(stages, j.ID)
		}

		r.Ctx.Jobs().MarkDone(j.ID, res.ExitCode)
		r.Log.JobChange(&logger.JobChange{
			JobID:    j.ID,
			PID:      j.PID,
			Command:  raw,
			Status:   "done",
			ExitCode: res.ExitCode,
		})
	}()

	return Result{
		ExitCode: ExitSuccess,
		Stdout:   fmt.Sprintf("[%d] %s\n", j.ID, raw),
		Duration: time.Since(start),
	}
}
