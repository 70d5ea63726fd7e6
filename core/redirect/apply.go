package redirect

import (
	"io"
	"io/ioutil"

	"github.com/spf13/afero"
)

// Plan describes where a spawned process's output streams should go after
// applying file and descriptor redirections. A nil writer means the stream
// was not diverted and keeps its default destination (terminal, pipe or
// capture buffer, decided by the executor).
type Plan struct {
	Stdout io.Writer
	Stderr io.Writer

	// MergeStderrIntoStdout is set by 2>&1: stderr follows wherever
	// stdout goes, including downstream pipes.
	MergeStderrIntoStdout bool
	// MergeStdoutIntoStderr is set by 1>&2.
	MergeStdoutIntoStderr bool

	closers []io.Closer
}

// Close releases any files the plan opened. Call after the process exits.
func (p *Plan) Close() error {
	var lastErr error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// OutputPlan opens output targets and resolves descriptor operations for a
// process about to be spawned. File targets are resolved against cwd.
func OutputPlan(redirs []*Redirection, cwd string, fs afero.Fs) (*Plan, error) {
	plan := &Plan{}

	for _, r := range redirs {
		switch r.Kind {
		case KindFile:
			if r.Direction == Input {
				continue
			}
			f, err := openOut(fs, resolve(r.Target, cwd), r.Direction == Append || r.Direction == ErrorAppend)
			if err != nil {
				plan.Close()
				return nil, err
			}
			plan.closers = append(plan.closers, f)
			switch r.Direction {
			case Output, Append:
				plan.Stdout = f
			case Error, ErrorAppend:
				plan.Stderr = f
			case Both:
				// Both streams share one descriptor.
				plan.Stdout = f
				plan.Stderr = f
			}

		case KindFd:
			switch {
			case r.Direction == Close && r.Fd == 1:
				plan.Stdout = ioutil.Discard
			case r.Direction == Close && r.Fd == 2:
				plan.Stderr = ioutil.Discard
			case r.Fd == 2 && r.Target == "1":
				plan.MergeStderrIntoStdout = true
			case r.Fd == 1 && r.Target == "2":
				plan.MergeStdoutIntoStderr = true
			}
		}
	}

	return plan, nil
}
