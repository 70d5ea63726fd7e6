package shell

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/run"
)

var (
	promptUserColor = color.New(color.FgGreen, color.Bold)
	promptPathColor = color.New(color.FgBlue, color.Bold)
)

// Prompt renders the PS1 template. It understands \u, \h, \w and \$, the
// working directory collapses to ~ under HOME.
func (s *Shell) Prompt() string {
	prompt := s.Getenv(EnvPrompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	userHost := promptUserColor.Sprintf("%s@%s", s.Getenv(EnvUser), s.Getenv(EnvHostname))
	prompt = strings.ReplaceAll(prompt, `\u@\h`, userHost)
	prompt = strings.ReplaceAll(prompt, `\u`, s.Getenv(EnvUser))
	prompt = strings.ReplaceAll(prompt, `\h`, s.Getenv(EnvHostname))

	pwd := s.Getwd()
	if home := s.Getenv(EnvHome); home != "" && strings.HasPrefix(pwd, home) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, promptPathColor.Sprint(pwd))

	if os.Getuid() == 0 {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return prompt
}

func (s *Shell) continuationPrompt() string {
	if ps2 := s.Getenv(EnvPrompt2); ps2 != "" {
		return ps2
	}
	return "> "
}

// Run drives the interactive read, execute, print loop until input is
// closed or a builtin requests an exit. The returned code is the shell's
// final exit code.
func (s *Shell) Run() (int, error) {
	cfg := &readline.Config{
		Stdin:           readline.NewCancelableStdin(s.stdin),
		Stdout:          s.stdout,
		Stderr:          s.stderr,
		AutoComplete:    NewCompleter(s),
		InterruptPrompt: "^C",
		HistoryFile:     s.HistoryFile,
		HistoryLimit:    s.historySize,
	}
	if err := cfg.Init(); err != nil {
		return 1, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return 1, err
	}
	return s.RunWithReadline(rl)
}

// RunWithReadline runs the loop on a caller-provided line editor, used by
// the network front end which configures the editor for the remote PTY.
func (s *Shell) RunWithReadline(rl *readline.Instance) (int, error) {
	defer rl.Close()

	// The shell itself must survive Ctrl-C; route the signal to the
	// foreground job instead.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			s.jobs.SignalForeground(sig)
		}
	}()

	// Here-documents read their bodies through the same editor with the
	// continuation prompt.
	s.runner.ReadLine = func() (string, error) {
		rl.SetPrompt(s.continuationPrompt())
		return rl.Readline()
	}

	lastExit := 0
	for {
		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			s.log.SessionEnd()
			return lastExit, nil

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			return 1, err
		}

		res := s.Execute(line)
		lastExit = res.ExitCode
		s.printResult(res)
		s.notifyReaped()

		if done, code := s.ExitRequested(); done {
			s.log.SessionEnd()
			return code, nil
		}
	}
}

// printResult writes a buffered result to the terminal. Streamed output
// already reached the terminal while the command ran.
func (s *Shell) printResult(res run.Result) {
	if !res.Streamed && res.Stdout != "" {
		io.WriteString(s.stdout, res.Stdout)
	}
	if res.Stderr != "" {
		io.WriteString(s.stderr, res.Stderr)
	}
}

// notifyReaped prints end-of-line notifications for finished background
// jobs, the way interactive shells report "[1]+ Done".
func (s *Shell) notifyReaped() {
	for _, j := range s.jobs.Reap() {
		label := "Done"
		if j.ExitCode != 0 {
			label = fmt.Sprintf("Exit %d", j.ExitCode)
		}
		fmt.Fprintf(s.stdout, "[%d]  %s  %s\n", j.ID, label, j.Command)

		s.log.JobChange(&logger.JobChange{
			JobID:    j.ID,
			PID:      j.PID,
			Command:  j.Command,
			Status:   "reaped",
			ExitCode: j.ExitCode,
		})
	}
}
