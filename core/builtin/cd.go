package builtin

import (
	"fmt"

	"josephlewis.net/gosh/core/run"
)

// Cd changes the working directory. `cd -` swaps back to OLDPWD.
func Cd(args []string, ctx run.Context) run.Result {
	switch len(args) {
	case 0:
		home := ctx.Getenv("HOME")
		if home == "" {
			return failf(run.ExitFailure, "cd: HOME not set\n")
		}
		args = []string{home}
		fallthrough
	case 1:
		dir := args[0]
		if dir == "-" {
			dir = ctx.Getenv("OLDPWD")
			if dir == "" {
				return failf(run.ExitFailure, "cd: OLDPWD not set\n")
			}
			if err := ctx.Chdir(dir); err != nil {
				return failf(run.ExitFailure, "cd: %v\n", err)
			}
			return run.Result{ExitCode: run.ExitSuccess, Stdout: dir + "\n"}
		}
		if err := ctx.Chdir(dir); err != nil {
			return failf(run.ExitFailure, "cd: %v\n", err)
		}
		return run.Result{ExitCode: run.ExitSuccess}
	default:
		return failf(run.ExitFailure, "cd: too many arguments\n")
	}
}

// Pwd prints the working directory.
func Pwd(args []string, ctx run.Context) run.Result {
	return run.Result{
		ExitCode: run.ExitSuccess,
		Stdout:   fmt.Sprintf("%s\n", ctx.Getwd()),
	}
}

func init() {
	register("cd", "Change the working directory.", Cd)
	register("pwd", "Print the working directory.", Pwd)
}
