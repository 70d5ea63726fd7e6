package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/shell"
)

// execCmd runs a single command line non-interactively and exits with its
// code, useful for scripting against the same execution semantics the
// interactive shell has.
var execCmd = &cobra.Command{
	Use:   "exec -- COMMAND...",
	Short: "Execute one command line and exit.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration := loadOrDefaultConfig()
		// One-shot commands buffer their output; streaming needs a prompt
		// loop to make sense.
		configuration.StreamOutput = false

		sessionLogger := logger.NewNopLogger().Sessionless()
		sh := shell.New(configuration, sessionLogger, os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr())

		res := sh.Execute(strings.Join(args, " "))
		if res.Stdout != "" {
			io.WriteString(cmd.OutOrStdout(), res.Stdout)
		}
		if res.Stderr != "" {
			io.WriteString(cmd.ErrOrStderr(), res.Stderr)
		}

		if res.ExitCode != 0 {
			os.Exit(res.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
}
