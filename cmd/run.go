package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"josephlewis.net/gosh/core/config"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/shell"
)

// runCmd starts the interactive shell on the current terminal.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive shell session.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration := loadOrDefaultConfig()

		lg := logger.NewNopLogger()
		appLog, logErr := configuration.OpenAppLog()
		if logErr == nil {
			lg = logger.NewJSONLinesLogger(appLog)
		}

		sessionLogger := lg.NewSession()
		sessionLogger.SessionStart(&logger.SessionStart{
			User: os.Getenv("USER"),
			PTY:  true,
		})

		sh := shell.New(configuration, sessionLogger, os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr())
		sh.HistoryFile = filepath.Join(cfgPath, config.HistoryName)
		code, runErr := sh.Run()

		if logErr == nil {
			appLog.Close()
		}
		if runErr != nil {
			return runErr
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
