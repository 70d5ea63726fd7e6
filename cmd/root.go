package cmd

import (
	"errors"
	"io/fs"
	"log"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"josephlewis.net/gosh/core/config"
)

var cfgPath string

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(afero.NewOsFs(), cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// loadOrDefaultConfig quietly falls back to the built in configuration
// when no directory has been initialized.
func loadOrDefaultConfig() *config.Configuration {
	configuration, err := config.Load(afero.NewOsFs(), cfgPath)
	if err != nil {
		return config.Default()
	}
	return configuration
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gosh",
	Short: "An embeddable interactive shell",
	Long:  `An interactive command shell with pipelines, aliases, redirections and job control.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
