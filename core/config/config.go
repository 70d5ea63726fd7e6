// Package config loads and validates the shell's configuration directory.
package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const (
	ConfigurationName = "config.yaml"
	HistoryName       = "history"
	PrivateKeyName    = "private_key"
	AppLogName        = "app.log"
)

type Configuration struct {
	configFs afero.Fs

	// Prompt is the template rendered before every read. It understands
	// \u (user), \h (host), \w (working directory) and \$.
	Prompt string `json:"prompt" validate:"required"`

	// Pipefail makes pipelines fail on the right-most non-zero stage.
	Pipefail bool `json:"pipefail"`

	// StreamOutput mirrors foreground command output live.
	StreamOutput bool `json:"stream_output"`

	// TimeoutMillis bounds foreground commands; zero disables it.
	TimeoutMillis int `json:"timeout_millis" validate:"gte=0"`

	// KillSignal is delivered when the timeout fires.
	KillSignal string `json:"kill_signal" validate:"oneof=SIGTERM SIGKILL SIGINT SIGHUP"`

	// HistorySize caps the number of lines kept in history.
	HistorySize int `json:"history_size" validate:"gte=0"`

	// Aliases seeded into the shell at startup.
	Aliases map[string]string `json:"aliases"`

	// Exports are environment variables set at startup.
	Exports map[string]string `json:"exports"`

	SSH SSH `json:"ssh"`
}

// SSH configures the optional network front end.
type SSH struct {
	Port   int    `json:"port" validate:"gte=0,lte=65535"`
	Banner string `json:"banner"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		c.configFs = afero.NewMemMapFs()
	}
	return c.configFs
}

// Default returns the built in configuration, backed by an in-memory
// filesystem. Used when no configuration directory has been initialized.
func Default() *Configuration {
	return defaultConfig()
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

// HistoryPath returns the path of the history file inside the
// configuration directory, creating the file if needed.
func (c *Configuration) OpenHistory() (afero.File, error) {
	return c.fs().OpenFile(HistoryName, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0600)
}

// PrivateKeyPem returns the bytes of the SSH host key.
func (c *Configuration) PrivateKeyPem() ([]byte, error) {
	return afero.ReadFile(c.fs(), PrivateKeyName)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
