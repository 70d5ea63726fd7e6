package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(fs afero.Fs, path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	configFs := afero.NewBasePathFs(fs, path)
	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, err
	}
	out.configFs = configFs
	return &out, nil
}

// Initialize populates the directory with a default configuration and a
// generated SSH host key, skipping anything that already exists.
func Initialize(fs afero.Fs, path string, logger *log.Logger) (*Configuration, error) {
	configFs := afero.NewBasePathFs(fs, path)

	if exists, _ := afero.Exists(configFs, ConfigurationName); !exists {
		logger.Printf("Creating %s", ConfigurationName)
		if err := afero.WriteFile(configFs, ConfigurationName, defaultConfigData, 0600); err != nil {
			return nil, err
		}
	} else {
		logger.Printf("%s already exists, skipping", ConfigurationName)
	}

	if exists, _ := afero.Exists(configFs, PrivateKeyName); !exists {
		logger.Printf("Generating %s", PrivateKeyName)
		keyPem, err := generateHostKey()
		if err != nil {
			return nil, err
		}
		if err := afero.WriteFile(configFs, PrivateKeyName, keyPem, 0600); err != nil {
			return nil, err
		}
	} else {
		logger.Printf("%s already exists, skipping", PrivateKeyName)
	}

	return Load(fs, path)
}

func generateHostKey() ([]byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), nil
}
