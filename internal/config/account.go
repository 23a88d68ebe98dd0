package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// AccountConfig carries the keystore password and file of account import
// and export.
type AccountConfig struct {
	ProjectDir string
	Password   string
	Keystore   string
}

func (c AccountConfig) Validate() error {
	if c.ProjectDir == "" {
		return fmt.Errorf("missing project directory")
	}
	if c.Keystore != "" && c.Password == "" {
		return fmt.Errorf("a password is required to use a keystore")
	}
	return nil
}

func LoadAccountConfigFromCLI() AccountConfig {
	return AccountConfig{
		ProjectDir: viper.GetString("project"),
		Password:   viper.GetString("password"),
		Keystore:   viper.GetString("keystore"),
	}
}
