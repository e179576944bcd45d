package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "DOCREGISTER"
	defaultDatabasePath = "docregister.db"
	defaultBlobDir      = "documentos"
	defaultQuorum       = 5
	defaultLogLevel     = "info"
)

// AppConfig captures runtime configuration for the document register.
type AppConfig struct {
	DatabasePath string
	BlobDir      string
	Quorum       int
	LogLevel     string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("blob.dir", defaultBlobDir)
	configViper.SetDefault("register.quorum", defaultQuorum)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath: configViper.GetString("database.path"),
		BlobDir:      configViper.GetString("blob.dir"),
		Quorum:       configViper.GetInt("register.quorum"),
		LogLevel:     configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.BlobDir) == "" {
		return fmt.Errorf("blob.dir is required")
	}
	if c.Quorum < 1 {
		return fmt.Errorf("register.quorum must be at least 1")
	}
	return nil
}
