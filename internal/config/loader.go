package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Viper keys. Flags are bound to the same names by the CLI.
const (
	KeyServer          = "server"
	KeyRequestTimeout  = "request_timeout"
	KeyPollInterval    = "poll_interval"
	KeyMaxPollDuration = "max_poll_duration"
	KeyOutputDir       = "output_dir"
	KeyDBPath          = "db_path"
	KeyFetchResults    = "fetch_results"
	KeyBitrate         = "bitrate"
	KeyDevServerAddr   = "devserver.addr"
	KeyLogLevel        = "log_level"
)

// EnvPrefix is the prefix for environment overrides, e.g. ANYMUSIC_SERVER.
const EnvPrefix = "ANYMUSIC"

// NewViper returns a viper instance with defaults and environment bindings.
// When configFile is empty the default config.toml is looked up in the user
// config directory and the working directory; a missing file is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	d := New()
	v.SetDefault(KeyServer, d.Server)
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyPollInterval, d.PollInterval)
	v.SetDefault(KeyMaxPollDuration, d.MaxPollDuration)
	v.SetDefault(KeyOutputDir, "")
	v.SetDefault(KeyDBPath, "")
	v.SetDefault(KeyFetchResults, d.FetchResults)
	v.SetDefault(KeyBitrate, d.Bitrate)
	v.SetDefault(KeyDevServerAddr, d.DevServerAddr)
	v.SetDefault(KeyLogLevel, d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if dir, err := ConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// FromViper builds, validates and resolves a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	c := New()
	c.Server = v.GetString(KeyServer)
	c.RequestTimeout = v.GetDuration(KeyRequestTimeout)
	c.PollInterval = v.GetDuration(KeyPollInterval)
	c.MaxPollDuration = v.GetDuration(KeyMaxPollDuration)
	c.OutputDir = v.GetString(KeyOutputDir)
	c.DBPath = v.GetString(KeyDBPath)
	c.FetchResults = v.GetBool(KeyFetchResults)
	c.Bitrate = v.GetString(KeyBitrate)
	c.DevServerAddr = v.GetString(KeyDevServerAddr)
	c.LogLevel = v.GetString(KeyLogLevel)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.ResolveOutputDir(); err != nil {
		return nil, err
	}
	if err := c.ResolveDBPath(); err != nil {
		return nil, err
	}
	return c, nil
}

// ConfigDir returns the directory holding config.toml.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "anymusic"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "anymusic"), nil
}
