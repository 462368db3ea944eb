package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Config holds all configuration for the anymusic client
type Config struct {
	// Backend
	Server         string        // base URL of the Task Service
	RequestTimeout time.Duration // per HTTP request

	// Polling
	PollInterval    time.Duration // fixed tick interval
	MaxPollDuration time.Duration // 0 disables the guard

	// File system
	OutputDir    string // user-provided
	AbsOutputDir string // resolved/absolute path
	DBPath       string // user-provided
	AbsDBPath    string // resolved/absolute path
	FetchResults bool   // save produced files into OutputDir

	// Transforms
	Bitrate string // default MP3 bitrate for convert

	// Development backend
	DevServerAddr string

	// Logging
	LogLevel string // debug|info|warn|error

	// Validation & computed
	Version   string    // app version
	StartTime time.Time // when the app started
}

const (
	DefaultServer          = "http://localhost:5000"
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultMaxPollDuration = 30 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second
	DefaultBitrate         = "192"
	DefaultDevServerAddr   = "127.0.0.1:5000"
)

// New creates a Config with default values
func New() *Config {
	return &Config{
		Server:          DefaultServer,
		RequestTimeout:  DefaultRequestTimeout,
		PollInterval:    DefaultPollInterval,
		MaxPollDuration: DefaultMaxPollDuration,
		FetchResults:    true,
		Bitrate:         DefaultBitrate,
		DevServerAddr:   DefaultDevServerAddr,
		LogLevel:        "info",
		StartTime:       time.Now(),
		Version:         "1.0.0",
	}
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	if c.Server == "" {
		return fmt.Errorf("invalid server: empty")
	}
	u, err := url.Parse(c.Server)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid server: %q (must be an http(s) URL)", c.Server)
	}

	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollDuration < 0 {
		return fmt.Errorf("invalid max poll duration: %s", c.MaxPollDuration)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Bitrate == "" {
		c.Bitrate = DefaultBitrate
	}
	if c.DevServerAddr == "" {
		c.DevServerAddr = DefaultDevServerAddr
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	c.LogLevel = strings.ToLower(c.LogLevel)
	valid := false
	for _, level := range validLevels {
		if c.LogLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (must be debug|info|warn|error)", c.LogLevel)
	}

	return nil
}

// ResolveOutputDir expands the output directory path and resolves it to an absolute path
// If empty, defaults to $HOME/Music/anymusic
func (c *Config) ResolveOutputDir() error {
	if c.OutputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home directory: %w", err)
		}
		c.OutputDir = filepath.Join(home, "Music", "anymusic")
	}

	expanded, err := expandHome(c.OutputDir)
	if err != nil {
		return err
	}
	c.OutputDir = expanded

	abs, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.OutputDir, err)
	}
	c.AbsOutputDir = abs

	return nil
}

// ResolveDBPath expands the database path and resolves it to an absolute path
// If empty, defaults to OS cache directory
func (c *Config) ResolveDBPath() error {
	if c.DBPath == "" {
		c.DBPath = defaultCacheDBPath()
	}

	expanded, err := expandHome(c.DBPath)
	if err != nil {
		return err
	}
	c.DBPath = expanded

	abs, err := filepath.Abs(c.DBPath)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.DBPath, err)
	}
	c.AbsDBPath = abs

	return nil
}

// String returns a pretty-printed representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf(`Config{
  Backend:
    Server: %s
    RequestTimeout: %s
  Polling:
    Interval: %s
    MaxDuration: %s
  Files:
    OutputDir: %s (resolved: %s)
    DBPath: %s (resolved: %s)
    FetchResults: %t
  Transforms:
    Bitrate: %s
  DevServer:
    Addr: %s
  Logging:
    LogLevel: %s
  Meta:
    Version: %s
    StartTime: %s
}`, c.Server, c.RequestTimeout,
		c.PollInterval, c.MaxPollDuration,
		c.OutputDir, c.AbsOutputDir,
		c.DBPath, c.AbsDBPath,
		c.FetchResults,
		c.Bitrate,
		c.DevServerAddr,
		c.LogLevel,
		c.Version, c.StartTime.Format(time.RFC3339))
}

// Summary returns a one-line summary of key configuration
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"server":            c.Server,
		"poll_interval":     c.PollInterval.String(),
		"max_poll_duration": c.MaxPollDuration.String(),
		"output_dir":        c.AbsOutputDir,
		"db_path":           c.AbsDBPath,
		"fetch_results":     c.FetchResults,
		"log_level":         c.LogLevel,
		"version":           c.Version,
	}
}

func expandHome(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		if p == "~" {
			return home, nil
		}
		return filepath.Join(home, p[2:]), nil
	}
	return p, nil
}

// defaultCacheDBPath returns the cross-platform default path for the SQLite DB
// - Windows: %APPDATA%/anymusic/history.db
// - Linux/macOS: $HOME/.cache/anymusic/history.db
func defaultCacheDBPath() string {
	if runtime.GOOS == "windows" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			return filepath.Join(appdata, "anymusic", "history.db")
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "AppData", "Roaming", "anymusic", "history.db")
		}
		return "history.db"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "anymusic", "history.db")
	}
	return filepath.Join("anymusic", "history.db")
}
