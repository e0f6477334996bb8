// Package config defines the bridge daemon's Config, its defaults, and its
// validation. The layered resolution (flag > env > file > default) is wired
// in cmd/bridged, generalizing the teacher's cmd/client/main.go
// loadConfig/init() wiring and internal/client/config's validated Config
// struct.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/utils"
)

var home, _ = os.UserHomeDir()

// Defaults mirror the teacher's DefaultDataDir/DefaultServerURL/
// DefaultLogFilePath pattern, adapted to the bridge's own conventions.
var (
	DefaultPort           = 8765
	DefaultRemoteURL      = ""
	DefaultLogLevel       = "info"
	DefaultConfigFileName = "config"
	DefaultConfigDir      = filepath.Join(home, ".vibefoundry-bridge")
	DefaultLogFilePath    = filepath.Join(DefaultConfigDir, "logs", "bridge.log")
)

// Config is the bridge daemon's fully resolved configuration.
type Config struct {
	Port        int    `mapstructure:"port"`
	NoBrowser   bool   `mapstructure:"no_browser"`
	ProjectPath string `mapstructure:"project_path"`
	RemoteURL   string `mapstructure:"remote_url"`
	RemoteToken string `mapstructure:"remote_token"`
	LogLevel    string `mapstructure:"log_level"`
}

// LogValue redacts RemoteToken so a logged Config never leaks the bearer
// token in full, the same way the teacher masks its SendGrid API key.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.Port),
		slog.Bool("no_browser", c.NoBrowser),
		slog.String("project_path", c.ProjectPath),
		slog.String("remote_url", c.RemoteURL),
		slog.String("remote_token", utils.MaskSecret(c.RemoteToken)),
		slog.String("log_level", c.LogLevel),
	)
}

// Validate resolves ProjectPath to an absolute path (when set) and applies
// defaults for anything left unset. A Config with an empty ProjectPath is
// still valid: the daemon starts with no project selected and waits for
// the local UI to call /api/folder/select.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ProjectPath != "" {
		resolved, err := utils.ResolvePath(c.ProjectPath)
		if err != nil {
			return fmt.Errorf("project path: %w", err)
		}
		c.ProjectPath = resolved
	}
	if c.RemoteURL != "" {
		u, err := url.Parse(c.RemoteURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("remote url: invalid url %q", c.RemoteURL)
		}
	}
	return nil
}
