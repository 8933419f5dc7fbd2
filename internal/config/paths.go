package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard directories goose writes to.
type Paths struct {
	Data   string // ~/.local/share/goose
	Config string // ~/.config/goose
	Cache  string // ~/.cache/goose
	State  string // ~/.local/state/goose
}

// GetPaths returns the standard paths for goose data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "goose"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "goose"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "goose"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "goose"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &Error{Kind: ErrDirectory, Err: err}
		}
	}
	return nil
}

// ConfigFilePath returns the path of the YAML config file.
func (p *Paths) ConfigFilePath() string {
	return filepath.Join(p.Config, "config.yaml")
}

// ConfigOverridePath returns the path of the optional JSONC override file.
func (p *Paths) ConfigOverridePath() string {
	return filepath.Join(p.Config, "config.jsonc")
}

// SecretsFilePath returns the path of the secrets file used when the OS
// keyring is disabled.
func (p *Paths) SecretsFilePath() string {
	return filepath.Join(p.Config, "secrets.yaml")
}

// PermissionsFilePath returns the path of the persisted tool-permission map.
func (p *Paths) PermissionsFilePath() string {
	return filepath.Join(p.Config, "permissions.yaml")
}

// SessionDir returns the directory session files are written to.
func (p *Paths) SessionDir() string {
	return filepath.Join(p.Data, "sessions")
}

// SchedulerDir returns the scheduler's own directory (jobs file and
// recipe copies).
func (p *Paths) SchedulerDir() string {
	return filepath.Join(p.Data, "scheduler")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
