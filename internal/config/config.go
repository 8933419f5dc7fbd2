package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/storage"
)

// MaxBackups is how many rotated copies of the config file are kept.
const MaxBackups = 5

// Store is the process-wide layered key/value store. Get resolves the
// environment variable first (UPPERCASE(key), parsed as JSON with a
// raw-string fallback), then the YAML config file with the optional
// JSONC override file merged on top, so an override key wins over the
// same YAML key.
type Store struct {
	mu           sync.Mutex
	path         string
	overridePath string
	secretsPath  string
}

var (
	global     *Store
	globalOnce sync.Once
)

// Global returns the process-wide config store, creating it on first use.
func Global() *Store {
	globalOnce.Do(func() {
		paths := GetPaths()
		if err := paths.EnsurePaths(); err != nil {
			logging.Error().Err(err).Msg("failed to create config directories")
		}
		global = NewStore(paths.Config)
	})
	return global
}

// NewStore creates a store rooted at dir. Tests use this to avoid the
// global singleton.
func NewStore(dir string) *Store {
	return &Store{
		path:         filepath.Join(dir, "config.yaml"),
		overridePath: filepath.Join(dir, "config.jsonc"),
		secretsPath:  filepath.Join(dir, "secrets.yaml"),
	}
}

// Path returns the config file path.
func (s *Store) Path() string { return s.path }

// envKey converts a config key to its environment variable form.
func envKey(key string) string {
	upper := strings.ToUpper(key)
	upper = strings.ReplaceAll(upper, ".", "_")
	return strings.ReplaceAll(upper, "-", "_")
}

// Get resolves key into out. Environment variables win over the file;
// their values are parsed as JSON, falling back to the raw string.
func (s *Store) Get(key string, out any) error {
	if raw, ok := os.LookupEnv(envKey(key)); ok {
		return decodeValue(key, parseEnvValue(raw), out)
	}

	s.mu.Lock()
	values := s.load()
	s.mu.Unlock()

	value, ok := values[key]
	if !ok {
		return notFound(key)
	}
	return decodeValue(key, value, out)
}

// GetString resolves key as a string.
func (s *Store) GetString(key string) (string, error) {
	var v string
	if err := s.Get(key, &v); err != nil {
		return "", err
	}
	return v, nil
}

// GetStringOr resolves key as a string, returning def when unset.
func (s *Store) GetStringOr(key, def string) string {
	v, err := s.GetString(key)
	if err != nil {
		return def
	}
	return v
}

// GetBool resolves key as a bool, returning false when unset.
func (s *Store) GetBool(key string) bool {
	var v bool
	if err := s.Get(key, &v); err != nil {
		return false
	}
	return v
}

// GetInt resolves key as an int, returning def when unset.
func (s *Store) GetInt(key string, def int) int {
	var v int
	if err := s.Get(key, &v); err != nil {
		return def
	}
	return v
}

// Set writes key=value to the config file atomically.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	values[key] = value
	return s.persist(values)
}

// Delete removes key from the config file atomically. Deleting a missing
// key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	delete(values, key)
	return s.persist(values)
}

// All returns a copy of every key currently in the file layer, with the
// JSONC override applied. Environment variables are not included.
func (s *Store) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// load reads the config file, recovering from backups when the file is
// corrupt or missing. It never fails: the worst case is a fresh empty
// map written to disk. Callers must hold s.mu.
func (s *Store) load() map[string]any {
	values, err := readYAMLMap(s.path)
	if err != nil {
		values = s.recover(err)
	}
	s.applyOverride(values)
	return values
}

// recover walks the backups in order, restoring the first one that
// parses; when every backup fails it writes a fresh default.
func (s *Store) recover(cause error) map[string]any {
	for _, backup := range s.backupPaths() {
		values, err := readYAMLMap(backup)
		if err != nil {
			continue
		}
		logging.Error().
			Str("config", s.path).
			Str("backup", backup).
			Err(cause).
			Msg("config file unreadable; restored from backup")
		if err := s.persist(values); err != nil {
			logging.Error().Err(err).Msg("failed to rewrite config from backup")
		}
		return values
	}

	if !os.IsNotExist(cause) {
		logging.Error().
			Str("config", s.path).
			Err(cause).
			Msg("config file corrupt and no usable backup; writing fresh default")
	}
	values := map[string]any{}
	if err := s.persist(values); err != nil {
		logging.Error().Err(err).Msg("failed to write default config")
	}
	return values
}

// applyOverride merges the optional JSONC override file on top of values.
func (s *Store) applyOverride(values map[string]any) {
	data, err := os.ReadFile(s.overridePath)
	if err != nil {
		return
	}
	var overrides map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &overrides); err != nil {
		logging.Warn().Str("path", s.overridePath).Err(err).Msg("ignoring unparseable config override")
		return
	}
	for k, v := range overrides {
		values[k] = v
	}
}

// persist writes values with the atomic-write protocol: rotate backups,
// then write a locked temp file, fsync, and rename over the config file.
// Callers must hold s.mu.
func (s *Store) persist(values map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &Error{Kind: ErrDirectory, Err: err}
	}

	s.rotateBackups()

	data, err := yaml.Marshal(values)
	if err != nil {
		return &Error{Kind: ErrDeserialize, Err: err}
	}

	tmpPath := s.path + ".tmp"
	lock := storage.NewFileLock(tmpPath)
	if err := lock.Lock(); err != nil {
		return &Error{Kind: ErrLock, Err: err}
	}
	defer lock.Unlock()

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return &Error{Kind: ErrFile, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return &Error{Kind: ErrFile, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &Error{Kind: ErrFile, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Kind: ErrFile, Err: err}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &Error{Kind: ErrFile, Err: err}
	}
	return nil
}

// rotateBackups shifts config.bak.{1..N} by one step and copies the
// current file to config.bak, but only when the current file parses: a
// corrupt file must never displace a good backup.
func (s *Store) rotateBackups() {
	if _, err := readYAMLMap(s.path); err != nil {
		return
	}

	backups := s.backupPaths()
	for i := len(backups) - 1; i >= 1; i-- {
		if _, err := os.Stat(backups[i-1]); err == nil {
			os.Rename(backups[i-1], backups[i])
		}
	}
	if data, err := os.ReadFile(s.path); err == nil {
		os.WriteFile(backups[0], data, 0644)
	}
}

// backupPaths returns config.bak, config.bak.1, ..., config.bak.N in
// restore-preference order.
func (s *Store) backupPaths() []string {
	paths := []string{s.path + ".bak"}
	for i := 1; i <= MaxBackups; i++ {
		paths = append(paths, fmt.Sprintf("%s.bak.%d", s.path, i))
	}
	return paths
}

// readYAMLMap reads a YAML mapping from path. An empty file is a valid
// empty map.
func readYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

// parseEnvValue parses an environment value as JSON, falling back to the
// raw string when it is not valid JSON.
func parseEnvValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// decodeValue converts a loosely-typed value into the caller's out
// pointer by round-tripping through JSON.
func decodeValue(key string, value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &Error{Kind: ErrDeserialize, Key: key, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: ErrDeserialize, Key: key, Err: err}
	}
	return nil
}
