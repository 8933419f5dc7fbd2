// Package permission provides the persisted per-tool permission store
// and the interactive permission checker the agent loop gates tool
// dispatch through.
package permission

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/logging"
)

// Level is a persisted user decision for one tool name.
type Level string

const (
	AlwaysAllow Level = "always_allow"
	AskBefore   Level = "ask_before"
	NeverAllow  Level = "never_allow"
)

// Store is the persisted map of tool name to permission level. It
// survives restarts; the file is rewritten atomically on every change.
type Store struct {
	mu     sync.RWMutex
	path   string
	levels map[string]Level
}

var (
	globalStore *Store
	storeOnce   sync.Once
)

// GlobalStore returns the process-wide permission store.
func GlobalStore() *Store {
	storeOnce.Do(func() {
		globalStore = NewStore(config.GetPaths().PermissionsFilePath())
	})
	return globalStore
}

// NewStore creates a store persisted at path, loading any prior
// decisions from disk.
func NewStore(path string) *Store {
	s := &Store{path: path, levels: make(map[string]Level)}

	data, err := os.ReadFile(path)
	if err == nil {
		var levels map[string]Level
		if err := yaml.Unmarshal(data, &levels); err != nil {
			logging.Error().Str("path", path).Err(err).Msg("permission file unreadable; starting empty")
		} else if levels != nil {
			s.levels = levels
		}
	}
	return s
}

// Get returns the persisted level for a tool name, or false when the
// user has never decided. Pattern entries (e.g. "developer__*") match
// when no exact entry exists.
func (s *Store) Get(tool string) (Level, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if level, ok := s.levels[tool]; ok {
		return level, true
	}

	// Deterministic pattern lookup: longest pattern wins.
	var patterns []string
	for key := range s.levels {
		if strings.ContainsAny(key, "*?[") && MatchToolPattern(key, tool) {
			patterns = append(patterns, key)
		}
	}
	if len(patterns) == 0 {
		return "", false
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	return s.levels[patterns[0]], true
}

// Set records a decision and persists it.
func (s *Store) Set(tool string, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels[tool] = level
	return s.persist()
}

// Remove deletes a single entry.
func (s *Store) Remove(tool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.levels, tool)
	return s.persist()
}

// RemoveExtension deletes every entry whose tool name belongs to the
// given extension (the "extension__" prefix).
func (s *Store) RemoveExtension(extension string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := extension + "__"
	for tool := range s.levels {
		if strings.HasPrefix(tool, prefix) {
			delete(s.levels, tool)
		}
	}
	return s.persist()
}

// All returns a copy of every persisted entry.
func (s *Store) All() map[string]Level {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Level, len(s.levels))
	for k, v := range s.levels {
		out[k] = v
	}
	return out
}

// persist rewrites the file atomically. Callers must hold s.mu.
func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s.levels)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
