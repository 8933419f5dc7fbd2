// Package sessionlog persists chat sessions as append-friendly files:
// one JSON object per line, UTF-8, LF. Line 0 is the SessionMetadata
// header; every following line is one Message in causal order. The agent
// loop and the scheduler both read and write through this package.
package sessionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/storage"
	"github.com/goosehq/goose/pkg/types"
)

// Extension is the session file suffix.
const Extension = ".jsonl"

// maxLineBytes bounds a single session line; tool responses can carry large
// file contents.
const maxLineBytes = 32 * 1024 * 1024

// Dir returns the session directory, creating it if needed.
func Dir() (string, error) {
	dir := config.GetPaths().SessionDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

// GenerateName mints a new session name. Names are timestamps so a
// descending sort puts the newest session first.
func GenerateName() string {
	return time.Now().Format("20060102_150405")
}

// Resolve converts an Identifier into a session file path. Name
// identifiers land in the session directory.
func Resolve(id types.Identifier) (string, error) {
	if id.IsPath() {
		return id.Path, nil
	}
	if id.Name == "" {
		return "", fmt.Errorf("empty session identifier")
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, id.Name+Extension), nil
}

// ReadMetadata reads only the header line of a session file.
func ReadMetadata(path string) (types.SessionMetadata, error) {
	var meta types.SessionMetadata

	f, err := os.Open(path)
	if err != nil {
		return meta, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return meta, err
		}
		return meta, fmt.Errorf("session file %s is empty", path)
	}

	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
		return meta, fmt.Errorf("failed to parse session metadata: %w", err)
	}
	return meta, nil
}

// ReadMessages reads every message line after the header. A trailing
// line that fails to parse is treated as a torn write and ignored; a
// parse failure anywhere earlier is an error.
func ReadMessages(path string) ([]types.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var messages []types.Message
	var pendingErr error
	first := true

	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		if pendingErr != nil {
			// The bad line was not the last one after all.
			return nil, pendingErr
		}

		var msg types.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			pendingErr = fmt.Errorf("failed to parse session message: %w", err)
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pendingErr != nil {
		logging.Warn().Str("path", path).Msg("ignoring torn trailing line in session file")
	}
	return messages, nil
}

// Persist writes metadata and messages, one JSON object per line, to a
// temp file that is renamed into place so concurrent readers never see a
// half-written session. message_count is forced to len(messages).
func Persist(path string, meta types.SessionMetadata, messages []types.Message) error {
	meta.MessageCount = len(messages)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	lock := storage.NewFileLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock session file: %w", err)
	}
	defer lock.Unlock()

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create session temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	write := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.WriteByte('\n')
	}

	if err := write(meta); err == nil {
		for _, msg := range messages {
			if err = write(msg); err != nil {
				break
			}
		}
	} else {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush session file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// UpdateMetadata rewrites only the header line, carrying the existing
// message lines over byte for byte. Used when only token counters
// change.
func UpdateMetadata(path string, meta types.SessionMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Persist(path, meta, nil)
		}
		return err
	}

	var raw [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		raw = append(raw, append([]byte(nil), scanner.Bytes()...))
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return scanErr
	}

	lock := storage.NewFileLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock session file: %w", err)
	}
	defer lock.Unlock()

	header, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	w.Write(header)
	w.WriteByte('\n')
	for _, line := range raw {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// SessionEntry names one session file.
type SessionEntry struct {
	Name string
	Path string
}

// ListSessions enumerates the session directory, newest first.
func ListSessions() ([]SessionEntry, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var sessions []SessionEntry
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), Extension)
		sessions = append(sessions, SessionEntry{
			Name: name,
			Path: filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name > sessions[j].Name
	})
	return sessions, nil
}
