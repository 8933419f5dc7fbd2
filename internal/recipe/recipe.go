// Package recipe loads and renders recipe files: the declarative
// configuration a headless agent run or a scheduled job executes.
package recipe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goosehq/goose/pkg/types"
)

// ErrorKind classifies recipe loading failures.
type ErrorKind string

const (
	ErrFileNotFound     ErrorKind = "file_not_found"
	ErrParse            ErrorKind = "parse"
	ErrMissingParameter ErrorKind = "missing_parameter"
)

// Error is the recipe loading error type.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("recipe %s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("recipe %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load parses a recipe file, YAML or JSON by extension.
func Load(path string) (*types.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: ErrFileNotFound, Path: path, Err: err}
		}
		return nil, &Error{Kind: ErrParse, Path: path, Err: err}
	}

	var recipe types.Recipe
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &recipe)
	case ".json", ".jsonl":
		err = json.Unmarshal(data, &recipe)
	default:
		// Content sniffing as a fallback: JSON first, then YAML, which
		// also parses JSON but with looser errors.
		if jsonErr := json.Unmarshal(data, &recipe); jsonErr != nil {
			err = yaml.Unmarshal(data, &recipe)
		}
	}
	if err != nil {
		return nil, &Error{Kind: ErrParse, Path: path, Err: err}
	}

	if recipe.Title == "" && recipe.Prompt == "" && recipe.Instructions == "" {
		return nil, &Error{Kind: ErrParse, Path: path, Err: fmt.Errorf("recipe has no title, prompt, or instructions")}
	}
	return &recipe, nil
}

// Save writes a recipe back to disk in the format the extension implies.
func Save(recipe *types.Recipe, path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		data, err = json.MarshalIndent(recipe, "", "  ")
	default:
		data, err = yaml.Marshal(recipe)
	}
	if err != nil {
		return &Error{Kind: ErrParse, Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
