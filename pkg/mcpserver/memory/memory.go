// Package memory provides a small stdio tool server that lets an agent
// persist notes across sessions: the bundled example of an external
// extension. Notes are stored one JSON file per category under a base
// directory.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var categoryPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Store persists notes by category.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create memory directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(category string) string {
	return filepath.Join(s.dir, category+".json")
}

// Remember appends a note to a category.
func (s *Store) Remember(category, data string) error {
	if !categoryPattern.MatchString(category) {
		return fmt.Errorf("invalid category: %q", category)
	}
	notes, err := s.Recall(category)
	if err != nil {
		return err
	}
	notes = append(notes, data)

	raw, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(category) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(category))
}

// Recall returns every note in a category; a missing category is empty.
func (s *Store) Recall(category string) ([]string, error) {
	if !categoryPattern.MatchString(category) {
		return nil, fmt.Errorf("invalid category: %q", category)
	}
	raw, err := os.ReadFile(s.path(category))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var notes []string
	if err := json.Unmarshal(raw, &notes); err != nil {
		return nil, fmt.Errorf("memory file for %q is corrupt: %w", category, err)
	}
	return notes, nil
}

// Forget removes a whole category. Forgetting a missing category is not
// an error.
func (s *Store) Forget(category string) error {
	if !categoryPattern.MatchString(category) {
		return fmt.Errorf("invalid category: %q", category)
	}
	if err := os.Remove(s.path(category)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Categories lists the stored categories, sorted.
func (s *Store) Categories() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(out)
	return out, nil
}

// NewServer builds the MCP server over a note store.
func NewServer(store *Store) *server.MCPServer {
	s := server.NewMCPServer(
		"memory",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	rememberTool := mcp.NewTool("remember",
		mcp.WithDescription("Store a note under a category so it survives across sessions"),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Lowercase category name (letters, digits, - and _)"),
		),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("The note to store"),
		),
	)
	s.AddTool(rememberTool, rememberHandler(store))

	recallTool := mcp.NewTool("recall",
		mcp.WithDescription("Retrieve every note stored under a category"),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category to recall"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(recallTool, recallHandler(store))

	forgetTool := mcp.NewTool("forget",
		mcp.WithDescription("Delete a whole category of notes"),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category to delete"),
		),
	)
	s.AddTool(forgetTool, forgetHandler(store))

	return s
}

func rememberHandler(store *Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := request.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := request.RequireString("data")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := store.Remember(category, data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Remembered under %q", category)), nil
	}
}

func recallHandler(store *Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := request.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		notes, err := store.Recall(category)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(notes) == 0 {
			return mcp.NewToolResultText("No notes stored under " + category), nil
		}
		return mcp.NewToolResultText(strings.Join(notes, "\n")), nil
	}
}

func forgetHandler(store *Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := request.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := store.Forget(category); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Forgot %q", category)), nil
	}
}
