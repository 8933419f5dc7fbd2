// Package router optionally narrows a large tool catalog before it is
// presented to the provider. The agent runs fine without one; presence
// is a configuration toggle.
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/goosehq/goose/pkg/types"
)

// DefaultLimit is how many tools a selection keeps when no limit is
// configured.
const DefaultLimit = 24

// Selector filters the catalog for one turn given the latest user text.
type Selector interface {
	Select(query string, tools []types.Tool) []types.Tool

	// RecordUse marks a tool as recently used; used tools stay in the
	// selection regardless of score.
	RecordUse(name string)
}

// LexicalSelector scores tools by token overlap between the query and
// the tool's name and description, with an edit-distance fallback for
// near-miss tokens. Cheap, deterministic, no model call.
type LexicalSelector struct {
	limit int

	mu     sync.Mutex
	recent map[string]bool
}

// NewLexicalSelector creates a selector keeping at most limit tools.
func NewLexicalSelector(limit int) *LexicalSelector {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &LexicalSelector{limit: limit, recent: make(map[string]bool)}
}

// RecordUse implements Selector.
func (s *LexicalSelector) RecordUse(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent[name] = true
}

// Select implements Selector. Recently used tools are always kept; the
// rest are ranked by score and cut at the limit.
func (s *LexicalSelector) Select(query string, tools []types.Tool) []types.Tool {
	if len(tools) <= s.limit {
		return tools
	}

	s.mu.Lock()
	recent := make(map[string]bool, len(s.recent))
	for name := range s.recent {
		recent[name] = true
	}
	s.mu.Unlock()

	queryTokens := tokenize(query)

	type scored struct {
		tool  types.Tool
		score float64
		used  bool
	}
	ranked := make([]scored, 0, len(tools))
	for _, tool := range tools {
		ranked = append(ranked, scored{
			tool:  tool,
			score: scoreTool(queryTokens, tool),
			used:  recent[tool.Name],
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].used != ranked[j].used {
			return ranked[i].used
		}
		return ranked[i].score > ranked[j].score
	})

	out := make([]types.Tool, 0, s.limit)
	for _, entry := range ranked {
		if len(out) >= s.limit && !entry.used {
			break
		}
		out = append(out, entry.tool)
	}

	// Keep the catalog order stable for the provider.
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// scoreTool counts query tokens that appear in (or nearly match) the
// tool's name and description.
func scoreTool(queryTokens []string, tool types.Tool) float64 {
	haystack := tokenize(tool.Name + " " + tool.Description)
	if len(haystack) == 0 {
		return 0
	}

	var score float64
	for _, qt := range queryTokens {
		for _, ht := range haystack {
			if qt == ht {
				score += 1.0
				break
			}
			if len(qt) > 3 && levenshtein.ComputeDistance(qt, ht) <= 1 {
				score += 0.5
				break
			}
		}
	}
	return score
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
