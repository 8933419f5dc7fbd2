package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchToolPattern reports whether a prefixed tool name matches a
// pattern entry. Patterns use glob syntax over the "__"-separated name,
// so "developer__*" covers every tool of the developer extension and
// "*__shell" covers a shell tool from any extension.
func MatchToolPattern(pattern, tool string) bool {
	// Glob path separators would change meaning; tool names never
	// contain them.
	if strings.ContainsRune(tool, '/') || strings.ContainsRune(pattern, '/') {
		return false
	}
	ok, err := doublestar.Match(pattern, tool)
	if err != nil {
		return false
	}
	return ok
}

// SplitToolName splits a prefixed catalog name into extension and bare
// tool name by right-splitting on "__". A name with no prefix returns an
// empty extension.
func SplitToolName(name string) (extension, tool string) {
	idx := strings.LastIndex(name, "__")
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+2:]
}

// JoinToolName builds the prefixed catalog name.
func JoinToolName(extension, tool string) string {
	if extension == "" {
		return tool
	}
	return extension + "__" + tool
}
