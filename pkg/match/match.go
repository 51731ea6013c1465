// Package match decides which directory entries a cleanup job must leave
// alone. File patterns use shell wildcards ('*' and '?'), folder names are
// matched literally; both compare case-insensitively against the entry's
// base name only, never against full paths.
package match

import (
	"slices"
	"strings"

	"github.com/IGLOU-EU/go-wildcard"
)

// Set is a compiled pair of exclusion lists. The zero value matches nothing,
// as does a Set built from empty lists.
type Set struct {
	filePatterns []string
	folderNames  []string
}

// New normalizes and compiles the exclusion lists: entries are trimmed,
// lowercased, deduplicated and sorted, so the pattern reported for a match
// is stable regardless of configuration order.
func New(filePatterns, folderNames []string) Set {
	return Set{
		filePatterns: normalize(filePatterns),
		folderNames:  normalize(folderNames),
	}
}

// MatchFile reports whether a file's base name is excluded, returning the
// pattern that claimed it.
func (s Set) MatchFile(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, pattern := range s.filePatterns {
		if wildcard.Match(pattern, lower) {
			return pattern, true
		}
	}
	return "", false
}

// MatchFolder reports whether a folder's base name is excluded, returning
// the configured name that claimed it.
func (s Set) MatchFolder(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, folder := range s.folderNames {
		if folder == lower {
			return folder, true
		}
	}
	return "", false
}

// FilePatterns returns the compiled file patterns, for logging.
func (s Set) FilePatterns() []string {
	return slices.Clone(s.filePatterns)
}

// FolderNames returns the compiled folder names, for logging.
func (s Set) FolderNames() []string {
	return slices.Clone(s.folderNames)
}

func normalize(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
