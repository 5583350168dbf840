package policy

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// PatternSet is a compiled list of glob patterns matched against file paths.
//
// A pattern containing a path separator is matched against the whole
// slash-normalized path ("static/**", "app/*.css"). A bare pattern is matched
// against every path segment, so ".git" excludes anything under a .git
// directory and "*.css" matches on the file name alone.
type PatternSet struct {
	segment []glob.Glob
	full    []glob.Glob
}

// CompilePatterns compiles patterns into a PatternSet. Empty entries and
// comment lines starting with '#' are skipped.
func CompilePatterns(patterns []string) (*PatternSet, error) {
	ps := &PatternSet{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}

		pattern = filepath.ToSlash(pattern)

		if strings.Contains(pattern, "/") {
			g, err := glob.Compile(strings.TrimPrefix(pattern, "/"), '/')
			if err != nil {
				return nil, err
			}
			ps.full = append(ps.full, g)
			continue
		}

		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		ps.segment = append(ps.segment, g)
	}
	return ps, nil
}

// MustCompile is like CompilePatterns but panics on a bad pattern.
// Intended for package-level defaults.
func MustCompile(patterns []string) *PatternSet {
	ps, err := CompilePatterns(patterns)
	if err != nil {
		panic(err)
	}
	return ps
}

// Match reports whether path matches any pattern in the set.
func (ps *PatternSet) Match(path string) bool {
	if ps == nil {
		return false
	}

	normalized := strings.TrimPrefix(filepath.ToSlash(path), "/")
	for _, g := range ps.full {
		if g.Match(normalized) {
			return true
		}
	}

	if len(ps.segment) == 0 {
		return false
	}
	for _, segment := range strings.Split(normalized, "/") {
		if segment == "" || segment == "." {
			continue
		}
		for _, g := range ps.segment {
			if g.Match(segment) {
				return true
			}
		}
	}
	return false
}

// Empty reports whether the set contains no patterns.
func (ps *PatternSet) Empty() bool {
	return ps == nil || (len(ps.segment) == 0 && len(ps.full) == 0)
}
