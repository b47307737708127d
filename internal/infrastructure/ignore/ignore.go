// Package ignore builds the set of patterns that keeps files out of a
// deployment archive.
//
// Patterns follow .dockerignore semantics: they are anchored at the project
// root, "*" does not cross directory boundaries, "**" matches any number of
// directories and a leading "!" re-includes paths matched by earlier patterns.
package ignore

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/nickalie/ddc/internal/core/deploy"
)

// DefaultPatterns apply when neither overrides nor an ignore file are present.
var DefaultPatterns = []string{
	"**/*.pem",
	"**/*.key",
	".git",
	"target",
	"**/*.tar.gz",
}

// Set is a compiled, read-only ignore set for one project root.
type Set struct {
	patterns []string
	matcher  *patternmatcher.PatternMatcher
}

// Load resolves the pattern source for root and builds the set. Overrides win
// over the ignore file, which in turn fully replaces DefaultPatterns. A found
// ignore file always excludes itself.
func Load(root, ignoreFile string, overrides []string) (*Set, error) {
	if len(overrides) > 0 {
		return Build(root, overrides)
	}

	if ignoreFile != "" {
		raw, found, err := readIgnoreFile(filepath.Join(root, ignoreFile))
		if err != nil {
			return nil, err
		}
		if found {
			return Build(root, append(raw, "/"+filepath.ToSlash(ignoreFile)))
		}
	}

	return Build(root, DefaultPatterns)
}

// Build normalizes raw patterns against root and compiles them. The first
// syntactically invalid pattern is reported as a *deploy.PatternError.
func Build(root string, raw []string) (*Set, error) {
	patterns := make([]string, 0, len(raw))
	for _, p := range raw {
		normalized := normalize(root, p)
		if normalized == "" {
			continue
		}
		if err := validate(normalized); err != nil {
			return nil, &deploy.PatternError{Pattern: p, Cause: err}
		}
		patterns = append(patterns, normalized)
	}

	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, &deploy.PatternError{Pattern: strings.Join(patterns, ", "), Cause: err}
	}

	return &Set{patterns: patterns, matcher: matcher}, nil
}

// Matches reports whether rel, a slash separated path relative to the
// project root, is excluded. A path is excluded when it or any of its parent
// directories matches.
func (s *Set) Matches(rel string) (bool, error) {
	rel = strings.TrimPrefix(path.Clean(filepath.ToSlash(rel)), "/")
	matched, err := s.matcher.MatchesOrParentMatches(filepath.FromSlash(rel))
	if err != nil {
		return false, &deploy.PatternError{Pattern: strings.Join(s.patterns, ", "), Cause: err}
	}
	return matched, nil
}

// Patterns returns the normalized patterns in evaluation order.
func (s *Set) Patterns() []string {
	return append([]string(nil), s.patterns...)
}

// HasExclusions reports whether any pattern re-includes paths with "!".
func (s *Set) HasExclusions() bool {
	return s.matcher.Exclusions()
}

// normalize trims p and anchors it at root. Patterns naming an existing
// directory get a "/**" suffix so everything below it matches.
func normalize(root, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}

	negated := strings.HasPrefix(p, "!")
	if negated {
		p = strings.TrimSpace(p[1:])
	}

	p = filepath.ToSlash(p)
	p = strings.TrimLeft(p, "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return ""
	}
	p = path.Clean(p)

	if !strings.HasSuffix(p, "/**") && !hasMeta(p) {
		if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err == nil && info.IsDir() {
			p += "/**"
		}
	}

	if negated {
		p = "!" + p
	}
	return filepath.FromSlash(p)
}

// validate compiles p on its own so that a syntax error names the pattern.
func validate(p string) error {
	matcher, err := patternmatcher.New([]string{p})
	if err != nil {
		return err
	}
	_, err = matcher.MatchesOrParentMatches("x")
	return err
}

func readIgnoreFile(name string) ([]string, bool, error) {
	data, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &deploy.IOError{Op: "read ignore file", Path: name, Cause: err}
	}

	patterns, err := ignorefile.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, false, &deploy.IOError{Op: "parse ignore file", Path: name, Cause: err}
	}
	return patterns, true, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, `*?[\`)
}
