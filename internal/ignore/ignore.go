// Package ignore implements the path-exclusion rules consulted by
// internal/filetree.Manager.listDir during its directory scan: which
// paths are never tracked as files, independent of what the file-tree
// CRDT's driver registry decides to do with the ones that remain.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"crfs/internal/repo"
)

const ignoreFileName = ".crfsignore"

// rule is a single compiled .crfsignore line. Compiling a pattern once
// into the handful of doublestar globs that express it (rather than
// re-deriving prefix/suffix/per-component variants on every IsIgnored
// call, as gitignore-style matchers are often written) leans on
// doublestar's own "**" semantics -- it already matches zero or more
// path segments -- so one rooted-or-anywhere glob plus its "everything
// beneath" variant covers both file and directory patterns.
type rule struct {
	raw    string
	negate bool
	globs  []string
}

// compile turns a raw .crfsignore line (already trimmed of comments and
// blank lines by the caller) into its matching rule. A trailing "/"
// marks a directory pattern; a "/" anywhere else anchors the pattern to
// that relative position instead of letting it match at any depth.
func compile(raw string) rule {
	r := rule{raw: raw}
	body := raw
	if strings.HasPrefix(body, "!") {
		r.negate = true
		body = body[1:]
	}
	body = strings.TrimSuffix(body, "/")

	glob := body
	if !strings.HasPrefix(glob, "**/") && !strings.Contains(glob, "/") {
		glob = "**/" + glob
	}
	// glob alone matches the named file or directory; glob+"/**" matches
	// everything beneath it. The second variant is a no-op for patterns
	// that can only ever name a file, which is cheaper than deciding in
	// advance whether a pattern could possibly name a directory.
	r.globs = []string{glob, glob + "/**"}
	return r
}

func (r rule) matches(path string) bool {
	for _, g := range r.globs {
		if ok, err := doublestar.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}

// IgnoreList is a compiled set of .crfsignore rules, plus the engine's
// own always-excluded metadata directory (repo.CrfsDir).
type IgnoreList struct {
	rules []rule
}

// LoadIgnoreFile reads and compiles the .crfsignore file from the given
// working directory. A missing file is not an error: it yields an
// IgnoreList with no rules beyond the always-ignored metadata directory.
func LoadIgnoreFile(workingDir string) (*IgnoreList, error) {
	f, err := os.Open(filepath.Join(workingDir, ignoreFileName))
	if os.IsNotExist(err) {
		return &IgnoreList{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	il := &IgnoreList{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		il.rules = append(il.rules, compile(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return il, nil
}

// IsIgnored reports whether path (relative to the working directory,
// using "/" separators) should be excluded from the file-tree scan.
// repo.CrfsDir is always excluded regardless of rules, since the engine
// must never track its own metadata as a managed file. Later rules take
// priority over earlier ones, so a "!pattern" negation can re-include a
// path excluded by an earlier, broader rule -- the same precedence
// gitignore itself uses.
func (il *IgnoreList) IsIgnored(path string) bool {
	path = filepath.ToSlash(filepath.Clean(path))
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "../")

	if path == repo.CrfsDir || strings.HasPrefix(path, repo.CrfsDir+"/") {
		return true
	}

	ignored := false
	for _, r := range il.rules {
		if r.matches(path) {
			ignored = !r.negate
		}
	}
	return ignored
}

// AddPattern compiles and appends a single rule, as if it had appeared
// as one more line of .crfsignore.
func (il *IgnoreList) AddPattern(raw string) {
	il.rules = append(il.rules, compile(raw))
}

// GetPatterns returns the raw (uncompiled) text of every rule, in the
// order they were added.
func (il *IgnoreList) GetPatterns() []string {
	out := make([]string, len(il.rules))
	for i, r := range il.rules {
		out[i] = r.raw
	}
	return out
}
