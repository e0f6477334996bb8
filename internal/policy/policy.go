// Package policy implements the stateless path-classification rules that
// the scanner, the synchronizer, the watcher, and the HTTP writer all
// consult so they cannot disagree on what is permissible under a project
// root.
package policy

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

const maxForbiddenTextBytes = 50 * 1024 // 50 KiB

// forbiddenInApp glob patterns are never allowed to exist under app/: they
// are auto-deleted on discovery and never appear in a tree snapshot.
var forbiddenInApp = []string{
	"*.csv", "*.xlsx", "*.xls", "*.json",
}

// forbiddenForSync glob patterns never cross the outbound boundary: push
// and the remote client's PutFile refuse them.
var forbiddenForSync = []string{
	"*.pdf", "*.csv", "*.xlsx", "*.xls", "*.xlsm", "*.xlsb", "*.ppt", "*.pptx",
}

// matchesAny reports whether name (lowercased) matches any of the given
// doublestar glob patterns.
func matchesAny(patterns []string, name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, lower); ok {
			return true
		}
	}
	return false
}

// protectedNames are owned by the remote; local copies are never pushed.
var protectedNames = map[string]bool{
	"sync_server":    true,
	"metadatafarmer": true,
	"claude.md":      true,
}

const protectedDir = "meta_data"

var defaultIgnoreLines = []string{
	".bridgeignore",
	".git",
	".DS_Store",
	"Thumbs.db",
	"__pycache__/",
	"*.py[cod]",
	".ipynb_checkpoints/",
	"node_modules/",
	"dist/",
	"build/",
	".venv/",
	"venv/",
	".vscode",
	".idea",
	"*.tmp",
	"*.log",
}

// Policy is a stateless classifier, safe for concurrent use. It compiles the
// ignore ruleset once at construction (optionally extended by a
// project-local .bridgeignore file) and answers the ignored-dir predicate
// over any path beneath the supplied root. The other three predicates need
// no root and are package-level functions.
type Policy struct {
	root   string
	ignore *gitignore.GitIgnore
}

// New builds a Policy rooted at root. extraIgnoreLines are appended after
// the built-in defaults (e.g. the contents of a project's .bridgeignore).
func New(root string, extraIgnoreLines []string) *Policy {
	lines := append(append([]string{}, defaultIgnoreLines...), extraIgnoreLines...)
	return &Policy{
		root:   root,
		ignore: gitignore.CompileIgnoreLines(lines...),
	}
}

// IsForbiddenInApp reports whether a file under app/ may never be retained:
// a hard extension denylist, plus any .txt file over 50 KiB. size is only
// consulted for .txt files — callers may pass 0 for non-txt paths.
func IsForbiddenInApp(name string, size int64) bool {
	if matchesAny(forbiddenInApp, name) {
		return true
	}
	if strings.EqualFold(filepath.Ext(name), ".txt") && size > maxForbiddenTextBytes {
		return true
	}
	return false
}

// IsForbiddenForSync reports whether a path's extension must never cross
// the outbound sync boundary. Pull does not consult it.
func IsForbiddenForSync(name string) bool {
	return matchesAny(forbiddenForSync, name)
}

// IsProtectedFromPush reports whether the remote owns this path exclusively:
// local copies participate in pull (so the app subtree stays current) but
// are never pushed back.
func IsProtectedFromPush(relPath string) bool {
	base := strings.ToLower(filepath.Base(relPath))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if protectedNames[stem] || protectedNames[base] {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.EqualFold(part, protectedDir) {
			return true
		}
	}
	return false
}

// IsIgnoredDir reports whether a directory entry (by path relative to the
// policy's root) should be skipped entirely during traversal and watching.
func (p *Policy) IsIgnoredDir(relPath string) bool {
	if relPath == "." || relPath == "" {
		return false
	}
	// Directory patterns such as "node_modules/" only match a path with a
	// trailing slash, so the directory form is checked too.
	return p.ignore.MatchesPath(relPath) || p.ignore.MatchesPath(relPath+"/")
}

// RelPath converts an absolute path under the policy's root to the relative
// form the ignore matcher and protected-name checks expect.
func (p *Policy) RelPath(absPath string) (string, error) {
	rel, err := filepath.Rel(p.root, absPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
