// Package treescan builds filtered directory snapshots of a project root,
// enforcing the forbidden-in-app policy on the app/ subtree as it walks.
package treescan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/events"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
)

// Node is a single tree entry. Identity is RelativePath. LastModifiedUnix is
// nil for directories.
type Node struct {
	Name             string  `json:"name"`
	RelativePath     string  `json:"path"`
	IsDirectory      bool    `json:"isDirectory"`
	Extension        string  `json:"extension,omitempty"`
	LastModifiedUnix *int64  `json:"lastModified,omitempty"`
	Children         []*Node `json:"children,omitempty"`
}

const appDirName = "app"

// Scanner produces snapshots rooted at a fixed project root.
type Scanner struct {
	root      string
	policy    *policy.Policy
	publisher events.Publisher
}

// New builds a Scanner. publisher may be nil, in which case
// deleted-for-safety events are simply not emitted (useful in tests).
func New(root string, pol *policy.Policy, publisher events.Publisher) *Scanner {
	return &Scanner{root: root, policy: pol, publisher: publisher}
}

// Scan walks the project root and returns an immutable tree snapshot plus a
// scan hash callers can compare to cheaply detect "no change" between scans.
func (s *Scanner) Scan() (*Node, string, error) {
	root := &Node{Name: filepath.Base(s.root), RelativePath: ".", IsDirectory: true}
	var hashParts []string

	children, parts, err := s.scanDir(s.root, ".")
	if err != nil {
		return nil, "", err
	}
	root.Children = children
	hashParts = append(hashParts, parts...)

	sort.Strings(hashParts)
	sum := sha256.Sum256([]byte(strings.Join(hashParts, "\n")))
	return root, hex.EncodeToString(sum[:]), nil
}

func (s *Scanner) scanDir(absDir, relDir string) ([]*Node, []string, error) {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %s: %w", absDir, err)
	}

	var nodes []*Node
	var hashParts []string

	for _, entry := range entries {
		name := entry.Name()
		relPath := path(relDir, name)
		absPath := filepath.Join(absDir, name)

		if entry.IsDir() {
			if s.policy.IsIgnoredDir(relPath) {
				continue
			}
			children, parts, err := s.scanDir(absPath, relPath)
			if err != nil {
				// A directory disappearing mid-scan is not fatal; skip it.
				continue
			}
			nodes = append(nodes, &Node{
				Name:         name,
				RelativePath: relPath,
				IsDirectory:  true,
				Children:     children,
			})
			hashParts = append(hashParts, parts...)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if s.underApp(relPath) && policy.IsForbiddenInApp(name, info.Size()) {
			_ = os.Remove(absPath) // best-effort; excluded from the snapshot regardless
			if s.publisher != nil {
				s.publisher.Publish(events.Change{
					Kind:         events.KindDataChange,
					Path:         relPath,
					Action:       events.ActionDeletedForSafety,
					ModifiedUnix: time.Now().Unix(),
					EmittedAt:    time.Now(),
				})
			}
			continue
		}

		modUnix := info.ModTime().Unix()
		nodes = append(nodes, &Node{
			Name:             name,
			RelativePath:     relPath,
			IsDirectory:      false,
			Extension:        strings.TrimPrefix(filepath.Ext(name), "."),
			LastModifiedUnix: &modUnix,
		})
		hashParts = append(hashParts, fmt.Sprintf("%s:%d", relPath, modUnix))
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].IsDirectory != nodes[j].IsDirectory {
			return nodes[i].IsDirectory // directories first
		}
		return strings.ToLower(nodes[i].Name) < strings.ToLower(nodes[j].Name)
	})

	return nodes, hashParts, nil
}

// underApp reports whether a relative path's first component is app/.
func (s *Scanner) underApp(relPath string) bool {
	first := strings.SplitN(filepath.ToSlash(relPath), "/", 2)[0]
	return first == appDirName
}

func path(dir, name string) string {
	if dir == "." || dir == "" {
		return name
	}
	return dir + "/" + name
}
