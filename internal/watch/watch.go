// Package watch observes a project root with a single recursive fsnotify
// watch, classifies raw filesystem events into typed Changes, coalesces
// them per-path within a fixed window, and fans them out to any number of
// best-effort subscribers.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/events"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
)

const (
	coalesceWindow       = 1000 * time.Millisecond
	subscriberBufferSize = 64
	reattachBaseDelay    = 3 * time.Second
	reattachMaxDelay     = 12 * time.Second
)

var outputExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".csv": true, ".xlsx": true, ".xls": true,
}

// Bus watches a single project root and fans out classified, coalesced
// Changes to subscribers. A Bus is scoped to one project selection; when the
// project is reselected, the caller replaces the Bus rather than mutating
// the root (spec: "the watcher itself is replaced").
type Bus struct {
	root   string
	policy *policy.Policy
	fsw    *fsnotify.Watcher

	mu          sync.Mutex
	subscribers map[int]chan events.Change
	nextSubID   int

	pendingMu sync.Mutex
	pending   map[string]events.Change
	timers    map[string]*time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Bus rooted at root and starts its recursive fsnotify watch.
func New(root string, pol *policy.Policy) (*Bus, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	b := &Bus{
		root:        root,
		policy:      pol,
		fsw:         fsw,
		subscribers: make(map[int]chan events.Change),
		pending:     make(map[string]events.Change),
		timers:      make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}

	if err := b.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return b, nil
}

// Start runs the watch loop until ctx is cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.loop(ctx)
}

// Stop halts the watch loop, closes the underlying fsnotify watcher, and
// flushes any pending coalesced events before returning. Subscribers are
// not closed here — callers unsubscribe independently on disconnect.
func (b *Bus) Stop() {
	close(b.done)
	b.fsw.Close()
	b.wg.Wait()
}

// Subscribe registers a new sink with a bounded buffer. The returned
// unsubscribe func must be called exactly once when the subscriber
// disconnects.
func (b *Bus) Subscribe() (<-chan events.Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	ch := make(chan events.Change, subscriberBufferSize)
	b.subscribers[id] = ch

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
	}
	return ch, unsub
}

// Publish pushes a Change directly into the coalescing pipeline, used by
// components (the tree scanner's safety deletions) that detect a change
// outside the raw fsnotify stream. It satisfies events.Publisher.
func (b *Bus) Publish(c events.Change) {
	b.debounce(c.Path, c)
}

func (b *Bus) loop(ctx context.Context) {
	defer b.wg.Done()
	backoff := reattachBaseDelay

	for {
		select {
		case <-ctx.Done():
			b.flushAll()
			return
		case <-b.done:
			b.flushAll()
			return

		case ev, ok := <-b.fsw.Events:
			if !ok {
				b.flushAll()
				return
			}
			b.handleFSEvent(ev)

		case err, ok := <-b.fsw.Errors:
			if !ok {
				b.flushAll()
				return
			}
			slog.Error("watch error", "error", err)
			b.broadcast(events.Change{
				Kind:      events.KindWatchError,
				Message:   err.Error(),
				EmittedAt: time.Now(),
			})
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, reattachMaxDelay)
		}
	}
}

func (b *Bus) handleFSEvent(ev fsnotify.Event) {
	if ev.Has(fsnotify.Chmod) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := b.addRecursive(ev.Name); err != nil {
				slog.Warn("watch: failed to add new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		_ = b.fsw.Remove(ev.Name)
	}

	rel, err := b.policy.RelPath(ev.Name)
	if err != nil {
		return
	}
	if b.isWithinIgnoredDir(rel) {
		return
	}

	change, ok := classify(rel)
	if !ok {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil {
		change.ModifiedUnix = info.ModTime().Unix()
	} else {
		change.ModifiedUnix = time.Now().Unix()
	}

	b.debounce(rel, change)
}

// classify implements spec §4.3's event categorization.
func classify(relPath string) (events.Change, bool) {
	slashed := filepath.ToSlash(relPath)
	parts := strings.Split(slashed, "/")
	if len(parts) == 0 {
		return events.Change{}, false
	}

	switch parts[0] {
	case "app":
		if len(parts) >= 2 && parts[1] == "scripts" {
			return events.Change{Kind: events.KindScriptChange, Path: slashed}, true
		}
		if strings.HasSuffix(slashed, ".py") {
			return events.Change{Kind: events.KindScriptChange, Path: slashed}, true
		}
	case "input":
		return events.Change{Kind: events.KindDataChange, Path: slashed}, true
	case "output":
		ext := strings.ToLower(filepath.Ext(slashed))
		if outputExtensions[ext] {
			return events.Change{Kind: events.KindOutputChange, Path: slashed}, true
		}
	}
	return events.Change{}, false
}

func (b *Bus) isWithinIgnoredDir(relPath string) bool {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir == "." {
		return false
	}
	parts := strings.Split(dir, "/")
	for i := range parts {
		prefix := strings.Join(parts[:i+1], "/")
		if b.policy.IsIgnoredDir(prefix) {
			return true
		}
	}
	return false
}

// debounce implements the per-path coalescing window: repeated events for
// the same path within coalesceWindow collapse into a single flush carrying
// the latest timestamp.
func (b *Bus) debounce(path string, change events.Change) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if t, exists := b.timers[path]; exists {
		t.Stop()
	}
	b.pending[path] = change
	b.timers[path] = time.AfterFunc(coalesceWindow, func() {
		b.flush(path)
	})
}

func (b *Bus) flush(path string) {
	b.pendingMu.Lock()
	change, exists := b.pending[path]
	if !exists {
		b.pendingMu.Unlock()
		return
	}
	delete(b.pending, path)
	delete(b.timers, path)
	b.pendingMu.Unlock()

	change.EmittedAt = time.Now()
	b.broadcast(change)
}

func (b *Bus) flushAll() {
	b.pendingMu.Lock()
	paths := make([]string, 0, len(b.pending))
	for p, t := range b.timers {
		t.Stop()
		paths = append(paths, p)
	}
	b.pendingMu.Unlock()
	for _, p := range paths {
		b.flush(p)
	}
}

// broadcast is at-least-once, best-effort: a full subscriber buffer drops
// the event for that subscriber rather than blocking the bus.
func (b *Bus) broadcast(c events.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- c:
		default:
			slog.Warn("watch: subscriber buffer full, dropping event", "subscriber", id, "path", c.Path)
		}
	}
}

func (b *Bus) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := b.policy.RelPath(p)
		if relErr == nil && rel != "." && b.policy.IsIgnoredDir(rel) {
			return filepath.SkipDir
		}
		if err := b.fsw.Add(p); err != nil {
			return fmt.Errorf("fsnotify add %s: %w", p, err)
		}
		return nil
	})
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
