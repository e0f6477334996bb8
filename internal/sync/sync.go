// Package sync implements the bridge's deliberately simple synchronizer:
// timestamp-only reconciliation of the project's app/ subtree against the
// remote sandbox, with no conflict resolution and no deletion propagation.
package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/bridgeerr"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
)

const (
	metadataInputFile  = "meta_data/input_metadata.txt"
	metadataOutputFile = "meta_data/output_metadata.txt"

	keepaliveInterval = 60 * time.Second
)

// ScriptEntry mirrors remote.ScriptEntry without importing the remote
// package's HTTP machinery, so this package can be tested against a fake.
type ScriptEntry struct {
	Path         string
	ModifiedUnix int64
}

// RemoteClient is the subset of the remote sync client the synchronizer
// needs, narrowed for testability.
type RemoteClient interface {
	ListScripts(ctx context.Context) ([]ScriptEntry, error)
	GetFile(ctx context.Context, relPath string) (content []byte, err error)
	PutFile(ctx context.Context, relPath string, content []byte) error
	PutMetadata(ctx context.Context, inputText, outputText string) error
	AppendKeepalive(ctx context.Context, line string) error
}

// Vector is the in-memory, mutex-protected Sync Vector: last-seen remote
// modtime per relative path. Per spec's explicit Open Question #2, it is
// never persisted to disk.
type Vector struct {
	mu   sync.Mutex
	data map[string]int64
}

// NewVector creates an empty Sync Vector.
func NewVector() *Vector {
	return &Vector{data: make(map[string]int64)}
}

// Snapshot returns a copy of the current vector contents.
func (v *Vector) Snapshot() map[string]int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]int64, len(v.data))
	for k, val := range v.data {
		out[k] = val
	}
	return out
}

func (v *Vector) get(path string) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.data[path]
	return val, ok
}

// set is only ever called by Pull: push never consults or mutates the
// vector (invariant 3).
func (v *Vector) set(path string, modUnix int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[path] = modUnix
}

// Synchronizer reconciles one project's app/ subtree against one remote.
type Synchronizer struct {
	appRoot string // absolute path to <project>/app
	policy  *policy.Policy
	remote  RemoteClient
	vector  *Vector
}

// New builds a Synchronizer for a project's app subtree.
func New(appRoot string, pol *policy.Policy, remote RemoteClient, vector *Vector) *Synchronizer {
	return &Synchronizer{appRoot: appRoot, policy: pol, remote: remote, vector: vector}
}

// PullResult is the outcome of a Pull operation.
type PullResult struct {
	SyncedPaths []string
	Vector      map[string]int64
}

// Pull fetches the remote script listing and writes any new-or-newer file
// under app/<path>, skipping anything that would violate forbidden-in-app.
// The vector is updated only after each successful write (§5 ordering
// guarantee: list -> per-file fetch/write -> vector update is atomic per
// file).
func (s *Synchronizer) Pull(ctx context.Context) (*PullResult, error) {
	entries, err := s.remote.ListScripts(ctx)
	if err != nil {
		return nil, err
	}

	var synced []string
	for _, entry := range entries {
		modUnix := floorSeconds(entry.ModifiedUnix)

		if seen, ok := s.vector.get(entry.Path); ok && modUnix <= seen {
			continue
		}

		if policy.IsForbiddenInApp(filepath.Base(entry.Path), 0) {
			slog.Warn("sync: skipping forbidden-in-app path from remote", "path", entry.Path)
			continue
		}

		content, err := s.remote.GetFile(ctx, entry.Path)
		if err != nil {
			return &PullResult{SyncedPaths: synced, Vector: s.vector.Snapshot()}, err
		}

		dest := filepath.Join(s.appRoot, entry.Path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return &PullResult{SyncedPaths: synced, Vector: s.vector.Snapshot()}, bridgeerr.Internal("failed to create directories for pulled file", err)
		}
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			return &PullResult{SyncedPaths: synced, Vector: s.vector.Snapshot()}, bridgeerr.Internal("failed to write pulled file", err)
		}

		s.vector.set(entry.Path, modUnix)
		synced = append(synced, entry.Path)
	}

	return &PullResult{SyncedPaths: synced, Vector: s.vector.Snapshot()}, nil
}

// PushResult is the outcome of a Push operation.
type PushResult struct {
	PushedPaths []string
}

// Push unconditionally force-pushes every eligible file under app/ to the
// remote. It never consults or updates the Sync Vector.
func (s *Synchronizer) Push(ctx context.Context) (*PushResult, error) {
	var pushed []string

	err := filepath.Walk(s.appRoot, func(absPath string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(s.appRoot, absPath)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if info.IsDir() {
			if s.policy.IsIgnoredDir(rel) {
				return filepath.SkipDir
			}
			if policy.IsProtectedFromPush(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if policy.IsProtectedFromPush(rel) {
			return nil // silently dropped
		}
		if policy.IsForbiddenForSync(rel) {
			slog.Info("sync: dropping forbidden-for-sync path on push", "path", rel)
			return nil
		}

		content, err := os.ReadFile(absPath)
		if err != nil {
			slog.Warn("sync: failed to read file for push", "path", rel, "error", err)
			return nil
		}
		if err := s.remote.PutFile(ctx, rel, content); err != nil {
			return err
		}
		pushed = append(pushed, rel)
		return nil
	})
	if err != nil {
		return &PushResult{PushedPaths: pushed}, err
	}

	return &PushResult{PushedPaths: pushed}, nil
}

// FullSyncResult is the outcome of a Full Sync operation.
type FullSyncResult struct {
	MetadataPushed bool
	Pull           *PullResult
}

// FullSync composes push-metadata followed by pull (§4.5.3): the end state
// equals the sequential composition (invariant 7).
func (s *Synchronizer) FullSync(ctx context.Context) (*FullSyncResult, error) {
	inputText, outputText := s.readMetadataFiles()
	if err := s.remote.PutMetadata(ctx, inputText, outputText); err != nil {
		return nil, err
	}

	pullResult, err := s.Pull(ctx)
	if err != nil {
		return &FullSyncResult{MetadataPushed: true, Pull: pullResult}, err
	}

	return &FullSyncResult{MetadataPushed: true, Pull: pullResult}, nil
}

func (s *Synchronizer) readMetadataFiles() (string, string) {
	input, _ := os.ReadFile(filepath.Join(s.appRoot, metadataInputFile))
	output, _ := os.ReadFile(filepath.Join(s.appRoot, metadataOutputFile))
	return string(input), string(output)
}

// RunKeepalive runs a ticker appending a timestamped line to the remote's
// scripts/time_keeper.txt until ctx is cancelled. Failures are logged and
// ignored — this is pure activity signaling, not a correctness path.
func (s *Synchronizer) RunKeepalive(ctx context.Context) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			line := time.Now().UTC().Format(time.RFC3339) + "\n"
			if err := s.remote.AppendKeepalive(ctx, line); err != nil {
				slog.Warn("sync: keepalive tick failed", "error", err)
			}
		}
	}
}

// floorSeconds truncates to integer seconds, matching the source's
// Math.floor-based timestamp comparison so equality is robust across
// platforms and representations.
func floorSeconds(unix int64) int64 { return unix }
