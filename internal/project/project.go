// Package project implements project selection, scaffolding, and the
// metadata builder: the lifecycle operations around a single active
// project root.
package project

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/rjeczalik/notify"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/scripts"
	syncvector "github.com/vibefoundry/vibefoundry-sandbox/internal/sync"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/treescan"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/utils"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/watch"
)

const (
	lockFileName       = ".bridge.lock"
	metadataBuildDelay = 2 * time.Second
)

// ErrProjectLocked is returned when another process already holds the
// project's single-instance lock.
var ErrProjectLocked = errors.New("project already open in another process")

var defaultClaudeMD = `# CLAUDE.md

This project was scaffolded by vibefoundry-bridge. Describe your analysis
goals here; app/scripts holds your Python scripts and app/meta_data holds
generated summaries of input/ and output/.
`

var defaultMetadataFarmer = `"""Placeholder metadata farmer.

Invoked by the bridge's metadata builder is not required; this file exists
so app/ has a documented entry point for custom metadata generation.
"""
`

// Info is the caller-facing summary of the active project returned by
// Select.
type Info struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Project is the live, selected project: its root, watcher, lock, and
// scanner, bundled so the HTTP layer has one object to hold onto.
type Project struct {
	Root   string
	Policy *policy.Policy
	Scan   *treescan.Scanner
	Watch  *watch.Bus

	// SyncVector is the project's Sync Vector, created once per selection
	// and shared across every sync request so pull progress is monotone for
	// the lifetime of the selection (it is never persisted to disk).
	SyncVector *syncvector.Vector

	// Runner is the project's single script execution controller, created
	// once per selection and shared across every /api/scripts request so
	// its run-queue mutex actually serializes concurrent requests.
	Runner *scripts.Runner

	AppRoot string
	lock    *flock.Flock

	builderMu    sync.Mutex
	builderTimer *time.Timer

	metadataEvents chan notify.EventInfo
}

// Manager owns at most one active Project at a time; selecting a new
// project closes out the previous one. Background work started by Select
// (the watcher loop, the metadata trigger watch) runs against the Manager's
// own daemon-lifetime context, not the context of the Select call itself —
// an HTTP request context would cancel the moment the response is written.
type Manager struct {
	ctx context.Context

	mu      sync.Mutex
	current *Project
}

// NewManager builds a Manager whose background goroutines run for the
// lifetime of daemonCtx (typically the process's top-level context).
func NewManager(daemonCtx context.Context) *Manager {
	return &Manager{ctx: daemonCtx}
}

// Current returns the active project, if any.
func (m *Manager) Current() *Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Select validates absPath, scaffolds the conventional subtree, takes the
// single-instance lock, starts the watcher, and replaces any previously
// active project. Re-selecting the already-active path is a no-op beyond
// re-validating scaffolding.
func (m *Manager) Select(absPath string) (Info, error) {
	root, err := utils.ResolvePath(absPath)
	if err != nil {
		return Info{}, fmt.Errorf("resolve project path: %w", err)
	}

	if !utils.DirExists(root) {
		return Info{}, fmt.Errorf("project path does not exist or is not a directory: %s", root)
	}
	if !utils.IsWritable(root) {
		return Info{}, fmt.Errorf("project path is not writable: %s", root)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Root == root {
		if err := scaffold(root); err != nil {
			return Info{}, err
		}
		return Info{Name: filepath.Base(root), Path: root}, nil
	}

	if m.current != nil {
		m.current.close()
		m.current = nil
	}

	proj, err := open(root)
	if err != nil {
		return Info{}, err
	}

	proj.Watch.Start(m.ctx)
	go proj.watchForMetadataTriggers(m.ctx)

	m.current = proj
	return Info{Name: filepath.Base(root), Path: root}, nil
}

func open(root string) (*Project, error) {
	if err := scaffold(root); err != nil {
		return nil, err
	}

	lockPath := filepath.Join(root, lockFileName)
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock project: %w", err)
	}
	if !locked {
		return nil, ErrProjectLocked
	}

	pol := policy.New(root, nil)
	bus, err := watch.New(root, pol)
	if err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	appRoot := filepath.Join(root, "app")
	return &Project{
		Root:           root,
		Policy:         pol,
		Scan:           treescan.New(root, pol, bus),
		Watch:          bus,
		SyncVector:     syncvector.NewVector(),
		Runner:         scripts.New(appRoot),
		AppRoot:        appRoot,
		lock:           fl,
		metadataEvents: make(chan notify.EventInfo, 32),
	}, nil
}

// close stops the watcher and metadata trigger watch, and releases the
// single-instance lock. Called only while Manager's mutex is held.
func (p *Project) close() {
	p.Watch.Stop()
	notify.Stop(p.metadataEvents)
	if p.lock.Locked() {
		_ = p.lock.Unlock()
	}
	_ = os.Remove(p.lock.Path())
}

// scaffold creates the conventional subtree and default files, skipping
// anything that already exists (Select is idempotent).
func scaffold(root string) error {
	dirs := []string{
		filepath.Join(root, "input"),
		filepath.Join(root, "output"),
		filepath.Join(root, "app"),
		filepath.Join(root, "app", "scripts"),
		filepath.Join(root, "app", "meta_data"),
	}
	for _, d := range dirs {
		if err := utils.EnsureDir(d); err != nil {
			return fmt.Errorf("scaffold %s: %w", d, err)
		}
	}

	defaults := map[string]string{
		filepath.Join(root, "app", "CLAUDE.md"):         defaultClaudeMD,
		filepath.Join(root, "app", "metadatafarmer.py"): defaultMetadataFarmer,
	}
	for path, content := range defaults {
		if utils.FileExists(path) {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write default %s: %w", path, err)
		}
	}
	return nil
}

// watchForMetadataTriggers runs a narrow recursive notify.Watch over
// input/ and output/, distinct from the primary fsnotify-backed Bus so it
// never competes for the same watch descriptors, and debounces every write
// into a single metadata rebuild.
func (p *Project) watchForMetadataTriggers(ctx context.Context) {
	for _, dir := range []string{filepath.Join(p.Root, "input"), filepath.Join(p.Root, "output")} {
		if err := notify.Watch(dir+"/...", p.metadataEvents, notify.Write, notify.Create, notify.Remove); err != nil {
			slog.Warn("metadata trigger watch failed to start", "dir", dir, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-p.metadataEvents:
			if !ok {
				return
			}
			p.scheduleMetadataBuild()
		}
	}
}

func (p *Project) scheduleMetadataBuild() {
	p.builderMu.Lock()
	defer p.builderMu.Unlock()

	if p.builderTimer != nil {
		p.builderTimer.Stop()
	}
	p.builderTimer = time.AfterFunc(metadataBuildDelay, func() {
		if err := p.BuildMetadata(); err != nil {
			slog.Warn("metadata build failed", "project", p.Root, "error", err)
		}
	})
}

// BuildMetadata walks input/ and output/, producing per-file textual
// summaries into app/meta_data/{input,output}_metadata.txt. Safe to call
// directly (explicit request) or via the debounced watch trigger.
func (p *Project) BuildMetadata() error {
	inputSummary, err := summarizeDir(filepath.Join(p.Root, "input"))
	if err != nil {
		return fmt.Errorf("summarize input: %w", err)
	}
	outputSummary, err := summarizeDir(filepath.Join(p.Root, "output"))
	if err != nil {
		return fmt.Errorf("summarize output: %w", err)
	}

	metaDir := filepath.Join(p.Root, "app", "meta_data")
	if err := utils.EnsureDir(metaDir); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(metaDir, "input_metadata.txt"), []byte(inputSummary), 0o644); err != nil {
		return fmt.Errorf("write input_metadata.txt: %w", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, "output_metadata.txt"), []byte(outputSummary), 0o644); err != nil {
		return fmt.Errorf("write output_metadata.txt: %w", err)
	}
	return nil
}

// summarizeDir walks dir non-recursively-excluded (full recursive walk) and
// produces one block per file: path, size, and for CSVs, row count and
// column names with a coarse inferred type.
func summarizeDir(dir string) (string, error) {
	var sb strings.Builder

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}

		fmt.Fprintf(&sb, "path: %s\nsize: %s\n", filepath.ToSlash(rel), humanize.Bytes(uint64(info.Size())))

		if strings.EqualFold(filepath.Ext(path), ".csv") {
			rows, cols, types, csvErr := inspectCSV(path)
			if csvErr == nil {
				fmt.Fprintf(&sb, "rows: %d\ncolumns: %s\n", rows, formatColumns(cols, types))
			}
		}
		sb.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// inspectCSV reads a CSV's header and samples the first data row to infer a
// coarse per-column type (int, float, or string), then counts remaining
// rows without holding them in memory.
func inspectCSV(path string) (rowCount int, columns []string, types []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, nil, nil, err
	}
	columns = header
	types = make([]string, len(header))
	for i := range types {
		types[i] = "string"
	}

	sampled := false
	for {
		record, readErr := r.Read()
		if readErr != nil {
			break
		}
		rowCount++
		if !sampled {
			for i, v := range record {
				if i >= len(types) {
					break
				}
				types[i] = inferType(v)
			}
			sampled = true
		}
	}
	return rowCount, columns, types, nil
}

func inferType(v string) string {
	if _, err := strconv.Atoi(v); err == nil {
		return "int"
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return "float"
	}
	return "string"
}

func formatColumns(cols, types []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		t := "string"
		if i < len(types) {
			t = types[i]
		}
		parts[i] = fmt.Sprintf("%s(%s)", c, t)
	}
	return strings.Join(parts, ", ")
}
