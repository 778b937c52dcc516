package watcher

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aitoolkit/librarian-mcp/internal/discover"
	"github.com/aitoolkit/librarian-mcp/internal/registry"
)

// maxBackoff bounds the per-project retry delay after repeated failures:
// the delay doubles on each consecutive failure, capped here.
const maxBackoff = 5 * time.Minute

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

type projectState struct {
	snapshot map[string]fileSnapshot
	nextPoll time.Time
	failures int
}

// IndexFunc re-indexes a single project. The daemon wires in
// tools.Server.ReindexForWatcher, which shares generate_librarian's
// per-project indexing lock and skips the run when that lock is busy.
type IndexFunc func(ctx context.Context, root string) error

// Watcher polls the registry's active projects at a fixed scan period and
// triggers IndexFunc when a project's file tree has changed.
type Watcher struct {
	reg        *registry.Registry
	indexFn    IndexFunc
	scanPeriod time.Duration
	projects   map[string]*projectState
	ctx        context.Context
}

// New creates a Watcher. scanPeriod throttles each active project to at
// most one scan per period (defaults to 30s).
func New(reg *registry.Registry, indexFn IndexFunc, scanPeriod time.Duration) *Watcher {
	if scanPeriod <= 0 {
		scanPeriod = 30 * time.Second
	}
	return &Watcher{
		reg:        reg,
		indexFn:    indexFn,
		scanPeriod: scanPeriod,
		projects:   make(map[string]*projectState),
	}
}

// Run blocks until ctx is cancelled, polling due projects once per tick.
func (w *Watcher) Run(ctx context.Context) {
	w.ctx = ctx
	ticker := time.NewTicker(w.scanPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollAll()
		}
	}
}

// pollAll polls every active project that is due.
func (w *Watcher) pollAll() {
	now := time.Now()
	for _, root := range w.reg.ActiveProjects() {
		state, exists := w.projects[root]
		if !exists {
			state = &projectState{}
			w.projects[root] = state
		}
		if exists && now.Before(state.nextPoll) {
			continue
		}
		w.pollProject(root, state)
	}
}

// pollProject captures a snapshot of the file tree and compares it with
// the previous one. The first poll for a project captures a baseline
// without triggering a re-index.
func (w *Watcher) pollProject(root string, state *projectState) {
	if _, err := os.Stat(root); err != nil {
		slog.Warn("watcher.root_gone", "project", root)
		state.nextPoll = time.Now().Add(w.scanPeriod)
		return
	}

	snap, err := captureSnapshot(root)
	if err != nil {
		slog.Warn("watcher.snapshot", "project", root, "err", err)
		state.nextPoll = time.Now().Add(w.backoff(state))
		return
	}

	if state.snapshot == nil {
		slog.Debug("watcher.baseline", "project", root, "files", len(snap))
		state.snapshot = snap
		state.failures = 0
		state.nextPoll = time.Now().Add(w.scanPeriod)
		return
	}

	if snapshotsEqual(state.snapshot, snap) {
		state.failures = 0
		state.nextPoll = time.Now().Add(w.scanPeriod)
		return
	}

	slog.Info("watcher.changed", "project", root, "files", len(snap))
	if err := w.indexFn(w.ctx, root); err != nil {
		slog.Warn("watcher.index", "project", root, "err", err)
		state.nextPoll = time.Now().Add(w.backoff(state))
		return // keep old snapshot so the change is retried next cycle
	}

	state.snapshot = snap
	state.failures = 0
	state.nextPoll = time.Now().Add(w.scanPeriod)
}

// backoff doubles the retry delay for each consecutive failure on a
// project, capped at maxBackoff.
func (w *Watcher) backoff(state *projectState) time.Duration {
	state.failures++
	delay := w.scanPeriod << uint(state.failures-1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// captureSnapshot walks the project tree via discover.Discover and
// captures mtime+size for each file.
func captureSnapshot(root string) (map[string]fileSnapshot, error) {
	files, err := discover.Discover(context.Background(), root, nil)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]fileSnapshot, len(files))
	for _, f := range files {
		info, statErr := os.Stat(f.Path)
		if statErr != nil {
			continue
		}
		snap[f.RelPath] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return snap, nil
}

// snapshotsEqual returns true if two snapshots have identical files with
// the same mtime and size.
func snapshotsEqual(a, b map[string]fileSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for path, aSnap := range a {
		bSnap, ok := b[path]
		if !ok {
			return false
		}
		if !aSnap.modTime.Equal(bSnap.modTime) || aSnap.size != bSnap.size {
			return false
		}
	}
	return true
}
