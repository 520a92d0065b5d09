package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DeusData/odoo-graph/internal/discover"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

type sourceState struct {
	snapshot map[string]fileSnapshot
	interval time.Duration
	nextPoll time.Time
}

// RunFunc is the callback signature for triggering a pipeline run.
type RunFunc func(ctx context.Context) error

// Watcher polls an addons tree for file changes and triggers runs.
type Watcher struct {
	root  string
	opts  *discover.Options
	runFn RunFunc
	// mu is held while runFn executes.
	mu    *sync.Mutex
	state sourceState
	ctx   context.Context
}

// New creates a Watcher over root. runFn is called when file changes are
// detected, under mu when mu is non-nil.
func New(root string, opts *discover.Options, runFn RunFunc, mu *sync.Mutex) *Watcher {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Watcher{
		root:  root,
		opts:  opts,
		runFn: runFn,
		mu:    mu,
		ctx:   context.Background(),
	}
}

// Run blocks until ctx is cancelled. Ticks at baseInterval, polling only
// when the adaptive interval has elapsed.
func (w *Watcher) Run(ctx context.Context) {
	w.ctx = ctx
	ticker := time.NewTicker(baseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().Before(w.state.nextPoll) {
				continue // not due yet
			}
			w.poll()
		}
	}
}

// poll captures a snapshot of the module files and compares with previous.
// First poll: captures baseline without triggering a run.
// Subsequent polls: triggers runFn if any file changed.
func (w *Watcher) poll() {
	if _, err := os.Stat(w.root); err != nil {
		slog.Warn("watcher.root_gone", "path", w.root)
		w.state.nextPoll = time.Now().Add(maxInterval)
		return
	}

	snap, err := captureSnapshot(w.ctx, w.root, w.opts)
	if err != nil {
		slog.Warn("watcher.snapshot", "path", w.root, "err", err)
		w.state.nextPoll = time.Now().Add(w.state.interval)
		return
	}

	interval := pollInterval(len(snap))

	if w.state.snapshot == nil {
		slog.Debug("watcher.baseline", "path", w.root, "files", len(snap))
		w.state.snapshot = snap
		w.state.interval = interval
		w.state.nextPoll = time.Now().Add(interval)
		return
	}

	if snapshotsEqual(w.state.snapshot, snap) {
		w.state.interval = interval
		w.state.nextPoll = time.Now().Add(interval)
		return
	}

	slog.Info("watcher.changed", "path", w.root, "files", len(snap))
	w.mu.Lock()
	err = w.runFn(w.ctx)
	w.mu.Unlock()
	if err != nil {
		slog.Warn("watcher.run", "path", w.root, "err", err)
		// Keep old snapshot so we retry next cycle
		w.state.nextPoll = time.Now().Add(interval)
		return
	}

	w.state.snapshot = snap
	w.state.interval = interval
	w.state.nextPoll = time.Now().Add(interval)
}

// captureSnapshot discovers the modules under root and captures mtime+size
// for each of their files, manifests included.
func captureSnapshot(ctx context.Context, root string, opts *discover.Options) (map[string]fileSnapshot, error) {
	modules, err := discover.Discover(ctx, root, opts)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]fileSnapshot)
	for _, m := range modules {
		for _, rel := range m.Files {
			info, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
			if statErr != nil {
				continue
			}
			snap[rel] = fileSnapshot{
				modTime: info.ModTime(),
				size:    info.Size(),
			}
		}
	}
	return snap, nil
}

// snapshotsEqual returns true if two snapshots have identical files with same mtime+size.
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

// pollInterval computes the adaptive interval from file count.
// 1s base + 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	ms := 1000 + (fileCount/500)*1000
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}
