package changes

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Mode is the reprocessing strategy of a run.
type Mode string

const (
	Full        Mode = "FULL"
	Incremental Mode = "INCREMENTAL"
)

// DefaultFullRatio is the changed/total ratio above which a run goes FULL.
const DefaultFullRatio = 0.3

// SourceFile is one file of the current tree.
type SourceFile struct {
	RelPath string
	AbsPath string
}

// Plan is the outcome of change detection.
type Plan struct {
	Mode Mode
	// Changed files are new or modified, sorted.
	Changed []string
	// Removed files are in the table but gone from the tree, sorted.
	Removed   []string
	Unchanged int
	Total     int
	Ratio     float64
	// Fingerprints holds the current fingerprint of every hashable file.
	Fingerprints map[string]string
	// Reason explains a FULL decision.
	Reason string
}

// Noop reports whether nothing needs to be done.
func (p *Plan) Noop() bool {
	return p.Mode == Incremental && len(p.Changed) == 0 && len(p.Removed) == 0
}

// Detector compares the current tree against the fingerprint table.
type Detector struct {
	Store     Store
	FullRatio float64
	Algorithm string
	Workers   int
}

// Detect fingerprints files in parallel and decides the mode. An empty
// table always yields FULL.
func (d *Detector) Detect(ctx context.Context, files []SourceFile) (*Plan, error) {
	stored, err := d.Store.Fingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}

	hashes, err := d.hashAll(ctx, files)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Total: len(files), Fingerprints: make(map[string]string, len(files))}
	present := make(map[string]bool, len(files))
	for i, f := range files {
		present[f.RelPath] = true
		h := hashes[i]
		if h != "" {
			plan.Fingerprints[f.RelPath] = h
		}
		if prev, ok := stored[f.RelPath]; ok && h != "" && prev == h {
			plan.Unchanged++
			continue
		}
		plan.Changed = append(plan.Changed, f.RelPath)
	}
	for path := range stored {
		if !present[path] {
			plan.Removed = append(plan.Removed, path)
		}
	}
	sort.Strings(plan.Changed)
	sort.Strings(plan.Removed)

	denom := len(files) + len(plan.Removed)
	if denom > 0 {
		plan.Ratio = float64(len(plan.Changed)+len(plan.Removed)) / float64(denom)
	}
	ratio := d.FullRatio
	if ratio <= 0 {
		ratio = DefaultFullRatio
	}
	switch {
	case len(stored) == 0:
		plan.Mode, plan.Reason = Full, "empty fingerprint table"
	case plan.Ratio > ratio:
		plan.Mode, plan.Reason = Full, fmt.Sprintf("changed ratio %.2f exceeds %.2f", plan.Ratio, ratio)
	default:
		plan.Mode = Incremental
	}

	slog.Info("changes.detect",
		"mode", plan.Mode, "changed", len(plan.Changed), "removed", len(plan.Removed),
		"unchanged", plan.Unchanged, "ratio", plan.Ratio)
	return plan, nil
}

// hashAll returns one fingerprint per file; unreadable files get "".
func (d *Detector) hashAll(ctx context.Context, files []SourceFile) ([]string, error) {
	results := make([]string, len(files))
	numWorkers := d.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}
	if numWorkers == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for i, f := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			h, err := FileFingerprint(d.Algorithm, f.AbsPath)
			if err != nil {
				slog.Warn("changes.hash.err", "path", f.RelPath, "err", err)
				return nil
			}
			results[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// IsStale reports whether one file's content differs from its recorded
// fingerprint. Files without an entry are stale.
func (d *Detector) IsStale(ctx context.Context, f SourceFile) (bool, error) {
	prev, ok, err := d.Store.GetFingerprint(ctx, f.RelPath)
	if err != nil {
		return false, fmt.Errorf("get fingerprint %s: %w", f.RelPath, err)
	}
	if !ok {
		return true, nil
	}
	cur, err := FileFingerprint(d.Algorithm, f.AbsPath)
	if err != nil {
		return true, nil
	}
	return cur != prev, nil
}
