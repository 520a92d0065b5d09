// Package pipeline runs one synchronization of an addons tree into the
// persisted graph: change detection, parallel extraction, resolution,
// diffing, batched writes, and finally the fingerprint commit.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/DeusData/odoo-graph/internal/changes"
	"github.com/DeusData/odoo-graph/internal/diff"
	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/extract"
	"github.com/DeusData/odoo-graph/internal/lang"
	"github.com/DeusData/odoo-graph/internal/resolve"
)

// Graph is the persisted graph as the pipeline uses it.
type Graph interface {
	diff.Graph
	Snapshot(ctx context.Context) (*entity.Snapshot, error)
}

// RunRecorder persists run reports.
type RunRecorder interface {
	Record(ctx context.Context, id, mode, status string, started time.Time, took time.Duration, report any) error
}

// Options tune a pipeline.
type Options struct {
	// Root is the directory module file paths are relative to.
	Root    string
	Project string
	// FullRatio is the changed/total ratio above which a run goes FULL.
	FullRatio float64
	Workers   int
	// BatchSize caps the write operations per store transaction.
	BatchSize    int
	StoreTimeout time.Duration
	Retries      int
	Backoff      time.Duration
	Algorithm    string
	// ExcludeTransient keeps transient models out of the persisted graph.
	ExcludeTransient bool
}

// DefaultOptions returns the defaults used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		Root:             ".",
		FullRatio:        changes.DefaultFullRatio,
		Workers:          runtime.NumCPU(),
		BatchSize:        1000,
		StoreTimeout:     30 * time.Second,
		Retries:          3,
		Backoff:          200 * time.Millisecond,
		Algorithm:        changes.SHA256,
		ExcludeTransient: true,
	}
}

// Pipeline orchestrates runs against one graph and fingerprint table.
type Pipeline struct {
	Options
	Graph        Graph
	Fingerprints changes.Store
	// Runs is optional.
	Runs RunRecorder
}

// New creates a new Pipeline.
func New(opts Options, g Graph, fps changes.Store) *Pipeline {
	if opts.Project == "" {
		opts.Project = ProjectNameFromPath(opts.Root)
	}
	return &Pipeline{Options: opts, Graph: g, Fingerprints: fps}
}

// ProjectNameFromPath derives a project name from an absolute path
// by replacing path separators with dashes and trimming the leading dash.
func ProjectNameFromPath(absPath string) string {
	cleaned := filepath.ToSlash(filepath.Clean(absPath))
	name := strings.ReplaceAll(cleaned, "/", "-")
	name = strings.TrimLeft(name, "-")
	if name == "" || name == "." {
		return "root"
	}
	return name
}

// Request is one reprocessing order.
type Request struct {
	Mode    changes.Mode
	Modules []entity.Module
	// Changed files are re-extracted in INCREMENTAL mode; FULL mode
	// re-extracts every module file.
	Changed []string
	// Removed files are gone from the tree; their fingerprints are dropped.
	Removed []string
	// Fingerprints are the current file fingerprints, when already known.
	Fingerprints map[string]string
	Reason       string
}

type fileRef struct {
	module string
	order  int
	abs    string
	lang   lang.Language
}

// fileIndex maps every extractable module file to its module and position
// in dependency order.
func (p *Pipeline) fileIndex(modules []entity.Module) map[string]fileRef {
	index := make(map[string]fileRef)
	for i, m := range modules {
		for _, f := range m.Files {
			l, ok := lang.ForPath(f)
			if !ok {
				continue
			}
			if _, dup := index[f]; dup {
				continue
			}
			index[f] = fileRef{module: m.Name, order: i, abs: filepath.Join(p.Root, filepath.FromSlash(f)), lang: l}
		}
	}
	return index
}

func sortedPaths(index map[string]fileRef) []string {
	out := make([]string, 0, len(index))
	for f := range index {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SourceFiles lists the extractable files of modules for change detection.
func (p *Pipeline) SourceFiles(modules []entity.Module) []changes.SourceFile {
	index := p.fileIndex(modules)
	out := make([]changes.SourceFile, 0, len(index))
	for _, rel := range sortedPaths(index) {
		out = append(out, changes.SourceFile{RelPath: rel, AbsPath: index[rel].abs})
	}
	return out
}

// Run detects changes against the fingerprint table and reprocesses what
// the detection selected.
func (p *Pipeline) Run(ctx context.Context, modules []entity.Module) (*Report, error) {
	return p.run(ctx, modules, false)
}

// RunFull is Run with the mode forced to FULL. Fingerprints of removed
// files are still dropped.
func (p *Pipeline) RunFull(ctx context.Context, modules []entity.Module) (*Report, error) {
	return p.run(ctx, modules, true)
}

func (p *Pipeline) run(ctx context.Context, modules []entity.Module, force bool) (*Report, error) {
	slog.Info("pipeline.start", "project", p.Project, "root", p.Root, "modules", len(modules), "force", force)

	det := &changes.Detector{
		Store:     p.Fingerprints,
		FullRatio: p.FullRatio,
		Algorithm: p.Algorithm,
		Workers:   p.Workers,
	}
	plan, err := det.Detect(ctx, p.SourceFiles(modules))
	if err != nil {
		r := newReport(p.Project, changes.Incremental)
		r.fail(err)
		p.record(ctx, r)
		return r, err
	}
	if force && plan.Mode != changes.Full {
		plan.Mode, plan.Reason = changes.Full, "forced"
	}
	return p.Reprocess(ctx, Request{
		Mode:         plan.Mode,
		Modules:      modules,
		Changed:      plan.Changed,
		Removed:      plan.Removed,
		Fingerprints: plan.Fingerprints,
		Reason:       plan.Reason,
	})
}

// Reprocess re-extracts the requested files, resolves, diffs against the
// persisted graph, writes the diff in batches, and commits fingerprints
// last. A non-nil error means the run FAILED and no fingerprint changed.
func (p *Pipeline) Reprocess(ctx context.Context, req Request) (*Report, error) {
	r := newReport(p.Project, req.Mode)
	r.Reason = req.Reason
	err := p.reprocess(ctx, req, r)
	if err != nil {
		r.fail(err)
		slog.Error("pipeline.failed", "run", r.RunID, "err", err)
	} else {
		r.finish()
	}
	p.record(ctx, r)
	slog.Info("pipeline.done",
		"run", r.RunID, "mode", r.Mode, "status", r.Status,
		"processed", r.Files.Processed, "failed", r.Files.Failed, "skipped", r.Files.Skipped,
		"ops", r.Ops.Ops(), "batches", r.BatchesApplied, "elapsed", time.Since(r.StartedAt))
	return r, err
}

func (p *Pipeline) reprocess(ctx context.Context, req Request, r *Report) error {
	full := req.Mode == changes.Full
	index := p.fileIndex(req.Modules)
	r.Files.Total = len(index)

	var snap *entity.Snapshot
	if err := p.withRetry(ctx, "snapshot", func(ctx context.Context) error {
		var err error
		snap, err = p.Graph.Snapshot(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	t := time.Now()
	var targets []string
	if full {
		targets = sortedPaths(index)
	} else {
		targets = known(req.Changed, index)
	}
	results, err := p.extractAll(ctx, targets, index)
	if err != nil {
		return err
	}

	in := &resolve.Input{Modules: req.Modules}
	if !full {
		exp := changes.Expand(changes.NewContributions(snap), req.Changed, req.Removed, freshIdentities(results))
		done := make(map[string]bool, len(targets))
		for _, f := range targets {
			done[f] = true
		}
		var more []string
		for _, f := range known(exp.Files, index) {
			if !done[f] {
				more = append(more, f)
			}
		}
		extra, err := p.extractAll(ctx, more, index)
		if err != nil {
			return err
		}
		results = append(results, extra...)
		in.Existing = snap
		in.Scope = scopeOf(exp.Touched)
		slog.Info("pipeline.closure", "changed", len(targets), "closure", len(more), "touched", len(exp.Touched))
	}
	slog.Info("pass.timing", "pass", "extract", "files", len(results), "elapsed", time.Since(t))

	sortResults(results, index)
	failed := make(map[string]bool)
	for i := range results {
		res := &results[i]
		if res.Err != nil {
			failed[res.Path] = true
			r.Files.Failed++
			r.addError(res.Err)
			slog.Warn("extract.file.err", "path", res.Path, "err", res.Err)
			continue
		}
		r.Files.Processed++
		in.Models = append(in.Models, res.Models...)
		in.Views = append(in.Views, res.Views...)
	}
	r.Files.Skipped = max(r.Files.Total-r.Files.Processed-r.Files.Failed, 0)
	r.Fragments.Models = len(in.Models)
	r.Fragments.Views = len(in.Views)

	t = time.Now()
	out := resolve.Resolve(in)
	for _, e := range out.Errors {
		r.addError(e)
		slog.Warn("resolve.integrity", "err", e)
	}
	r.Fragments.Mixins = out.Stats.Mixins
	slog.Info("pass.timing", "pass", "resolve", "models", len(out.Models), "views", len(out.Views), "elapsed", time.Since(t))

	plan := diff.Compute(out, snap, full, diff.Options{ExcludeTransient: p.ExcludeTransient})
	r.Ops = plan.Stats
	r.TransientFiltered = plan.Stats.TransientFiltered
	r.touched(out, plan)

	t = time.Now()
	batches := diff.Batches(plan.Units, p.BatchSize)
	r.Batches = len(batches)
	slog.Info("diff.batches", "units", len(plan.Units), "ops", plan.Stats.Ops(), "batches", len(batches))
	for _, b := range batches {
		if err := p.withRetry(ctx, "apply batch", func(ctx context.Context) error {
			return diff.ApplyBatch(ctx, p.Graph, b)
		}); err != nil {
			return fmt.Errorf("apply batch %d/%d: %w", r.BatchesApplied+1, len(batches), err)
		}
		r.BatchesApplied++
	}
	slog.Info("pass.timing", "pass", "apply", "elapsed", time.Since(t))

	// Graph writes are done; fingerprints go last and never on cancel.
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.commitFingerprints(ctx, req, results, failed)
}

func (p *Pipeline) commitFingerprints(ctx context.Context, req Request, results []extract.Result, failed map[string]bool) error {
	fps := make(map[string]string, len(results))
	for _, res := range results {
		if failed[res.Path] {
			continue
		}
		fp, ok := req.Fingerprints[res.Path]
		if !ok {
			var err error
			if fp, err = changes.FileFingerprint(p.Algorithm, filepath.Join(p.Root, filepath.FromSlash(res.Path))); err != nil {
				slog.Warn("changes.hash.err", "path", res.Path, "err", err)
				continue
			}
		}
		fps[res.Path] = fp
	}
	if err := p.withRetry(ctx, "commit fingerprints", func(ctx context.Context) error {
		return p.Fingerprints.CommitFingerprints(ctx, fps, req.Removed)
	}); err != nil {
		return fmt.Errorf("commit fingerprints: %w", err)
	}
	slog.Info("pipeline.fingerprints", "set", len(fps), "deleted", len(req.Removed))
	return nil
}

// record persists the report; it runs even when ctx was cancelled.
func (p *Pipeline) record(ctx context.Context, r *Report) {
	if p.Runs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := p.Runs.Record(ctx, r.RunID, string(r.Mode), string(r.Status), r.StartedAt, time.Duration(r.DurationMS)*time.Millisecond, r); err != nil {
		slog.Warn("pipeline.record.err", "run", r.RunID, "err", err)
	}
}

func known(paths []string, index map[string]fileRef) []string {
	var out []string
	for _, f := range paths {
		if _, ok := index[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// freshIdentities lists the identities declared by freshly extracted files.
func freshIdentities(results []extract.Result) []entity.NodeRef {
	var refs []entity.NodeRef
	for i := range results {
		for j := range results[i].Models {
			for _, id := range results[i].Models[j].Identities() {
				refs = append(refs, entity.NodeRef{Label: entity.LabelModel, Key: id})
			}
		}
		for _, v := range results[i].Views {
			refs = append(refs, entity.NodeRef{Label: entity.LabelView, Key: v.XMLID})
		}
	}
	return refs
}

func scopeOf(touched []entity.NodeRef) *resolve.Scope {
	s := &resolve.Scope{Models: make(map[string]bool), Views: make(map[string]bool)}
	for _, ref := range touched {
		switch ref.Label {
		case entity.LabelModel:
			s.Models[ref.Key] = true
		case entity.LabelView:
			s.Views[ref.Key] = true
		}
	}
	return s
}
