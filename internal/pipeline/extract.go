package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/odoo-graph/internal/errs"
	"github.com/DeusData/odoo-graph/internal/extract"
)

// extractAll reads and extracts files in parallel. Each file fills its own
// result slot; only cancellation stops the pool, a broken file becomes a
// result with Err set.
func (p *Pipeline) extractAll(ctx context.Context, files []string, index map[string]fileRef) ([]extract.Result, error) {
	results := make([]extract.Result, len(files))
	if len(files) == 0 {
		return results, nil
	}
	numWorkers := p.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for i, rel := range files {
		ref := index[rel]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			source, err := os.ReadFile(ref.abs)
			if err != nil {
				results[i] = extract.Result{
					Path: rel, Module: ref.module, Language: ref.lang,
					Err: errs.NewParseError(rel, 0, fmt.Errorf("read: %w", err)),
				}
				return nil
			}
			results[i] = extract.File(rel, ref.module, ref.lang, source)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// sortResults orders results by module dependency position, then path, so
// resolution sees fragments in load order regardless of worker scheduling.
func sortResults(results []extract.Result, index map[string]fileRef) {
	sort.SliceStable(results, func(i, j int) bool {
		oi, oj := index[results[i].Path].order, index[results[j].Path].order
		if oi != oj {
			return oi < oj
		}
		return results[i].Path < results[j].Path
	})
}
