package changes

import (
	"sort"

	"github.com/DeusData/odoo-graph/internal/entity"
)

// Contributions indexes the persisted graph by contributing source file.
type Contributions struct {
	snap   *entity.Snapshot
	byFile map[string][]entity.NodeRef
}

// NewContributions builds the file -> identity index from the recorded
// source_files of every persisted model and view.
func NewContributions(snap *entity.Snapshot) *Contributions {
	c := &Contributions{snap: snap, byFile: make(map[string][]entity.NodeRef)}
	for _, label := range []string{entity.LabelModel, entity.LabelView} {
		for _, key := range snap.Keys(label) {
			for _, f := range snap.SourceFiles(label, key) {
				c.byFile[f] = append(c.byFile[f], entity.NodeRef{Label: label, Key: key})
			}
		}
	}
	return c
}

// IdentitiesOf returns the models and views the given files contributed to
// in the previous run.
func (c *Contributions) IdentitiesOf(files []string) []entity.NodeRef {
	set := make(map[entity.NodeRef]bool)
	for _, f := range files {
		for _, ref := range c.byFile[f] {
			set[ref] = true
		}
	}
	return sortedRefs(set)
}

// Contributors returns every file recorded as contributing to refs.
func (c *Contributions) Contributors(refs []entity.NodeRef) []string {
	set := make(map[string]bool)
	for _, ref := range refs {
		for _, f := range c.snap.SourceFiles(ref.Label, ref.Key) {
			set[f] = true
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Inheritors returns the models and views whose persisted inheritance
// edges point at one of refs. Model inheritors are one level deep. View
// extensions are followed down the whole EXTENDS chain, since an extension
// view without a model or type takes them from any ancestor.
func (c *Contributions) Inheritors(refs []entity.NodeRef) []entity.NodeRef {
	targets := make(map[entity.NodeRef]bool, len(refs))
	for _, r := range refs {
		targets[r] = true
	}
	set := make(map[entity.NodeRef]bool)
	for _, e := range c.snap.Edges() {
		switch e.Type {
		case entity.Inherits, entity.InheritsDelegation:
		default:
			continue
		}
		if targets[entity.NodeRef{Label: entity.LabelModel, Key: e.To}] {
			set[entity.NodeRef{Label: entity.LabelModel, Key: e.From}] = true
		}
	}

	children := make(map[string][]string)
	for _, e := range c.snap.EdgesOfType(entity.Extends) {
		children[e.To] = append(children[e.To], e.From)
	}
	var queue []string
	for _, r := range refs {
		if r.Label == entity.LabelView {
			queue = append(queue, r.Key)
		}
	}
	seen := make(map[string]bool, len(queue))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, child := range children[id] {
			set[entity.NodeRef{Label: entity.LabelView, Key: child}] = true
			queue = append(queue, child)
		}
	}
	return sortedRefs(set)
}

// StubTargets returns the persisted stub models and views that edges owned
// by refs point at. Field edges count as owned by their model.
func (c *Contributions) StubTargets(refs []entity.NodeRef) []entity.NodeRef {
	owners := make(map[entity.NodeRef]bool, len(refs))
	for _, r := range refs {
		owners[r] = true
	}
	set := make(map[entity.NodeRef]bool)
	for _, e := range c.snap.Edges() {
		label, key := e.ID().Owner()
		if label == entity.LabelField {
			label = entity.LabelModel
			key, _ = entity.SplitFieldKey(key)
		}
		if !owners[entity.NodeRef{Label: label, Key: key}] {
			continue
		}
		_, to := e.Type.Endpoints()
		if to != entity.LabelModel && to != entity.LabelView {
			continue
		}
		if props, ok := c.snap.Node(to, e.To); ok && entity.PropBool(props, "stub") {
			set[entity.NodeRef{Label: to, Key: e.To}] = true
		}
	}
	return sortedRefs(set)
}

// Expansion is the reprocessing set of an incremental run.
type Expansion struct {
	// Touched are the identities whose canonical state is rebuilt.
	Touched []entity.NodeRef
	// Files are the existing files to re-extract, sorted.
	Files []string
}

// Expand computes the incremental closure: identities previously fed by
// changed or removed files, identities newly declared by changed files,
// their inheritors, and the stubs any of those pointed at; then every file
// contributing to any of them.
func Expand(c *Contributions, changed, removed []string, fresh []entity.NodeRef) *Expansion {
	seed := make(map[entity.NodeRef]bool)
	for _, r := range c.IdentitiesOf(changed) {
		seed[r] = true
	}
	for _, r := range c.IdentitiesOf(removed) {
		seed[r] = true
	}
	for _, r := range fresh {
		seed[r] = true
	}
	seedRefs := sortedRefs(seed)
	touched := make(map[entity.NodeRef]bool, len(seed))
	for _, r := range seedRefs {
		touched[r] = true
	}
	for _, r := range c.Inheritors(seedRefs) {
		touched[r] = true
	}
	// A stub no longer referenced is only dropped when it is in scope.
	for _, r := range c.StubTargets(sortedRefs(touched)) {
		touched[r] = true
	}
	touchedRefs := sortedRefs(touched)

	gone := make(map[string]bool, len(removed))
	for _, f := range removed {
		gone[f] = true
	}
	files := make(map[string]bool)
	for _, f := range changed {
		files[f] = true
	}
	for _, f := range c.Contributors(touchedRefs) {
		if !gone[f] {
			files[f] = true
		}
	}
	out := &Expansion{Touched: touchedRefs, Files: make([]string, 0, len(files))}
	for f := range files {
		out.Files = append(out.Files, f)
	}
	sort.Strings(out.Files)
	return out
}

func sortedRefs(set map[entity.NodeRef]bool) []entity.NodeRef {
	out := make([]entity.NodeRef, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Key < out[j].Key
	})
	return out
}
