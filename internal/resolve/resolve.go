// Package resolve merges per-file fragments into canonical Model, View and
// Field entities plus the typed edges between them.
//
// Model fragments are folded per identity in input order, which the caller
// arranges as module dependency order, then file path, then line. View
// fragments are folded per xml id the same way. Output covers only the
// identities in scope: every identity in a full run, or the touched set of
// an incremental run.
package resolve

import (
	"sort"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
)

// Scope restricts resolution to touched identities. A nil *Scope means a
// full run.
type Scope struct {
	Models map[string]bool
	Views  map[string]bool
}

// Input is everything one resolution needs.
type Input struct {
	// Modules is the complete discovered module set in dependency order.
	Modules []entity.Module
	Models  []entity.ModelFragment
	Views   []entity.ViewFragment
	// Existing is the persisted graph; consulted for view parents, stub
	// decisions and cycle detection. Nil for full runs.
	Existing *entity.Snapshot
	Scope    *Scope
}

// NodeRef names a node.
type NodeRef = entity.NodeRef

// Stats counts what resolution saw.
type Stats struct {
	Mixins       int
	FanOuts      int
	Stubs        int
	Cycles       int
	Ignored      int
	DroppedEdges int
}

// Output is the replacement state for every identity in scope.
type Output struct {
	Modules []entity.Module
	// StubModules are depended-on module names that were never discovered.
	StubModules []string
	Models      []*entity.Model
	Views       []*entity.View
	// Edges holds every edge owned by an output node.
	Edges []entity.Edge
	// Removed are in-scope identities with no fragments left and no
	// remaining references.
	Removed []NodeRef
	Errors  []error
	Stats   Stats
}

type resolver struct {
	in  *Input
	out *Output

	models map[string]*entity.Model
	// introduced records identities that have a declaring fragment.
	introduced map[string]bool
	views      map[string]*entity.View
	modules    map[string]bool
	edges      []entity.Edge
}

// Resolve merges fragments into canonical entities.
func Resolve(in *Input) *Output {
	r := &resolver{
		in:         in,
		out:        &Output{},
		models:     make(map[string]*entity.Model),
		introduced: make(map[string]bool),
		views:      make(map[string]*entity.View),
		modules:    make(map[string]bool),
	}
	r.resolveModules()
	r.foldModels()
	r.foldViews()
	r.modelEdges()
	r.viewEdges()
	r.breakCycles()
	r.materialize()
	return r.out
}

func (r *resolver) inScopeModel(name string) bool {
	return r.in.Scope == nil || r.in.Scope.Models[name]
}

func (r *resolver) inScopeView(id string) bool {
	return r.in.Scope == nil || r.in.Scope.Views[id]
}

func (r *resolver) resolveModules() {
	for _, m := range r.in.Modules {
		r.modules[m.Name] = true
	}
	stubs := make(map[string]bool)
	for _, m := range r.in.Modules {
		r.out.Modules = append(r.out.Modules, m)
		for _, dep := range m.Depends {
			r.edges = append(r.edges, entity.Edge{Type: entity.DependsOn, From: m.Name, To: dep})
			if !r.modules[dep] && !stubs[dep] {
				stubs[dep] = true
				r.out.StubModules = append(r.out.StubModules, dep)
			}
		}
	}
	sort.Strings(r.out.StubModules)
}

// foldModels merges fragments per identity. Fields of a repeated name keep
// the latest kind and take later attributes key by key.
func (r *resolver) foldModels() {
	for i := range r.in.Models {
		frag := &r.in.Models[i]
		ids := frag.Identities()
		if len(ids) == 0 {
			r.out.Stats.Mixins++
			continue
		}
		if frag.DeclaredName == "" && len(ids) > 1 {
			r.out.Stats.FanOuts++
			r.out.Errors = append(r.out.Errors, errs.NewAmbiguityError(
				frag.SourceFile+":"+frag.ClassName, ids, "extension without _name applied to every target"))
		}
		for _, name := range ids {
			if !r.inScopeModel(name) {
				r.out.Stats.Ignored++
				continue
			}
			r.foldModel(name, frag)
		}
	}
}

func (r *resolver) foldModel(name string, frag *entity.ModelFragment) {
	m, ok := r.models[name]
	if !ok {
		m = &entity.Model{
			Name:       name,
			Module:     frag.Module,
			Kind:       frag.Kind(),
			IsAbstract: frag.IsAbstract,
			Fields:     make(map[string]entity.FieldDecl),
		}
		r.models[name] = m
	}
	if !r.introduced[name] && frag.DeclaredName == name && !contains(frag.InheritTargets, name) {
		r.introduced[name] = true
		m.Module = frag.Module
		m.Kind = frag.Kind()
		m.IsAbstract = frag.IsAbstract
	}
	if frag.Description != "" {
		m.Description = frag.Description
	}
	if frag.IsTransient {
		m.IsTransient = true
	}
	m.ClassNames = appendUnique(m.ClassNames, frag.ClassName)
	m.SourceFiles = appendUnique(m.SourceFiles, frag.SourceFile)
	for _, f := range frag.Fields {
		m.Fields[f.Name] = mergeField(m.Fields[f.Name], f)
	}
}

func mergeField(prev, next entity.FieldDecl) entity.FieldDecl {
	if prev.Name == "" {
		out := next
		out.Attributes = copyAttrs(next.Attributes)
		return out
	}
	out := entity.FieldDecl{Name: next.Name, Type: next.Type, RelationTarget: next.RelationTarget}
	if out.RelationTarget == "" && prev.Type == next.Type {
		out.RelationTarget = prev.RelationTarget
	}
	out.Attributes = copyAttrs(prev.Attributes)
	for k, v := range next.Attributes {
		if out.Attributes == nil {
			out.Attributes = make(map[string]string)
		}
		out.Attributes[k] = v
	}
	return out
}

func copyAttrs(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (r *resolver) foldViews() {
	for _, frag := range r.in.Views {
		if !r.inScopeView(frag.XMLID) {
			r.out.Stats.Ignored++
			continue
		}
		v, ok := r.views[frag.XMLID]
		if !ok {
			v = &entity.View{
				XMLID:    frag.XMLID,
				Module:   frag.Module,
				Priority: frag.Priority,
				ViewType: entity.ViewTypeUnknown,
			}
			r.views[frag.XMLID] = v
		}
		if frag.Name != "" {
			v.Name = frag.Name
		}
		if frag.DeclaredModel != "" {
			v.Model = frag.DeclaredModel
		}
		if frag.InheritID != "" {
			v.InheritID = frag.InheritID
		}
		if frag.ViewType != "" && frag.ViewType != entity.ViewTypeUnknown {
			v.ViewType = frag.ViewType
		}
		if ok && frag.Priority != entity.DefaultViewPriority {
			v.Priority = frag.Priority
		}
		v.SourceFiles = appendUnique(v.SourceFiles, frag.SourceFile)
	}
}

// modelEdges emits inheritance, delegation and field edges for every
// folded model, synthesizing delegation foreign keys that were not declared.
// Fan-out extensions gain fields but no INHERITS edges between their targets.
func (r *resolver) modelEdges() {
	delegations := make(map[string]map[string]string)
	inherits := make(map[string][]string)
	for i := range r.in.Models {
		frag := &r.in.Models[i]
		for _, name := range frag.Identities() {
			if _, ok := r.models[name]; !ok {
				continue
			}
			for _, target := range frag.InheritTargets {
				if frag.DeclaredName != "" && target != name {
					inherits[name] = appendUnique(inherits[name], target)
				}
			}
			for target, fk := range frag.InheritsMap {
				if delegations[name] == nil {
					delegations[name] = make(map[string]string)
				}
				delegations[name][target] = fk
			}
		}
	}

	for _, name := range sortedKeys(r.models) {
		m := r.models[name]
		for _, target := range inherits[name] {
			r.edges = append(r.edges, entity.Edge{Type: entity.Inherits, From: name, To: target})
		}
		targets := make([]string, 0, len(delegations[name]))
		for t := range delegations[name] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, target := range targets {
			fk := delegations[name][target]
			r.edges = append(r.edges, entity.Edge{
				Type: entity.InheritsDelegation, From: name, To: target,
				Properties: map[string]any{"field": fk},
			})
			if _, declared := m.Fields[fk]; !declared {
				m.Fields[fk] = entity.FieldDecl{
					Name:           fk,
					Type:           entity.FieldMany2one,
					RelationTarget: target,
					Attributes:     map[string]string{"delegate": "True", "implicit": "True"},
				}
			}
		}
		for _, fname := range m.FieldNames() {
			f := m.Fields[fname]
			key := entity.FieldKey(name, fname)
			r.edges = append(r.edges, entity.Edge{Type: entity.HasField, From: name, To: key})
			if f.Type.IsRelational() && f.RelationTarget != "" {
				r.edges = append(r.edges, entity.Edge{Type: entity.RelatesTo, From: key, To: f.RelationTarget})
			}
		}
		if m.Module != "" {
			r.edges = append(r.edges, entity.Edge{Type: entity.ContainsModel, From: m.Module, To: name})
		}
	}
}

// viewEdges resolves inherit_id against this batch, then the persisted
// graph; unresolved parents become stubs. Extension views without a model
// or type take them from their parent chain.
func (r *resolver) viewEdges() {
	for _, id := range sortedKeys(r.views) {
		v := r.views[id]
		if v.Model == "" || v.ViewType == entity.ViewTypeUnknown {
			model, vt := r.inheritedDefaults(v)
			if v.Model == "" {
				v.Model = model
			}
			if v.ViewType == entity.ViewTypeUnknown && vt != "" {
				v.ViewType = vt
			}
		}
		if v.InheritID != "" {
			r.edges = append(r.edges, entity.Edge{Type: entity.Extends, From: id, To: v.InheritID})
		}
		if v.Model != "" {
			r.edges = append(r.edges, entity.Edge{Type: entity.ViewFor, From: id, To: v.Model})
		}
		if v.Module != "" {
			r.edges = append(r.edges, entity.Edge{Type: entity.ContainsView, From: v.Module, To: id})
		}
	}
}

func (r *resolver) inheritedDefaults(v *entity.View) (model, viewType string) {
	seen := map[string]bool{v.XMLID: true}
	parentID := v.InheritID
	for parentID != "" && !seen[parentID] {
		seen[parentID] = true
		var parent *entity.View
		if p, ok := r.views[parentID]; ok {
			parent = p
		} else if r.inScopeView(parentID) {
			// in scope without fragments: it ends up a stub or removed
			break
		} else if p, ok := r.in.Existing.View(parentID); ok {
			parent = p
		} else {
			break
		}
		if model == "" {
			model = parent.Model
		}
		if viewType == "" && parent.ViewType != entity.ViewTypeUnknown {
			viewType = parent.ViewType
		}
		if model != "" && viewType != "" {
			break
		}
		parentID = parent.InheritID
	}
	return model, viewType
}

// breakCycles drops new INHERITS and EXTENDS edges that close a cycle,
// walking from in-scope nodes over new edges plus persisted edges owned by
// out-of-scope nodes.
func (r *resolver) breakCycles() {
	dropped := make(map[entity.EdgeID]bool)
	for _, t := range []entity.EdgeType{entity.Inherits, entity.Extends} {
		var fresh, persisted []entity.Edge
		var starts []string
		for _, e := range r.edges {
			if e.Type == t {
				fresh = append(fresh, e)
			}
		}
		for _, e := range r.in.Existing.EdgesOfType(t) {
			if !r.ownsNode(t, e.From) {
				persisted = append(persisted, e)
			}
		}
		if t == entity.Inherits {
			starts = sortedKeys(r.models)
		} else {
			starts = sortedKeys(r.views)
		}
		b := newCycleBreaker(t, fresh, persisted)
		d, found := b.run(fresh, starts)
		for id := range d {
			dropped[id] = true
		}
		r.out.Errors = append(r.out.Errors, found...)
		r.out.Stats.Cycles += len(found)
	}
	if len(dropped) == 0 {
		return
	}
	kept := r.edges[:0]
	for _, e := range r.edges {
		if dropped[e.ID()] {
			r.out.Stats.DroppedEdges++
			continue
		}
		kept = append(kept, e)
	}
	r.edges = kept
}

// ownsNode reports whether this run replaces the node that owns an edge
// of type t starting at key.
func (r *resolver) ownsNode(t entity.EdgeType, key string) bool {
	from, _ := t.Endpoints()
	switch from {
	case entity.LabelModel:
		return r.inScopeModel(key)
	case entity.LabelView:
		return r.inScopeView(key)
	}
	return false
}

// materialize assembles the output, adding stubs for referenced models and
// views that exist nowhere and deciding the fate of in-scope identities
// whose fragments are gone.
func (r *resolver) materialize() {
	referenced := make(map[NodeRef]bool)
	for _, e := range r.edges {
		_, to := e.Type.Endpoints()
		referenced[NodeRef{Label: to, Key: e.To}] = true
	}
	for _, e := range r.in.Existing.Edges() {
		if r.ownsNode(e.Type, e.From) || e.Type.OwnedByTarget() {
			continue
		}
		if e.Type == entity.RelatesTo {
			model, _ := entity.SplitFieldKey(e.From)
			if r.inScopeModel(model) {
				continue
			}
		}
		_, to := e.Type.Endpoints()
		referenced[NodeRef{Label: to, Key: e.To}] = true
	}

	if r.in.Scope != nil {
		for _, name := range sortedSet(r.in.Scope.Models) {
			if _, ok := r.models[name]; ok {
				continue
			}
			if referenced[NodeRef{Label: entity.LabelModel, Key: name}] {
				r.addStubModel(name)
			} else if r.in.Existing.HasNode(entity.LabelModel, name) {
				r.out.Removed = append(r.out.Removed, NodeRef{Label: entity.LabelModel, Key: name})
			}
		}
		for _, id := range sortedSet(r.in.Scope.Views) {
			if _, ok := r.views[id]; ok {
				continue
			}
			if referenced[NodeRef{Label: entity.LabelView, Key: id}] {
				r.addStubView(id)
			} else if r.in.Existing.HasNode(entity.LabelView, id) {
				r.out.Removed = append(r.out.Removed, NodeRef{Label: entity.LabelView, Key: id})
			}
		}
	}

	for _, e := range r.edges {
		_, to := e.Type.Endpoints()
		switch to {
		case entity.LabelModel:
			if _, ok := r.models[e.To]; !ok && !r.in.Existing.HasNode(entity.LabelModel, e.To) {
				r.addStubModel(e.To)
			}
		case entity.LabelView:
			if _, ok := r.views[e.To]; !ok && !r.in.Existing.HasNode(entity.LabelView, e.To) {
				r.addStubView(e.To)
			}
		}
	}

	for _, name := range sortedKeys(r.models) {
		r.out.Models = append(r.out.Models, r.models[name])
	}
	for _, id := range sortedKeys(r.views) {
		r.out.Views = append(r.out.Views, r.views[id])
	}
	entity.SortEdges(r.edges)
	r.out.Edges = r.edges
}

func (r *resolver) addStubModel(name string) {
	if _, ok := r.models[name]; ok {
		return
	}
	r.models[name] = &entity.Model{Name: name, Stub: true, Fields: map[string]entity.FieldDecl{}}
	r.out.Stats.Stubs++
}

func (r *resolver) addStubView(id string) {
	if _, ok := r.views[id]; ok {
		return
	}
	r.views[id] = &entity.View{
		XMLID:    id,
		Module:   entity.XMLIDModule(id),
		ViewType: entity.ViewTypeUnknown,
		Priority: entity.DefaultViewPriority,
		Stub:     true,
	}
	r.out.Stats.Stubs++
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	if s == "" || contains(list, s) {
		return list
	}
	return append(list, s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
