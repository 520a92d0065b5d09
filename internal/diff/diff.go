// Package diff turns resolved entities into an ordered, idempotent list of
// write operations against the persisted graph, grouped into units that
// batching never splits.
package diff

import (
	"encoding/json"
	"sort"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/resolve"
)

// OpKind is the kind of one write operation.
type OpKind string

const (
	UpsertNode OpKind = "upsert_node"
	DeleteNode OpKind = "delete_node"
	UpsertEdge OpKind = "upsert_edge"
	DeleteEdge OpKind = "delete_edge"
)

// Op is one write. Node ops use Label/Key; edge ops use Edge.
type Op struct {
	Kind       OpKind
	Label      string
	Key        string
	Edge       entity.EdgeID
	Properties map[string]any
}

// Unit is one owner node with its owned field nodes and owned edges.
type Unit struct {
	Owner entity.NodeRef
	Ops   []Op
}

// Options tune Compute.
type Options struct {
	// ExcludeTransient keeps transient models, their fields and every edge
	// touching them out of the persisted graph.
	ExcludeTransient bool
}

// Stats counts the operations of a plan.
type Stats struct {
	NodeUpserts       int `json:"node_upserts"`
	NodeDeletes       int `json:"node_deletes"`
	EdgeUpserts       int `json:"edge_upserts"`
	EdgeDeletes       int `json:"edge_deletes"`
	Unchanged         int `json:"unchanged"`
	TransientFiltered int `json:"transient_filtered"`
}

// Ops returns the total number of operations.
func (s Stats) Ops() int {
	return s.NodeUpserts + s.NodeDeletes + s.EdgeUpserts + s.EdgeDeletes
}

// Plan is the ordered write set of one run.
type Plan struct {
	Units []Unit
	Stats Stats
}

type desiredNode struct {
	ref   entity.NodeRef
	props map[string]any
}

type planner struct {
	snap *entity.Snapshot
	full bool
	opts Options

	nodes  map[entity.NodeRef]*desiredNode
	fields map[entity.NodeRef][]desiredNode
	edges  map[entity.NodeRef][]entity.Edge
	// transient model names filtered out of the graph
	transient map[string]bool
	plan      *Plan

	ownedEdges  map[entity.NodeRef][]entity.Edge
	ownedFields map[string][]string
}

// Compute diffs resolver output against the persisted snapshot. In full
// mode every persisted node absent from the output is deleted; in
// incremental mode only removed identities and undiscovered modules are.
func Compute(out *resolve.Output, snap *entity.Snapshot, full bool, opts Options) *Plan {
	p := &planner{
		snap:      snap,
		full:      full,
		opts:      opts,
		nodes:     make(map[entity.NodeRef]*desiredNode),
		fields:    make(map[entity.NodeRef][]desiredNode),
		edges:     make(map[entity.NodeRef][]entity.Edge),
		transient: make(map[string]bool),
		plan:      &Plan{},
	}
	p.indexSnapshot()
	p.collect(out)

	var owners []entity.NodeRef
	for ref := range p.nodes {
		owners = append(owners, ref)
	}
	sortRefs(owners)
	for _, ref := range owners {
		p.upsertUnit(ref)
	}
	for _, ref := range p.deletions(out) {
		p.deleteUnit(ref)
	}
	return p.plan
}

func (p *planner) collect(out *resolve.Output) {
	for i := range out.Modules {
		m := &out.Modules[i]
		p.addNode(entity.LabelModule, m.Name, m.Properties())
	}
	for _, name := range out.StubModules {
		stub := entity.Module{Name: name, Stub: true}
		p.addNode(entity.LabelModule, name, stub.Properties())
	}
	for _, m := range out.Models {
		if p.opts.ExcludeTransient && m.IsTransient && !m.Stub {
			p.transient[m.Name] = true
			p.plan.Stats.TransientFiltered++
			continue
		}
		owner := p.addNode(entity.LabelModel, m.Name, m.Properties())
		for _, fname := range m.FieldNames() {
			p.fields[owner] = append(p.fields[owner], desiredNode{
				ref:   entity.NodeRef{Label: entity.LabelField, Key: entity.FieldKey(m.Name, fname)},
				props: entity.FieldProperties(m.Name, m.Fields[fname]),
			})
		}
	}
	for _, v := range out.Views {
		p.addNode(entity.LabelView, v.XMLID, v.Properties())
	}
	for _, e := range out.Edges {
		if p.touchesTransient(e) {
			p.plan.Stats.TransientFiltered++
			continue
		}
		owner := ownerUnit(e.ID())
		p.edges[owner] = append(p.edges[owner], e)
	}
}

func (p *planner) addNode(label, key string, props map[string]any) entity.NodeRef {
	ref := entity.NodeRef{Label: label, Key: key}
	p.nodes[ref] = &desiredNode{ref: ref, props: props}
	return ref
}

func (p *planner) touchesTransient(e entity.Edge) bool {
	if len(p.transient) == 0 {
		return false
	}
	from, to := e.Type.Endpoints()
	for _, end := range []struct{ label, key string }{{from, e.From}, {to, e.To}} {
		switch end.label {
		case entity.LabelModel:
			if p.transient[end.key] {
				return true
			}
		case entity.LabelField:
			model, _ := entity.SplitFieldKey(end.key)
			if p.transient[model] {
				return true
			}
		}
	}
	return false
}

// ownerUnit maps an edge to the unit that owns it. Field edges belong to
// the field's model.
func ownerUnit(id entity.EdgeID) entity.NodeRef {
	label, key := id.Owner()
	if label == entity.LabelField {
		model, _ := entity.SplitFieldKey(key)
		return entity.NodeRef{Label: entity.LabelModel, Key: model}
	}
	return entity.NodeRef{Label: label, Key: key}
}

func (p *planner) indexSnapshot() {
	p.ownedEdges = make(map[entity.NodeRef][]entity.Edge)
	p.ownedFields = make(map[string][]string)
	for _, e := range p.snap.Edges() {
		owner := ownerUnit(e.ID())
		p.ownedEdges[owner] = append(p.ownedEdges[owner], e)
		if e.Type == entity.HasField {
			p.ownedFields[e.From] = append(p.ownedFields[e.From], e.To)
		}
	}
	for _, keys := range p.ownedFields {
		sort.Strings(keys)
	}
	for _, edges := range p.ownedEdges {
		entity.SortEdges(edges)
	}
}

// persistedEdges returns the snapshot edges owned by a unit, sorted.
func (p *planner) persistedEdges(owner entity.NodeRef) []entity.Edge {
	return p.ownedEdges[owner]
}

// persistedFields returns the field node keys a model owns in the snapshot.
func (p *planner) persistedFields(model string) []string {
	return p.ownedFields[model]
}

func (p *planner) upsertUnit(ref entity.NodeRef) {
	u := Unit{Owner: ref}
	want := p.nodes[ref]
	if p.changed(ref.Label, ref.Key, want.props) {
		u.Ops = append(u.Ops, Op{Kind: UpsertNode, Label: ref.Label, Key: ref.Key, Properties: want.props})
	}

	if ref.Label == entity.LabelModel {
		wanted := make(map[string]bool, len(p.fields[ref]))
		for _, f := range p.fields[ref] {
			wanted[f.ref.Key] = true
			if p.changed(entity.LabelField, f.ref.Key, f.props) {
				u.Ops = append(u.Ops, Op{Kind: UpsertNode, Label: entity.LabelField, Key: f.ref.Key, Properties: f.props})
			}
		}
		for _, key := range p.persistedFields(ref.Key) {
			if !wanted[key] {
				u.Ops = append(u.Ops, Op{Kind: DeleteNode, Label: entity.LabelField, Key: key})
			}
		}
	}

	desired := make(map[entity.EdgeID]entity.Edge, len(p.edges[ref]))
	for _, e := range p.edges[ref] {
		desired[e.ID()] = e
	}
	stale := p.persistedEdges(ref)
	current := make(map[entity.EdgeID]entity.Edge, len(stale))
	for _, e := range stale {
		current[e.ID()] = e
		if _, keep := desired[e.ID()]; !keep {
			u.Ops = append(u.Ops, Op{Kind: DeleteEdge, Edge: e.ID()})
		}
	}
	edges := append([]entity.Edge(nil), p.edges[ref]...)
	entity.SortEdges(edges)
	for _, e := range edges {
		if prev, ok := current[e.ID()]; ok && canonical(prev.Properties) == canonical(e.Properties) {
			p.plan.Stats.Unchanged++
			continue
		}
		u.Ops = append(u.Ops, Op{Kind: UpsertEdge, Edge: e.ID(), Properties: e.Properties})
	}
	p.emit(u)
}

func (p *planner) deleteUnit(ref entity.NodeRef) {
	u := Unit{Owner: ref}
	for _, e := range p.persistedEdges(ref) {
		u.Ops = append(u.Ops, Op{Kind: DeleteEdge, Edge: e.ID()})
	}
	if ref.Label == entity.LabelModel {
		for _, key := range p.persistedFields(ref.Key) {
			u.Ops = append(u.Ops, Op{Kind: DeleteNode, Label: entity.LabelField, Key: key})
		}
	}
	u.Ops = append(u.Ops, Op{Kind: DeleteNode, Label: ref.Label, Key: ref.Key})
	p.emit(u)
}

// deletions lists persisted owner nodes that the output no longer has.
func (p *planner) deletions(out *resolve.Output) []entity.NodeRef {
	set := make(map[entity.NodeRef]bool)
	for _, ref := range out.Removed {
		if p.snap.HasNode(ref.Label, ref.Key) {
			set[ref] = true
		}
	}
	for name := range p.transient {
		if p.snap.HasNode(entity.LabelModel, name) {
			set[entity.NodeRef{Label: entity.LabelModel, Key: name}] = true
		}
	}
	labels := []string{entity.LabelModule}
	if p.full {
		labels = append(labels, entity.LabelModel, entity.LabelView, entity.LabelField)
	}
	for _, label := range labels {
		for _, key := range p.snap.Keys(label) {
			ref := entity.NodeRef{Label: label, Key: key}
			if label == entity.LabelField {
				// Fields of known models are handled by the model's unit.
				model, _ := entity.SplitFieldKey(key)
				if _, kept := p.nodes[entity.NodeRef{Label: entity.LabelModel, Key: model}]; kept {
					continue
				}
				if p.snap.HasNode(entity.LabelModel, model) {
					continue
				}
			}
			if _, ok := p.nodes[ref]; !ok {
				set[ref] = true
			}
		}
	}
	refs := make([]entity.NodeRef, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs
}

func (p *planner) emit(u Unit) {
	if len(u.Ops) == 0 {
		return
	}
	for _, op := range u.Ops {
		switch op.Kind {
		case UpsertNode:
			p.plan.Stats.NodeUpserts++
		case DeleteNode:
			p.plan.Stats.NodeDeletes++
		case UpsertEdge:
			p.plan.Stats.EdgeUpserts++
		case DeleteEdge:
			p.plan.Stats.EdgeDeletes++
		}
	}
	p.plan.Units = append(p.plan.Units, u)
}

// changed reports whether a node is missing or differs from the snapshot.
func (p *planner) changed(label, key string, props map[string]any) bool {
	prev, ok := p.snap.Node(label, key)
	if !ok {
		return true
	}
	if canonical(prev) == canonical(props) {
		p.plan.Stats.Unchanged++
		return false
	}
	return true
}

// canonical renders properties for comparison; map keys are sorted by
// encoding/json and nil equals empty.
func canonical(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	b, err := json.Marshal(props)
	if err != nil {
		return ""
	}
	return string(b)
}

var labelOrder = map[string]int{
	entity.LabelModule: 0,
	entity.LabelModel:  1,
	entity.LabelView:   2,
	entity.LabelField:  3,
}

func sortRefs(refs []entity.NodeRef) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.Label != b.Label {
			return labelOrder[a.Label] < labelOrder[b.Label]
		}
		return a.Key < b.Key
	})
}
