package diff

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/DeusData/odoo-graph/internal/entity"
)

// MemoryGraph is an in-memory Graph with transactional batches. It stores
// properties in their JSON form, the same way the SQLite store does.
type MemoryGraph struct {
	nodes map[entity.NodeRef]map[string]any
	edges map[entity.EdgeID]map[string]any
	// FailAfter makes every batch from the n-th (1-based) on fail when > 0.
	FailAfter int
	batches   int
}

// ErrInjected is returned by a MemoryGraph batch selected by FailAfter.
var ErrInjected = errors.New("injected batch failure")

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[entity.NodeRef]map[string]any),
		edges: make(map[entity.EdgeID]map[string]any),
	}
}

func (g *MemoryGraph) WithBatch(ctx context.Context, fn func(w Writer) error) error {
	g.batches++
	tx := &memoryTx{
		nodes: make(map[entity.NodeRef]map[string]any, len(g.nodes)),
		edges: make(map[entity.EdgeID]map[string]any, len(g.edges)),
	}
	for k, v := range g.nodes {
		tx.nodes[k] = v
	}
	for k, v := range g.edges {
		tx.edges[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	if g.FailAfter > 0 && g.batches >= g.FailAfter {
		return ErrInjected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.nodes, g.edges = tx.nodes, tx.edges
	return nil
}

// Snapshot exports the graph.
func (g *MemoryGraph) Snapshot(_ context.Context) (*entity.Snapshot, error) {
	s := entity.NewSnapshot()
	for ref, props := range g.nodes {
		s.AddNode(ref.Label, ref.Key, props)
	}
	for id, props := range g.edges {
		s.AddEdge(entity.Edge{Type: id.Type, From: id.From, To: id.To, Properties: props})
	}
	return s, nil
}

// NodeCount and EdgeCount report sizes.
func (g *MemoryGraph) NodeCount() int { return len(g.nodes) }
func (g *MemoryGraph) EdgeCount() int { return len(g.edges) }

// HasEdge reports whether an edge exists.
func (g *MemoryGraph) HasEdge(t entity.EdgeType, from, to string) bool {
	_, ok := g.edges[entity.EdgeID{Type: t, From: from, To: to}]
	return ok
}

// Node returns a node's properties.
func (g *MemoryGraph) Node(label, key string) (map[string]any, bool) {
	props, ok := g.nodes[entity.NodeRef{Label: label, Key: key}]
	return props, ok
}

type memoryTx struct {
	nodes map[entity.NodeRef]map[string]any
	edges map[entity.EdgeID]map[string]any
}

func (tx *memoryTx) UpsertNode(_ context.Context, label, key string, props map[string]any) error {
	norm, err := normalize(props)
	if err != nil {
		return err
	}
	tx.nodes[entity.NodeRef{Label: label, Key: key}] = norm
	return nil
}

func (tx *memoryTx) DeleteNode(_ context.Context, label, key string) error {
	ref := entity.NodeRef{Label: label, Key: key}
	delete(tx.nodes, ref)
	for id := range tx.edges {
		from, to := id.Type.Endpoints()
		if (from == label && id.From == key) || (to == label && id.To == key) {
			delete(tx.edges, id)
		}
	}
	return nil
}

func (tx *memoryTx) UpsertEdge(_ context.Context, t entity.EdgeType, from, to string, props map[string]any) error {
	fl, tl := t.Endpoints()
	for _, ref := range []entity.NodeRef{{Label: fl, Key: from}, {Label: tl, Key: to}} {
		if _, ok := tx.nodes[ref]; !ok {
			tx.nodes[ref] = map[string]any{}
		}
	}
	norm, err := normalize(props)
	if err != nil {
		return err
	}
	tx.edges[entity.EdgeID{Type: t, From: from, To: to}] = norm
	return nil
}

func (tx *memoryTx) DeleteEdge(_ context.Context, t entity.EdgeType, from, to string) error {
	delete(tx.edges, entity.EdgeID{Type: t, From: from, To: to})
	return nil
}

func normalize(props map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(props) == 0 {
		return out, nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
