package store

import (
	"context"

	"github.com/DeusData/odoo-graph/internal/diff"
	"github.com/DeusData/odoo-graph/internal/entity"
)

// Graph is the persisted graph of one project.
type Graph struct {
	s       *Store
	project string
}

// Graph returns the graph client of a project.
func (s *Store) Graph(project string) *Graph {
	return &Graph{s: s, project: project}
}

// Project returns the project name.
func (g *Graph) Project() string { return g.project }

// WithBatch runs fn in one transaction.
func (g *Graph) WithBatch(ctx context.Context, fn func(w diff.Writer) error) error {
	return g.s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.ensureProject(ctx, g.project); err != nil {
			return err
		}
		return fn(&graphWriter{s: tx, project: g.project})
	})
}

// FetchNodeSet returns every node of a label keyed by node key.
func (g *Graph) FetchNodeSet(ctx context.Context, label string) (map[string]map[string]any, error) {
	nodes, err := g.s.FindNodesByLabel(ctx, g.project, label)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(nodes))
	for _, n := range nodes {
		out[n.Key] = n.Properties
	}
	return out, nil
}

// Snapshot loads the whole project graph.
func (g *Graph) Snapshot(ctx context.Context) (*entity.Snapshot, error) {
	snap := entity.NewSnapshot()
	nodes, err := g.s.AllNodes(ctx, g.project)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		snap.AddNode(n.Label, n.Key, n.Properties)
	}
	edges, err := g.s.FindEdges(ctx, g.project, "")
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		snap.AddEdge(entity.Edge{Type: entity.EdgeType(e.Type), From: e.FromKey, To: e.ToKey, Properties: e.Properties})
	}
	return snap, nil
}

type graphWriter struct {
	s       *Store
	project string
}

func (w *graphWriter) UpsertNode(ctx context.Context, label, key string, props map[string]any) error {
	_, err := w.s.UpsertNode(ctx, &Node{Project: w.project, Label: label, Key: key, Properties: props})
	return err
}

func (w *graphWriter) DeleteNode(ctx context.Context, label, key string) error {
	return w.s.DeleteNode(ctx, w.project, label, key)
}

func (w *graphWriter) UpsertEdge(ctx context.Context, t entity.EdgeType, from, to string, props map[string]any) error {
	return w.s.UpsertEdge(ctx, w.project, edgeRef(t, from, to, props))
}

func (w *graphWriter) DeleteEdge(ctx context.Context, t entity.EdgeType, from, to string) error {
	return w.s.DeleteEdge(ctx, w.project, edgeRef(t, from, to, nil))
}

func edgeRef(t entity.EdgeType, from, to string, props map[string]any) EdgeRef {
	fl, tl := t.Endpoints()
	return EdgeRef{Type: string(t), FromLabel: fl, FromKey: from, ToLabel: tl, ToKey: to, Properties: props}
}
