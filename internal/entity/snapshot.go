package entity

import "sort"

// Snapshot is an in-memory copy of the persisted graph of one project.
// A nil *Snapshot behaves as an empty graph.
type Snapshot struct {
	nodes map[string]map[string]map[string]any
	edges []Edge
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{nodes: make(map[string]map[string]map[string]any)}
}

// AddNode records a node; a later call for the same key replaces it.
func (s *Snapshot) AddNode(label, key string, props map[string]any) {
	byKey := s.nodes[label]
	if byKey == nil {
		byKey = make(map[string]map[string]any)
		s.nodes[label] = byKey
	}
	if props == nil {
		props = map[string]any{}
	}
	byKey[key] = props
}

// AddEdge records an edge.
func (s *Snapshot) AddEdge(e Edge) {
	s.edges = append(s.edges, e)
}

// Node returns a node's properties.
func (s *Snapshot) Node(label, key string) (map[string]any, bool) {
	if s == nil {
		return nil, false
	}
	props, ok := s.nodes[label][key]
	return props, ok
}

// HasNode reports whether a node exists.
func (s *Snapshot) HasNode(label, key string) bool {
	_, ok := s.Node(label, key)
	return ok
}

// Keys returns the sorted node keys of a label.
func (s *Snapshot) Keys(label string) []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.nodes[label]))
	for k := range s.nodes[label] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Edges returns all edges.
func (s *Snapshot) Edges() []Edge {
	if s == nil {
		return nil
	}
	return s.edges
}

// EdgesOfType returns the edges of one relationship type.
func (s *Snapshot) EdgesOfType(t EdgeType) []Edge {
	if s == nil {
		return nil
	}
	var out []Edge
	for _, e := range s.edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the total node count.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, byKey := range s.nodes {
		n += len(byKey)
	}
	return n
}

// Model rebuilds a model, including its persisted fields.
func (s *Snapshot) Model(name string) (*Model, bool) {
	props, ok := s.Node(LabelModel, name)
	if !ok {
		return nil, false
	}
	m := ModelFromProperties(props)
	for _, e := range s.edges {
		if e.Type != HasField || e.From != name {
			continue
		}
		if fp, ok := s.Node(LabelField, e.To); ok {
			f := FieldFromProperties(fp)
			m.Fields[f.Name] = f
		}
	}
	return m, true
}

// View rebuilds a view.
func (s *Snapshot) View(xmlID string) (*View, bool) {
	props, ok := s.Node(LabelView, xmlID)
	if !ok {
		return nil, false
	}
	return ViewFromProperties(props), true
}

// SourceFiles returns the files recorded as contributing to a model or view.
func (s *Snapshot) SourceFiles(label, key string) []string {
	props, ok := s.Node(label, key)
	if !ok {
		return nil
	}
	return PropStrings(props, "source_files")
}
