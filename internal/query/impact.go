package query

import (
	"context"
	"sort"

	"github.com/hbollon/go-edlib"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/store"
)

// impactEdges are followed inbound from the changed node: everything that
// extends, embeds, displays or points at it.
var impactEdges = []string{
	string(entity.Inherits),
	string(entity.InheritsDelegation),
	string(entity.ViewFor),
	string(entity.Extends),
	string(entity.RelatesTo),
	string(entity.HasField),
}

// Affected is one node reached by an impact walk.
type Affected struct {
	Label  string          `json:"label"`
	Key    string          `json:"key"`
	Module string          `json:"module,omitempty"`
	Hop    int             `json:"hop"`
	Risk   store.RiskLevel `json:"risk"`
}

// Impact is the blast radius of changing one model or view.
type Impact struct {
	Label    string              `json:"label"`
	Key      string              `json:"key"`
	Summary  store.ImpactSummary `json:"summary"`
	Affected []Affected          `json:"affected"`
	Children int                 `json:"children"`
	Views    int                 `json:"views"`
	// Referrers counts the relational fields pointing at the model.
	Referrers int `json:"referrers"`
}

// Impact walks inbound dependencies of a model (or a view when label is
// entity.LabelView) up to depth hops.
func (e *Engine) Impact(ctx context.Context, label, key string, depth int) (*Impact, error) {
	if label == "" {
		label = entity.LabelModel
	}
	if depth <= 0 {
		depth = 3
	}
	if _, err := e.mustFind(ctx, label, key); err != nil {
		return nil, err
	}
	res, err := e.st.BFS(ctx, e.project, label, key, store.Inbound, impactEdges, depth, 500)
	if err != nil {
		return nil, err
	}
	hops := store.DeduplicateHops(res.Visited)
	out := &Impact{Label: label, Key: key, Summary: store.BuildImpactSummary(res.Root, hops)}
	for _, h := range hops {
		out.Affected = append(out.Affected, Affected{
			Label:  h.Node.Label,
			Key:    h.Node.Key,
			Module: entity.PropString(h.Node.Properties, "module"),
			Hop:    h.Hop,
			Risk:   store.HopToRisk(h.Hop),
		})
	}
	for _, edge := range res.Edges {
		if edge.ToLabel != label || edge.ToKey != key {
			continue
		}
		switch entity.EdgeType(edge.Type) {
		case entity.Inherits, entity.InheritsDelegation, entity.Extends:
			out.Children++
		case entity.ViewFor:
			out.Views++
		case entity.RelatesTo:
			out.Referrers++
		}
	}
	return out, nil
}

// Stats summarizes a project's graph.
type Stats struct {
	Project string            `json:"project"`
	Schema  *store.SchemaInfo `json:"schema"`
	LastRun *store.Run        `json:"last_run,omitempty"`
}

// Stats returns graph statistics and the most recent run.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	schema, err := e.st.GetSchema(ctx, e.project)
	if err != nil {
		return nil, err
	}
	s := &Stats{Project: e.project, Schema: schema}
	runs, err := e.st.ListRuns(ctx, e.project, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		s.LastRun = runs[0]
	}
	return s, nil
}

// suggestThreshold is the minimum Jaro-Winkler similarity of a suggestion.
const suggestThreshold = 0.85

// Suggest returns up to five keys of label similar to key.
func (e *Engine) Suggest(ctx context.Context, label, key string) ([]string, error) {
	nodes, err := e.st.FindNodesByLabel(ctx, e.project, label)
	if err != nil {
		return nil, err
	}
	type scored struct {
		key   string
		score float32
	}
	var candidates []scored
	for _, n := range nodes {
		score, err := edlib.StringsSimilarity(key, n.Key, edlib.JaroWinkler)
		if err != nil || score < suggestThreshold {
			continue
		}
		candidates = append(candidates, scored{n.Key, score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].key < candidates[j].key
	})
	var out []string
	for i := 0; i < len(candidates) && i < 5; i++ {
		out = append(out, candidates[i].key)
	}
	return out, nil
}
