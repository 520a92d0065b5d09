// Package query is the read side of the graph: model and view lookups,
// inheritance walks, module dependencies, search, impact and statistics.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/store"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an unknown node, with close matches when any.
type NotFoundError struct {
	Label       string
	Key         string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", strings.ToLower(e.Label), e.Key)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Engine answers queries for one project.
type Engine struct {
	st      *store.Store
	project string
}

func New(st *store.Store, project string) *Engine {
	return &Engine{st: st, project: project}
}

// Project returns the project the engine reads.
func (e *Engine) Project() string { return e.project }

// Delegation is an _inherits parent with its link field.
type Delegation struct {
	Parent string `json:"parent"`
	Field  string `json:"field"`
}

// ModelDetail is a model with its fields and direct neighbors.
type ModelDetail struct {
	Model       *entity.Model      `json:"model"`
	Fields      []entity.FieldDecl `json:"fields"`
	Parents     []string           `json:"parents"`
	Delegations []Delegation       `json:"delegations,omitempty"`
	Children    []string           `json:"children"`
	Views       []string           `json:"views"`
}

// GetModel returns one model by name.
func (e *Engine) GetModel(ctx context.Context, name string) (*ModelDetail, error) {
	n, err := e.mustFind(ctx, entity.LabelModel, name)
	if err != nil {
		return nil, err
	}
	d := &ModelDetail{Model: entity.ModelFromProperties(n.Properties)}
	if d.Model.Name == "" {
		d.Model.Name = name
	}
	if d.Fields, err = e.Fields(ctx, name, ""); err != nil {
		return nil, err
	}
	for _, f := range d.Fields {
		d.Model.Fields[f.Name] = f
	}
	if d.Parents, err = e.Parents(ctx, name); err != nil {
		return nil, err
	}
	delegates, err := e.st.FindEdgesFrom(ctx, e.project, entity.LabelModel, name, string(entity.InheritsDelegation))
	if err != nil {
		return nil, err
	}
	for _, edge := range delegates {
		d.Delegations = append(d.Delegations, Delegation{Parent: edge.ToKey, Field: entity.PropString(edge.Properties, "field")})
	}
	if d.Children, err = e.Children(ctx, name); err != nil {
		return nil, err
	}
	views, err := e.st.FindEdgesTo(ctx, e.project, entity.LabelModel, name, string(entity.ViewFor))
	if err != nil {
		return nil, err
	}
	d.Views = sources(views)
	return d, nil
}

// ViewDetail is a view with its extensions.
type ViewDetail struct {
	View       *entity.View `json:"view"`
	Extensions []string     `json:"extensions"`
}

// GetView returns one view by module-qualified xml id.
func (e *Engine) GetView(ctx context.Context, xmlID string) (*ViewDetail, error) {
	n, err := e.mustFind(ctx, entity.LabelView, xmlID)
	if err != nil {
		return nil, err
	}
	d := &ViewDetail{View: entity.ViewFromProperties(n.Properties)}
	if d.View.XMLID == "" {
		d.View.XMLID = xmlID
	}
	ext, err := e.st.FindEdgesTo(ctx, e.project, entity.LabelView, xmlID, string(entity.Extends))
	if err != nil {
		return nil, err
	}
	d.Extensions = sources(ext)
	return d, nil
}

// ModelFilter narrows ListModels.
type ModelFilter struct {
	Module string
	Kind   entity.ModelKind
	// Transient selects transient (true) or regular (false) models when set.
	Transient *bool
	// Pattern is a regular expression matched against model names.
	Pattern      string
	IncludeStubs bool
	Limit        int
	Offset       int
}

// ModelList is one page of models.
type ModelList struct {
	Models []*entity.Model `json:"models"`
	Total  int             `json:"total"`
}

// ListModels returns models matching filter, sorted by name.
func (e *Engine) ListModels(ctx context.Context, filter ModelFilter) (*ModelList, error) {
	out, err := e.st.Search(ctx, store.SearchParams{
		Project:    e.project,
		Label:      entity.LabelModel,
		KeyPattern: filter.Pattern,
		Module:     filter.Module,
	})
	if err != nil {
		return nil, err
	}
	var models []*entity.Model
	for _, r := range out.Results {
		m := entity.ModelFromProperties(r.Node.Properties)
		if m.Name == "" {
			m.Name = r.Node.Key
		}
		if m.Stub && !filter.IncludeStubs {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if filter.Transient != nil && m.IsTransient != *filter.Transient {
			continue
		}
		models = append(models, m)
	}
	list := &ModelList{Total: len(models)}
	start := min(max(filter.Offset, 0), len(models))
	end := len(models)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(models))
	}
	list.Models = models[start:end]
	return list, nil
}

// Parents returns the models name extends directly.
func (e *Engine) Parents(ctx context.Context, name string) ([]string, error) {
	edges, err := e.st.FindEdgesFrom(ctx, e.project, entity.LabelModel, name, string(entity.Inherits))
	if err != nil {
		return nil, err
	}
	return targets(edges), nil
}

// Children returns the models extending name directly.
func (e *Engine) Children(ctx context.Context, name string) ([]string, error) {
	edges, err := e.st.FindEdgesTo(ctx, e.project, entity.LabelModel, name, string(entity.Inherits))
	if err != nil {
		return nil, err
	}
	return sources(edges), nil
}

// Hop is a model reached at a distance.
type Hop struct {
	Name string `json:"name"`
	Hop  int    `json:"hop"`
}

var inheritance = []string{string(entity.Inherits), string(entity.InheritsDelegation)}

// Ancestry returns every model name inherits from, up to depth hops.
func (e *Engine) Ancestry(ctx context.Context, name string, depth int) ([]Hop, error) {
	return e.walk(ctx, name, store.Outbound, depth)
}

// Descendants returns every model inheriting from name, up to depth hops.
func (e *Engine) Descendants(ctx context.Context, name string, depth int) ([]Hop, error) {
	return e.walk(ctx, name, store.Inbound, depth)
}

func (e *Engine) walk(ctx context.Context, name, direction string, depth int) ([]Hop, error) {
	if depth <= 0 {
		depth = 5
	}
	if _, err := e.mustFind(ctx, entity.LabelModel, name); err != nil {
		return nil, err
	}
	res, err := e.st.BFS(ctx, e.project, entity.LabelModel, name, direction, inheritance, depth, 0)
	if err != nil {
		return nil, err
	}
	hops := make([]Hop, 0, len(res.Visited))
	for _, h := range store.DeduplicateHops(res.Visited) {
		hops = append(hops, Hop{Name: h.Node.Key, Hop: h.Hop})
	}
	return hops, nil
}

// ViewsForModel returns the views bound to a model, by priority then id.
func (e *Engine) ViewsForModel(ctx context.Context, name string) ([]*entity.View, error) {
	edges, err := e.st.FindEdgesTo(ctx, e.project, entity.LabelModel, name, string(entity.ViewFor))
	if err != nil {
		return nil, err
	}
	views, err := e.views(ctx, sources(edges))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Priority != views[j].Priority {
			return views[i].Priority < views[j].Priority
		}
		return views[i].XMLID < views[j].XMLID
	})
	return views, nil
}

// ViewExtensions returns the views extending xmlID directly.
func (e *Engine) ViewExtensions(ctx context.Context, xmlID string) ([]*entity.View, error) {
	edges, err := e.st.FindEdgesTo(ctx, e.project, entity.LabelView, xmlID, string(entity.Extends))
	if err != nil {
		return nil, err
	}
	return e.views(ctx, sources(edges))
}

func (e *Engine) views(ctx context.Context, ids []string) ([]*entity.View, error) {
	out := make([]*entity.View, 0, len(ids))
	for _, id := range ids {
		n, err := e.st.FindNode(ctx, e.project, entity.LabelView, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		v := entity.ViewFromProperties(n.Properties)
		v.XMLID = id
		out = append(out, v)
	}
	return out, nil
}

// Fields returns a model's fields sorted by name, optionally of one type.
func (e *Engine) Fields(ctx context.Context, model, fieldType string) ([]entity.FieldDecl, error) {
	out, err := e.st.Search(ctx, store.SearchParams{
		Project:  e.project,
		Label:    entity.LabelField,
		Property: "model",
		Value:    model,
	})
	if err != nil {
		return nil, err
	}
	fields := make([]entity.FieldDecl, 0, len(out.Results))
	for _, r := range out.Results {
		f := entity.FieldFromProperties(r.Node.Properties)
		if fieldType != "" && string(f.Type) != fieldType {
			continue
		}
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields, nil
}

// Relation is a relational field and the model it points to.
type Relation struct {
	Field  string           `json:"field"`
	Type   entity.FieldKind `json:"type"`
	Target string           `json:"target"`
}

// Relations returns a model's relational fields.
func (e *Engine) Relations(ctx context.Context, model string) ([]Relation, error) {
	fields, err := e.Fields(ctx, model, "")
	if err != nil {
		return nil, err
	}
	var rels []Relation
	for _, f := range fields {
		if !f.Type.IsRelational() || f.RelationTarget == "" {
			continue
		}
		rels = append(rels, Relation{Field: f.Name, Type: f.Type, Target: f.RelationTarget})
	}
	return rels, nil
}

// ModuleDeps returns the modules name depends on.
func (e *Engine) ModuleDeps(ctx context.Context, name string) ([]string, error) {
	if _, err := e.mustFind(ctx, entity.LabelModule, name); err != nil {
		return nil, err
	}
	edges, err := e.st.FindEdgesFrom(ctx, e.project, entity.LabelModule, name, string(entity.DependsOn))
	if err != nil {
		return nil, err
	}
	return targets(edges), nil
}

// ModuleDependents returns the modules depending on name.
func (e *Engine) ModuleDependents(ctx context.Context, name string) ([]string, error) {
	if _, err := e.mustFind(ctx, entity.LabelModule, name); err != nil {
		return nil, err
	}
	edges, err := e.st.FindEdgesTo(ctx, e.project, entity.LabelModule, name, string(entity.DependsOn))
	if err != nil {
		return nil, err
	}
	return sources(edges), nil
}

// SearchModels returns models whose name contains term, case-insensitively.
func (e *Engine) SearchModels(ctx context.Context, term string, limit int) (*ModelList, error) {
	return e.ListModels(ctx, ModelFilter{
		Pattern: "(?i)" + regexp.QuoteMeta(term),
		Limit:   limit,
	})
}

func (e *Engine) mustFind(ctx context.Context, label, key string) (*store.Node, error) {
	n, err := e.st.FindNode(ctx, e.project, label, key)
	if err != nil {
		return nil, err
	}
	if n == nil {
		suggestions, err := e.Suggest(ctx, label, key)
		if err != nil {
			return nil, err
		}
		return nil, &NotFoundError{Label: label, Key: key, Suggestions: suggestions}
	}
	return n, nil
}

func targets(edges []store.EdgeRef) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.ToKey)
	}
	sort.Strings(out)
	return out
}

func sources(edges []store.EdgeRef) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.FromKey)
	}
	sort.Strings(out)
	return out
}
