// Package entity defines the normalized graph of an Odoo-style codebase:
// modules, per-file parse fragments, and the canonical Model/View/Field
// entities they resolve into.
package entity

import (
	"sort"
	"strings"
)

// Node labels of the persisted graph.
const (
	LabelModule = "Module"
	LabelModel  = "Model"
	LabelView   = "View"
	LabelField  = "Field"
)

// EdgeType is a persisted relationship type.
type EdgeType string

const (
	DependsOn          EdgeType = "DEPENDS_ON"
	ContainsModel      EdgeType = "CONTAINS_MODEL"
	ContainsView       EdgeType = "CONTAINS_VIEW"
	Inherits           EdgeType = "INHERITS"
	InheritsDelegation EdgeType = "INHERITS_DELEGATION"
	HasField           EdgeType = "HAS_FIELD"
	RelatesTo          EdgeType = "RELATES_TO"
	Extends            EdgeType = "EXTENDS"
	ViewFor            EdgeType = "VIEW_FOR"
)

// AllEdgeTypes lists every relationship type in schema order.
func AllEdgeTypes() []EdgeType {
	return []EdgeType{
		DependsOn, ContainsModel, ContainsView, Inherits, InheritsDelegation,
		HasField, RelatesTo, Extends, ViewFor,
	}
}

// Endpoints returns the source and target node labels for an edge type.
func (t EdgeType) Endpoints() (from, to string) {
	switch t {
	case DependsOn:
		return LabelModule, LabelModule
	case ContainsModel:
		return LabelModule, LabelModel
	case ContainsView:
		return LabelModule, LabelView
	case Inherits, InheritsDelegation:
		return LabelModel, LabelModel
	case HasField:
		return LabelModel, LabelField
	case RelatesTo:
		return LabelField, LabelModel
	case Extends:
		return LabelView, LabelView
	case ViewFor:
		return LabelView, LabelModel
	}
	return "", ""
}

// OwnedByTarget reports whether edges of this type belong to their target
// node for stale-edge cleanup. Containment edges follow the contained entity.
func (t EdgeType) OwnedByTarget() bool {
	return t == ContainsModel || t == ContainsView
}

// Module is one addon discovered from its manifest.
type Module struct {
	Name    string   `json:"name" yaml:"name"`
	Depends []string `json:"depends" yaml:"depends"`
	Version string   `json:"version" yaml:"version"`
	Summary string   `json:"summary" yaml:"summary"`
	Path    string   `json:"path" yaml:"path"`
	// Files are paths relative to the source root.
	Files []string `json:"files,omitempty" yaml:"files"`
	// Stub marks a depended-on module that was never discovered.
	Stub bool `json:"stub,omitempty" yaml:"-"`
}

// FieldKind is the declared field type, lowercased (char, many2one, ...).
type FieldKind string

const (
	FieldMany2one  FieldKind = "many2one"
	FieldOne2many  FieldKind = "one2many"
	FieldMany2many FieldKind = "many2many"
	FieldReference FieldKind = "reference"
)

// IsRelational reports whether fields of this kind point at a comodel.
func (k FieldKind) IsRelational() bool {
	switch k {
	case FieldMany2one, FieldOne2many, FieldMany2many:
		return true
	}
	return false
}

// FieldDecl is a single field declaration.
type FieldDecl struct {
	Name           string            `json:"name"`
	Type           FieldKind         `json:"field_type"`
	RelationTarget string            `json:"relation_target,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// FieldKey returns the unique Field node key for a model field.
func FieldKey(model, field string) string {
	return model + "." + field
}

// SplitFieldKey is the inverse of FieldKey.
func SplitFieldKey(key string) (model, field string) {
	i := strings.LastIndexByte(key, '.')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

// ModelKind classifies a class definition by how it declares itself.
type ModelKind string

const (
	KindBase         ModelKind = "base"
	KindExtension    ModelKind = "extension"
	KindRedefinition ModelKind = "redefinition"
	KindMixin        ModelKind = "mixin"
	KindTransient    ModelKind = "transient"
)

// ModelFragment is one class definition as extracted from a single file.
type ModelFragment struct {
	ClassName      string
	DeclaredName   string
	InheritTargets []string
	InheritsMap    map[string]string
	Description    string
	Fields         []FieldDecl
	SourceFile     string
	Module         string
	Line           int
	IsTransient    bool
	IsAbstract     bool
}

// Kind classifies the fragment.
func (f *ModelFragment) Kind() ModelKind {
	switch {
	case f.IsTransient:
		return KindTransient
	case f.DeclaredName == "" && len(f.InheritTargets) == 0:
		return KindMixin
	case f.DeclaredName == "":
		return KindExtension
	case len(f.InheritTargets) == 0:
		return KindBase
	case f.inheritsSelf():
		return KindExtension
	}
	return KindRedefinition
}

func (f *ModelFragment) inheritsSelf() bool {
	for _, t := range f.InheritTargets {
		if t == f.DeclaredName {
			return true
		}
	}
	return false
}

// Identities returns the model names this fragment contributes to. A
// fragment without _name contributes to every _inherit target.
func (f *ModelFragment) Identities() []string {
	if f.DeclaredName != "" {
		return []string{f.DeclaredName}
	}
	return f.InheritTargets
}

// ViewFragment is one view record as extracted from a markup file.
type ViewFragment struct {
	XMLID         string
	Name          string
	DeclaredModel string
	InheritID     string
	ViewType      string
	Priority      int
	SourceFile    string
	Module        string
}

// ViewTypeUnknown is used when neither the record nor its arch name a type.
const ViewTypeUnknown = "unknown"

// DefaultViewPriority matches the ir.ui.view column default.
const DefaultViewPriority = 16

// Model is the canonical, merged model entity.
type Model struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Module      string               `json:"module"`
	IsTransient bool                 `json:"is_transient"`
	IsAbstract  bool                 `json:"is_abstract"`
	Kind        ModelKind            `json:"model_type"`
	ClassNames  []string             `json:"class_names"`
	Fields      map[string]FieldDecl `json:"fields"`
	SourceFiles []string             `json:"source_files"`
	Stub        bool                 `json:"stub"`
}

// FieldNames returns the model's field names in sorted order.
func (m *Model) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for n := range m.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// View is the canonical view entity.
type View struct {
	XMLID       string   `json:"xml_id"`
	Name        string   `json:"name"`
	Model       string   `json:"model,omitempty"`
	ViewType    string   `json:"view_type"`
	InheritID   string   `json:"inherit_id,omitempty"`
	Module      string   `json:"module"`
	Priority    int      `json:"priority"`
	SourceFiles []string `json:"source_files"`
	Stub        bool     `json:"stub"`
}

// Edge is a typed, directed relationship between two node keys.
type Edge struct {
	Type       EdgeType       `json:"type"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ID returns the (type, from, to) identity used for upserts and deletes.
func (e Edge) ID() EdgeID {
	return EdgeID{Type: e.Type, From: e.From, To: e.To}
}

// NodeRef names a node by label and unique key.
type NodeRef struct {
	Label string
	Key   string
}

// EdgeID is the identity of an edge.
type EdgeID struct {
	Type EdgeType
	From string
	To   string
}

// Owner returns the label and key of the node that owns the edge.
func (id EdgeID) Owner() (label, key string) {
	from, to := id.Type.Endpoints()
	if id.Type.OwnedByTarget() {
		return to, id.To
	}
	return from, id.From
}

// SortEdges orders edges by type, then source, then target.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
}

// QualifyXMLID prefixes a bare xml id with its module name.
func QualifyXMLID(module, id string) string {
	if id == "" || strings.Contains(id, ".") {
		return id
	}
	return module + "." + id
}

// XMLIDModule returns the module part of a qualified xml id.
func XMLIDModule(xmlID string) string {
	if i := strings.IndexByte(xmlID, '.'); i > 0 {
		return xmlID[:i]
	}
	return ""
}
