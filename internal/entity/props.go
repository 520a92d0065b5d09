package entity

import (
	"encoding/json"
	"sort"
)

// Properties returns the persisted property set of a module node.
func (m *Module) Properties() map[string]any {
	deps := m.Depends
	if deps == nil {
		deps = []string{}
	}
	return map[string]any{
		"name":    m.Name,
		"depends": deps,
		"version": m.Version,
		"summary": m.Summary,
		"path":    m.Path,
		"stub":    m.Stub,
	}
}

// Properties returns the persisted property set of a model node.
func (m *Model) Properties() map[string]any {
	return map[string]any{
		"name":         m.Name,
		"description":  m.Description,
		"module":       m.Module,
		"is_transient": m.IsTransient,
		"is_abstract":  m.IsAbstract,
		"model_type":   string(m.Kind),
		"class_names":  sortedCopy(m.ClassNames),
		"source_files": sortedCopy(m.SourceFiles),
		"stub":         m.Stub,
	}
}

// FieldProperties returns the persisted property set of a field node.
func FieldProperties(model string, f FieldDecl) map[string]any {
	attrs := make(map[string]any, len(f.Attributes))
	for k, v := range f.Attributes {
		attrs[k] = v
	}
	return map[string]any{
		"name":            f.Name,
		"model":           model,
		"field_type":      string(f.Type),
		"relation_target": f.RelationTarget,
		"attributes":      attrs,
	}
}

// Properties returns the persisted property set of a view node.
func (v *View) Properties() map[string]any {
	return map[string]any{
		"xml_id":       v.XMLID,
		"name":         v.Name,
		"model":        v.Model,
		"view_type":    v.ViewType,
		"inherit_id":   v.InheritID,
		"module":       v.Module,
		"priority":     v.Priority,
		"source_files": sortedCopy(v.SourceFiles),
		"stub":         v.Stub,
	}
}

// ModelFromProperties rebuilds a model header (no fields) from stored properties.
func ModelFromProperties(props map[string]any) *Model {
	return &Model{
		Name:        PropString(props, "name"),
		Description: PropString(props, "description"),
		Module:      PropString(props, "module"),
		IsTransient: PropBool(props, "is_transient"),
		IsAbstract:  PropBool(props, "is_abstract"),
		Kind:        ModelKind(PropString(props, "model_type")),
		ClassNames:  PropStrings(props, "class_names"),
		SourceFiles: PropStrings(props, "source_files"),
		Stub:        PropBool(props, "stub"),
		Fields:      map[string]FieldDecl{},
	}
}

// FieldFromProperties rebuilds a field declaration from stored properties.
func FieldFromProperties(props map[string]any) FieldDecl {
	f := FieldDecl{
		Name:           PropString(props, "name"),
		Type:           FieldKind(PropString(props, "field_type")),
		RelationTarget: PropString(props, "relation_target"),
	}
	if raw, ok := props["attributes"].(map[string]any); ok && len(raw) > 0 {
		f.Attributes = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				f.Attributes[k] = s
			}
		}
	}
	return f
}

// ViewFromProperties rebuilds a view from stored properties.
func ViewFromProperties(props map[string]any) *View {
	return &View{
		XMLID:       PropString(props, "xml_id"),
		Name:        PropString(props, "name"),
		Model:       PropString(props, "model"),
		ViewType:    PropString(props, "view_type"),
		InheritID:   PropString(props, "inherit_id"),
		Module:      PropString(props, "module"),
		Priority:    PropInt(props, "priority"),
		SourceFiles: PropStrings(props, "source_files"),
		Stub:        PropBool(props, "stub"),
	}
}

// ModuleFromProperties rebuilds a module from stored properties.
func ModuleFromProperties(props map[string]any) *Module {
	return &Module{
		Name:    PropString(props, "name"),
		Depends: PropStrings(props, "depends"),
		Version: PropString(props, "version"),
		Summary: PropString(props, "summary"),
		Path:    PropString(props, "path"),
		Stub:    PropBool(props, "stub"),
	}
}

// PropString reads a string property.
func PropString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// PropBool reads a boolean property.
func PropBool(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

// PropInt reads an integer property. JSON round-trips numbers as float64.
func PropInt(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// PropStrings reads a string list property.
func PropStrings(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
