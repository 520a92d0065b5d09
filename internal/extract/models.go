// Package extract turns one source file into raw fragments: model
// fragments from Python class definitions and view fragments from XML
// data files. Extraction is pure and safe to run concurrently.
package extract

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
	"github.com/DeusData/odoo-graph/internal/lang"
	"github.com/DeusData/odoo-graph/internal/parser"
)

// Model base classes recognized as the ORM marker.
var modelBases = map[string]bool{
	"Model":          true,
	"TransientModel": true,
	"AbstractModel":  true,
}

// positionalArgs maps a field kind to the names of its positional
// constructor arguments. Kinds not listed take only `string`.
var positionalArgs = map[entity.FieldKind][]string{
	entity.FieldMany2one:  {"comodel_name", "string"},
	entity.FieldOne2many:  {"comodel_name", "inverse_name", "string"},
	entity.FieldMany2many: {"comodel_name", "relation", "column1", "column2", "string"},
	entity.FieldReference: {"selection", "string"},
	"selection":           {"selection", "string"},
}

// ExtractModels parses one Python file and returns its model fragments in
// source order. A file with syntax errors yields a *errs.ParseError and no
// fragments.
func ExtractModels(relPath, module string, source []byte) ([]entity.ModelFragment, error) {
	tree, err := parser.Parse(lang.Python, source)
	if err != nil {
		return nil, errs.NewParseError(relPath, 0, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if err := parser.CheckSyntax(root, source); err != nil {
		line := 0
		if se, ok := err.(*parser.SyntaxError); ok {
			line = se.Line
		}
		return nil, errs.NewParseError(relPath, line, err)
	}

	spec := lang.ForLanguage(lang.Python)
	var out []entity.ModelFragment
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if !isKind(n.Kind(), spec.ClassNodeTypes) {
			return true
		}
		base, ok := modelBase(n, source)
		if !ok {
			return true
		}
		frag := readClass(n, source, spec)
		frag.SourceFile = relPath
		frag.Module = module
		frag.IsTransient = frag.IsTransient || base == "TransientModel"
		frag.IsAbstract = base == "AbstractModel"
		out = append(out, frag)
		return true
	})
	return out, nil
}

func isKind(kind string, kinds []string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// modelBase returns the recognized ORM base class of a class definition,
// accepting both `models.Model` and a bare imported `Model`.
func modelBase(class *tree_sitter.Node, source []byte) (string, bool) {
	supers := class.ChildByFieldName("superclasses")
	if supers == nil {
		return "", false
	}
	for _, arg := range parser.NamedChildren(supers) {
		var name string
		switch arg.Kind() {
		case "identifier":
			name = parser.NodeText(arg, source)
		case "attribute":
			obj := arg.ChildByFieldName("object")
			attr := arg.ChildByFieldName("attribute")
			if obj == nil || attr == nil {
				continue
			}
			objText := parser.NodeText(obj, source)
			if objText != "models" && !strings.HasSuffix(objText, ".models") {
				continue
			}
			name = parser.NodeText(attr, source)
		default:
			continue
		}
		if modelBases[name] {
			return name, true
		}
	}
	return "", false
}

// readClass reads the direct class-body assignments of a model class.
func readClass(class *tree_sitter.Node, source []byte, spec *lang.LanguageSpec) entity.ModelFragment {
	frag := entity.ModelFragment{Line: parser.Line(class)}
	if name := class.ChildByFieldName("name"); name != nil {
		frag.ClassName = parser.NodeText(name, source)
	}
	body := class.ChildByFieldName("body")
	for _, stmt := range parser.NamedChildren(body) {
		if stmt.Kind() != "expression_statement" {
			continue
		}
		for _, expr := range parser.NamedChildren(stmt) {
			if !isKind(expr.Kind(), spec.AssignmentNodeTypes) {
				continue
			}
			left := expr.ChildByFieldName("left")
			right := expr.ChildByFieldName("right")
			if left == nil || right == nil || left.Kind() != "identifier" {
				continue
			}
			readAssignment(&frag, parser.NodeText(left, source), right, source, spec)
		}
	}
	return frag
}

func readAssignment(frag *entity.ModelFragment, target string, value *tree_sitter.Node, source []byte, spec *lang.LanguageSpec) {
	switch target {
	case "_name":
		if s, ok := parser.LiteralString(value, source); ok {
			frag.DeclaredName = s
		}
	case "_inherit":
		if names, ok := parser.LiteralStrings(value, source); ok {
			frag.InheritTargets = dedupe(names)
		}
	case "_inherits":
		v, ok := parser.Literal(value, source)
		pairs, isDict := v.([]parser.Pair)
		if !ok || !isDict {
			return
		}
		frag.InheritsMap = make(map[string]string, len(pairs))
		for _, p := range pairs {
			k, okK := p.Key.(string)
			fk, okV := p.Value.(string)
			if okK && okV {
				frag.InheritsMap[k] = fk
			}
		}
	case "_description":
		if s, ok := parser.LiteralString(value, source); ok {
			frag.Description = s
		}
	case "_transient":
		if v, ok := parser.Literal(value, source); ok {
			if b, isBool := v.(bool); isBool && b {
				frag.IsTransient = true
			}
		}
	default:
		if strings.HasPrefix(target, "_") && !strings.HasPrefix(target, "__") {
			return
		}
		if isKind(value.Kind(), spec.CallNodeTypes) {
			if f, ok := readField(target, value, source); ok {
				frag.Fields = append(frag.Fields, f)
			}
		}
	}
}

// readField interprets `name = fields.Kind(...)`.
func readField(name string, call *tree_sitter.Node, source []byte) (entity.FieldDecl, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "attribute" {
		return entity.FieldDecl{}, false
	}
	obj := fn.ChildByFieldName("object")
	attr := fn.ChildByFieldName("attribute")
	if obj == nil || attr == nil || parser.NodeText(obj, source) != "fields" {
		return entity.FieldDecl{}, false
	}
	kind := entity.FieldKind(strings.ToLower(parser.NodeText(attr, source)))
	f := entity.FieldDecl{Name: name, Type: kind}

	args := call.ChildByFieldName("arguments")
	names := positionalArgs[kind]
	if names == nil {
		names = []string{"string"}
	}
	pos := 0
	for _, arg := range parser.NamedChildren(args) {
		switch arg.Kind() {
		case "keyword_argument":
			key := arg.ChildByFieldName("name")
			val := arg.ChildByFieldName("value")
			if key == nil || val == nil {
				continue
			}
			setFieldArg(&f, parser.NodeText(key, source), val, source)
		case "list_splat", "dictionary_splat":
			continue
		default:
			if pos < len(names) {
				setFieldArg(&f, names[pos], arg, source)
			}
			pos++
		}
	}
	return f, true
}

func setFieldArg(f *entity.FieldDecl, key string, val *tree_sitter.Node, source []byte) {
	if key == "comodel_name" {
		if !f.Type.IsRelational() {
			return
		}
		if s, ok := parser.LiteralString(val, source); ok {
			f.RelationTarget = s
		}
		return
	}
	if f.Attributes == nil {
		f.Attributes = make(map[string]string)
	}
	if v, ok := parser.Literal(val, source); ok {
		f.Attributes[key] = parser.Display(v)
		return
	}
	f.Attributes[key] = parser.NodeText(val, source)
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
