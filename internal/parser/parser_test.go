package parser

import (
	"errors"
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/odoo-graph/internal/lang"
)

func TestParsePython(t *testing.T) {
	source := []byte(`def greet(name):
    return f"Hello, {name}"

class MyClass:
    def method(self):
        pass
`)
	tree, err := Parse(lang.Python, source)
	if err != nil {
		t.Fatalf("Parse Python: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var funcCount, classCount int
	Walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "function_definition":
			funcCount++
		case "class_definition":
			classCount++
		}
		return true
	})
	if funcCount != 2 {
		t.Errorf("expected 2 function_definitions, got %d", funcCount)
	}
	if classCount != 1 {
		t.Errorf("expected 1 class_definition, got %d", classCount)
	}
	if err := CheckSyntax(root, source); err != nil {
		t.Errorf("CheckSyntax: %v", err)
	}
}

func TestParseUnsupported(t *testing.T) {
	if _, err := Parse(lang.XML, []byte("<odoo/>")); err == nil {
		t.Fatal("expected error for xml, which is not a tree-sitter language here")
	}
}

func TestCheckSyntaxReportsLine(t *testing.T) {
	source := []byte("class A(models.Model):\n    _name = 'a'\n\ndef broken(:\n    pass\n")
	tree, err := Parse(lang.Python, source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	err = CheckSyntax(tree.RootNode(), source)
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	if se.Line < 4 {
		t.Errorf("error line = %d, want >= 4", se.Line)
	}
}

// literalOf parses `x = <expr>` and evaluates the right-hand side.
func literalOf(t *testing.T, expr string) (any, bool) {
	t.Helper()
	source := []byte("x = " + expr + "\n")
	tree, err := Parse(lang.Python, source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	var rhs *tree_sitter.Node
	Walk(tree.RootNode(), func(n *tree_sitter.Node) bool {
		if rhs == nil && n.Kind() == "assignment" {
			rhs = n.ChildByFieldName("right")
		}
		return rhs == nil
	})
	if rhs == nil {
		t.Fatalf("no assignment in %q", source)
	}
	return Literal(rhs, source)
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		expr string
		want string
		ok   bool
	}{
		{`'res.partner'`, "res.partner", true},
		{`"a" "b"`, "ab", true},
		{`r'\d+'`, `\d+`, true},
		{`'it\'s'`, "it's", true},
		{`"""doc"""`, "doc", true},
		{`['mail.thread', 'portal.mixin']`, `["mail.thread", "portal.mixin"]`, true},
		{`('a',)`, `["a"]`, true},
		{`{'res.partner': 'partner_id'}`, `{"res.partner": "partner_id"}`, true},
		{`True`, "True", true},
		{`None`, "None", true},
		{`-5`, "-5", true},
		{`16`, "16", true},
		{`f'{x}'`, "", false},
		{`_('Name')`, "", false},
		{`some_name`, "", false},
		{`['a', b]`, "", false},
	}
	for _, tt := range tests {
		v, ok := literalOf(t, tt.expr)
		if ok != tt.ok {
			t.Errorf("Literal(%s) ok = %v, want %v", tt.expr, ok, tt.ok)
			continue
		}
		if ok && Display(v) != tt.want {
			t.Errorf("Literal(%s) = %q, want %q", tt.expr, Display(v), tt.want)
		}
	}
}

func TestLiteralStrings(t *testing.T) {
	v, ok := literalOf(t, `['sale', 'stock']`)
	if !ok {
		t.Fatal("list literal not evaluated")
	}
	got, ok := AsStrings(v)
	if !ok || len(got) != 2 || got[0] != "sale" || got[1] != "stock" {
		t.Errorf("AsStrings = %v, %v", got, ok)
	}
	if _, ok := AsStrings([]any{"a", int64(1)}); ok {
		t.Error("mixed list should not convert")
	}
}

func TestLookup(t *testing.T) {
	v, ok := literalOf(t, `{'name': 'Sales', 'depends': ['base'], 'installable': False}`)
	if !ok {
		t.Fatal("dict literal not evaluated")
	}
	pairs := v.([]Pair)
	if name, _ := Lookup(pairs, "name"); name != "Sales" {
		t.Errorf("name = %v", name)
	}
	if inst, _ := Lookup(pairs, "installable"); inst != false {
		t.Errorf("installable = %v", inst)
	}
	if _, ok := Lookup(pairs, "missing"); ok {
		t.Error("missing key found")
	}
}
