package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/DeusData/odoo-graph/internal/entity"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func addonsTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "sale/__manifest__.py", `# -*- coding: utf-8 -*-
{
    'name': 'Sales',
    'version': '17.0.1.2',
    'summary': 'Quotations and orders',
    'depends': ['base', 'mail'],
}
`)
	writeFile(t, dir, "sale/models/order.py", "from odoo import models\n")
	writeFile(t, dir, "sale/views/order.xml", "<odoo/>\n")
	writeFile(t, dir, "sale/tests/test_order.py", "x = 1\n")
	writeFile(t, dir, "mail/__manifest__.py", `{'name': 'Discuss', 'depends': ['base']}`)
	writeFile(t, dir, "mail/models/thread.py", "from odoo import models\n")
	writeFile(t, dir, "base/__openerp__.py", `{'name': 'Base', 'description': """
    The kernel.
"""}`)
	writeFile(t, dir, "base/models/partner.py", "from odoo import models\n")
	writeFile(t, dir, "old_module/__manifest__.py", `{'name': 'Old', 'installable': False}`)
	writeFile(t, dir, "old_module/models/old.py", "x = 1\n")
	writeFile(t, dir, "README.md", "addons\n")
	return dir
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{'name': 'Sales', 'depends': ('base', 'mail'), 'installable': True, 'data': [x]}`))
	if err == nil {
		t.Fatalf("expected error for non-literal manifest, got %+v", m)
	}

	m, err = ParseManifest([]byte(`{'name': 'Sales', 'depends': ('base', 'mail'), 'installable': True}`))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Name != "Sales" || m.Version != "1.0" || !m.Installable {
		t.Errorf("unexpected manifest: %+v", m)
	}
	if !reflect.DeepEqual(m.Depends, []string{"base", "mail"}) {
		t.Errorf("depends = %v", m.Depends)
	}

	if _, err := ParseManifest([]byte("{'name': ")); err == nil {
		t.Error("expected syntax error")
	}
}

func TestDiscoverOrdersAndFilters(t *testing.T) {
	dir := addonsTree(t)
	modules, err := Discover(context.Background(), dir, &Options{Exclude: DefaultExcludes})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	var names []string
	for _, m := range modules {
		names = append(names, m.Name)
	}
	if want := []string{"base", "mail", "sale"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("modules = %v, want %v", names, want)
	}

	sale := modules[2]
	if sale.Version != "17.0.1.2" || sale.Summary != "Quotations and orders" || sale.Path != "sale" {
		t.Errorf("unexpected sale module: %+v", sale)
	}
	wantFiles := []string{"sale/__manifest__.py", "sale/models/order.py", "sale/views/order.xml"}
	if !reflect.DeepEqual(sale.Files, wantFiles) {
		t.Errorf("sale files = %v, want %v", sale.Files, wantFiles)
	}
	if modules[0].Summary != "The kernel." {
		t.Errorf("base summary = %q", modules[0].Summary)
	}
}

func TestDiscoverWithoutExcludes(t *testing.T) {
	dir := addonsTree(t)
	modules, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	for _, m := range modules {
		if m.Name == "sale" && len(m.Files) != 4 {
			t.Errorf("expected tests to be included, got %v", m.Files)
		}
	}
}

func TestDiscoverNestedModule(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "outer/__manifest__.py", `{'name': 'Outer'}`)
	writeFile(t, dir, "outer/models/a.py", "x = 1\n")
	writeFile(t, dir, "outer/inner/__manifest__.py", `{'name': 'Inner', 'depends': ['outer']}`)
	writeFile(t, dir, "outer/inner/models/b.py", "x = 1\n")

	modules, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(modules))
	}
	if got := modules[1].Files; !reflect.DeepEqual(got, []string{"outer/inner/__manifest__.py", "outer/inner/models/b.py"}) {
		t.Errorf("inner files = %v", got)
	}
	if got := modules[0].Files; !reflect.DeepEqual(got, []string{"outer/__manifest__.py", "outer/models/a.py"}) {
		t.Errorf("outer files = %v", got)
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := addonsTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name    string
		modules []entity.Module
		want    []string
	}{
		{
			name: "ties by name",
			modules: []entity.Module{
				{Name: "stock", Depends: []string{"base"}},
				{Name: "account", Depends: []string{"base"}},
				{Name: "base"},
			},
			want: []string{"base", "account", "stock"},
		},
		{
			name: "unknown dependency ignored",
			modules: []entity.Module{
				{Name: "sale", Depends: []string{"web", "base"}},
				{Name: "base"},
			},
			want: []string{"base", "sale"},
		},
		{
			name: "cycle kept together",
			modules: []entity.Module{
				{Name: "z", Depends: []string{"b"}},
				{Name: "b", Depends: []string{"a"}},
				{Name: "a", Depends: []string{"b"}},
			},
			want: []string{"a", "b", "z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range Order(tt.modules) {
				got = append(got, m.Name)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadModuleList(t *testing.T) {
	dir := addonsTree(t)
	list := filepath.Join(dir, "modules.yaml")
	writeFile(t, dir, "modules.yaml", `modules:
  - name: sale
    depends: [mail]
  - name: mail
    path: mail
    files: [mail/models/thread.py]
`)
	modules, err := LoadModuleList(context.Background(), list, dir, &Options{Exclude: DefaultExcludes})
	if err != nil {
		t.Fatalf("LoadModuleList: %v", err)
	}
	if len(modules) != 2 || modules[0].Name != "mail" {
		t.Fatalf("unexpected modules: %+v", modules)
	}
	if !reflect.DeepEqual(modules[0].Files, []string{"mail/models/thread.py"}) {
		t.Errorf("mail files = %v", modules[0].Files)
	}
	if len(modules[1].Files) != 3 {
		t.Errorf("sale files = %v", modules[1].Files)
	}

	writeFile(t, dir, "dup.yaml", "modules:\n  - name: a\n  - name: a\n")
	if _, err := LoadModuleList(context.Background(), filepath.Join(dir, "dup.yaml"), dir, nil); err == nil {
		t.Error("expected duplicate module error")
	}
}
