package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/odoo-graph/internal/diff"
	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/resolve"
	"github.com/DeusData/odoo-graph/internal/store"
)

func fixture() *resolve.Input {
	return &resolve.Input{
		Modules: []entity.Module{
			{Name: "base"},
			{Name: "mail", Depends: []string{"base"}},
			{Name: "sale", Depends: []string{"base", "mail"}},
			{Name: "sale_stock", Depends: []string{"sale"}},
		},
		Models: []entity.ModelFragment{
			{
				ClassName: "Partner", DeclaredName: "res.partner", Module: "base",
				SourceFile: "base/models/partner.py",
				Fields:     []entity.FieldDecl{{Name: "name", Type: "char"}},
			},
			{
				ClassName: "Thread", DeclaredName: "mail.thread", Module: "mail", IsAbstract: true,
				SourceFile: "mail/models/thread.py",
			},
			{
				ClassName: "SaleOrder", DeclaredName: "sale.order", InheritTargets: []string{"mail.thread"}, Module: "sale",
				SourceFile: "sale/models/order.py",
				Fields: []entity.FieldDecl{
					{Name: "partner_id", Type: entity.FieldMany2one, RelationTarget: "res.partner"},
					{Name: "note", Type: "text"},
				},
			},
			{
				ClassName: "SaleOrderStock", InheritTargets: []string{"sale.order"}, Module: "sale_stock",
				SourceFile: "sale_stock/models/order.py",
				Fields:     []entity.FieldDecl{{Name: "warehouse_id", Type: entity.FieldMany2one, RelationTarget: "stock.warehouse"}},
			},
			{
				ClassName: "Wizard", DeclaredName: "sale.advance.wizard", Module: "sale", IsTransient: true,
				SourceFile: "sale/wizard/advance.py",
				Fields:     []entity.FieldDecl{{Name: "order_id", Type: entity.FieldMany2one, RelationTarget: "sale.order"}},
			},
		},
		Views: []entity.ViewFragment{
			{XMLID: "sale.view_order_form", DeclaredModel: "sale.order", ViewType: "form", Priority: 16, Module: "sale", SourceFile: "sale/views/order.xml"},
			{XMLID: "sale.view_order_tree", DeclaredModel: "sale.order", ViewType: "tree", Priority: 10, Module: "sale", SourceFile: "sale/views/order.xml"},
			{XMLID: "sale_stock.view_order_form_inherit", InheritID: "sale.view_order_form", Priority: 16, Module: "sale_stock", SourceFile: "sale_stock/views/order.xml"},
		},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	g := s.Graph("test")
	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	plan := diff.Compute(resolve.Resolve(fixture()), snap, true, diff.Options{})
	for _, b := range diff.Batches(plan.Units, 100) {
		require.NoError(t, diff.ApplyBatch(ctx, g, b))
	}
	return New(s, "test")
}

func TestGetModel(t *testing.T) {
	e := newEngine(t)
	d, err := e.GetModel(context.Background(), "sale.order")
	require.NoError(t, err)

	assert.Equal(t, "sale.order", d.Model.Name)
	assert.Equal(t, "sale", d.Model.Module)
	var names []string
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"note", "partner_id", "warehouse_id"}, names)
	assert.Contains(t, d.Model.Fields, "partner_id")
	assert.Equal(t, []string{"mail.thread"}, d.Parents)
	assert.Equal(t, []string{"sale.view_order_form", "sale.view_order_tree", "sale_stock.view_order_form_inherit"}, d.Views)
}

func TestGetModelNotFoundSuggests(t *testing.T) {
	e := newEngine(t)
	_, err := e.GetModel(context.Background(), "sale.ordr")
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Suggestions, "sale.order")
	assert.Contains(t, err.Error(), "did you mean")
}

func TestGetView(t *testing.T) {
	e := newEngine(t)
	d, err := e.GetView(context.Background(), "sale.view_order_form")
	require.NoError(t, err)
	assert.Equal(t, "form", d.View.ViewType)
	assert.Equal(t, "sale.order", d.View.Model)
	assert.Equal(t, []string{"sale_stock.view_order_form_inherit"}, d.Extensions)

	ext, err := e.ViewExtensions(context.Background(), "sale.view_order_form")
	require.NoError(t, err)
	require.Len(t, ext, 1)
	assert.Equal(t, "sale.view_order_form", ext[0].InheritID)
}

func TestListModels(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	all, err := e.ListModels(ctx, ModelFilter{})
	require.NoError(t, err)
	var names []string
	for _, m := range all.Models {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"mail.thread", "res.partner", "sale.advance.wizard", "sale.order"}, names)

	yes := true
	transient, err := e.ListModels(ctx, ModelFilter{Transient: &yes})
	require.NoError(t, err)
	require.Len(t, transient.Models, 1)
	assert.Equal(t, "sale.advance.wizard", transient.Models[0].Name)

	page, err := e.ListModels(ctx, ModelFilter{Module: "sale", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Models, 1)
	assert.Equal(t, "sale.order", page.Models[0].Name)

	stubs, err := e.ListModels(ctx, ModelFilter{IncludeStubs: true})
	require.NoError(t, err)
	assert.Greater(t, stubs.Total, all.Total, "stock.warehouse is a stub")
}

func TestSearchModels(t *testing.T) {
	e := newEngine(t)
	out, err := e.SearchModels(context.Background(), "ORDER", 10)
	require.NoError(t, err)
	require.Len(t, out.Models, 1)
	assert.Equal(t, "sale.order", out.Models[0].Name)
}

func TestAncestryAndDescendants(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	up, err := e.Ancestry(ctx, "sale.order", 5)
	require.NoError(t, err)
	assert.Equal(t, []Hop{{Name: "mail.thread", Hop: 1}}, up)

	down, err := e.Descendants(ctx, "mail.thread", 5)
	require.NoError(t, err)
	assert.Equal(t, []Hop{{Name: "sale.order", Hop: 1}}, down)

	children, err := e.Children(ctx, "mail.thread")
	require.NoError(t, err)
	assert.Equal(t, []string{"sale.order"}, children)
}

func TestViewsForModelOrderedByPriority(t *testing.T) {
	e := newEngine(t)
	views, err := e.ViewsForModel(context.Background(), "sale.order")
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "sale.view_order_tree", views[0].XMLID)
	assert.Equal(t, "sale.view_order_form", views[1].XMLID)
	assert.Equal(t, "sale_stock.view_order_form_inherit", views[2].XMLID)
}

func TestFieldsAndRelations(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	m2o, err := e.Fields(ctx, "sale.order", string(entity.FieldMany2one))
	require.NoError(t, err)
	assert.Len(t, m2o, 2)

	rels, err := e.Relations(ctx, "sale.order")
	require.NoError(t, err)
	assert.Equal(t, []Relation{
		{Field: "partner_id", Type: entity.FieldMany2one, Target: "res.partner"},
		{Field: "warehouse_id", Type: entity.FieldMany2one, Target: "stock.warehouse"},
	}, rels)
}

func TestModuleDeps(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	deps, err := e.ModuleDeps(ctx, "sale")
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "mail"}, deps)

	dependents, err := e.ModuleDependents(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, []string{"mail", "sale"}, dependents)

	_, err = e.ModuleDeps(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImpact(t *testing.T) {
	e := newEngine(t)
	imp, err := e.Impact(context.Background(), entity.LabelModel, "sale.order", 3)
	require.NoError(t, err)

	assert.Equal(t, 3, imp.Views)
	assert.Equal(t, 1, imp.Referrers)
	assert.Positive(t, imp.Summary.Total)

	byKey := map[string]Affected{}
	for _, a := range imp.Affected {
		byKey[a.Key] = a
	}
	assert.Equal(t, store.RiskCritical, byKey["sale.view_order_form"].Risk)
	assert.Equal(t, 1, byKey["sale.advance.wizard.order_id"].Hop)
	assert.Equal(t, 2, byKey["sale.advance.wizard"].Hop)
	assert.Equal(t, 1, byKey["sale_stock.view_order_form_inherit"].Hop)
}

func TestStats(t *testing.T) {
	e := newEngine(t)
	s, err := e.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", s.Project)
	assert.NotEmpty(t, s.Schema.NodeLabels)
	assert.Nil(t, s.LastRun)
}
