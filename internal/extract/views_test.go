package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
)

const partnerViews = `<?xml version="1.0" encoding="utf-8"?>
<odoo>
    <data>
        <record id="view_partner_form" model="ir.ui.view">
            <field name="name">res.partner.form</field>
            <field name="model">res.partner</field>
            <field name="arch" type="xml">
                <form string="Partners">
                    <field name="name"/>
                    <field name="model"/>
                </form>
            </field>
        </record>

        <record id="view_partner_tree_ext" model="ir.ui.view">
            <field name="name">res.partner.tree.ext</field>
            <field name="inherit_id" ref="base.view_partner_tree"/>
            <field name="priority" eval="20"/>
            <field name="arch" type="xml">
                <xpath expr="//tree" position="inside">
                    <tree><field name="vat"/></tree>
                </xpath>
            </field>
        </record>

        <record id="view_partner_search" model="ir.ui.view">
            <field name="model">res.partner</field>
            <field name="type">search</field>
            <field name="priority">8</field>
            <field name="arch" type="xml"><form/></field>
        </record>

        <record id="action_partner" model="ir.actions.act_window">
            <field name="name">Partners</field>
        </record>

        <template id="portal_layout" inherit_id="portal.frontend_layout" name="Portal Layout" priority="30">
            <xpath expr="." position="inside"/>
        </template>
    </data>
</odoo>
`

func TestExtractViews(t *testing.T) {
	views, err := ExtractViews("contacts/views/partner.xml", "contacts", []byte(partnerViews))
	require.NoError(t, err)
	require.Len(t, views, 4)

	form := views[0]
	assert.Equal(t, "contacts.view_partner_form", form.XMLID)
	assert.Equal(t, "res.partner.form", form.Name)
	assert.Equal(t, "res.partner", form.DeclaredModel)
	assert.Equal(t, "form", form.ViewType)
	assert.Equal(t, entity.DefaultViewPriority, form.Priority)
	assert.Empty(t, form.InheritID)
	assert.Equal(t, "contacts/views/partner.xml", form.SourceFile)

	ext := views[1]
	assert.Equal(t, "base.view_partner_tree", ext.InheritID)
	assert.Equal(t, 20, ext.Priority)
	assert.Equal(t, entity.ViewTypeUnknown, ext.ViewType, "xpath bodies do not name a type")
	assert.Empty(t, ext.DeclaredModel)

	search := views[2]
	assert.Equal(t, "search", search.ViewType, "explicit type wins over arch")
	assert.Equal(t, 8, search.Priority)
	assert.Equal(t, "view_partner_search", search.Name)

	tpl := views[3]
	assert.Equal(t, "contacts.portal_layout", tpl.XMLID)
	assert.Equal(t, "portal.frontend_layout", tpl.InheritID)
	assert.Equal(t, "qweb", tpl.ViewType)
	assert.Equal(t, 30, tpl.Priority)
}

func TestExtractViewsQualifiesLocalRefs(t *testing.T) {
	src := `<odoo>
  <record id="a" model="ir.ui.view"><field name="inherit_id" ref="b"/></record>
</odoo>`
	views, err := ExtractViews("m/v.xml", "m", []byte(src))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "m.a", views[0].XMLID)
	assert.Equal(t, "m.b", views[0].InheritID)
}

func TestExtractViewsMalformed(t *testing.T) {
	src := "<odoo>\n  <record id=\"a\" model=\"ir.ui.view\">\n</odoo>\n"
	views, err := ExtractViews("m/bad.xml", "m", []byte(src))
	assert.Nil(t, views)

	var pe *errs.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "m/bad.xml", pe.Path)
	assert.Greater(t, pe.Line, 0)
}

func TestExtractViewsEmptyFile(t *testing.T) {
	views, err := ExtractViews("m/empty.xml", "m", []byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestExtractViewsNoViews(t *testing.T) {
	src := `<odoo><record id="x" model="res.groups"><field name="name">G</field></record></odoo>`
	views, err := ExtractViews("m/security.xml", "m", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, views)
}
