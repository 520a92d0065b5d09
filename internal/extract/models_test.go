package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
)

const partnerSource = `from odoo import api, fields, models, _


class ResPartner(models.Model):
    _name = 'res.partner'
    _inherit = ['mail.thread', 'mail.activity.mixin']
    _description = 'Contact'

    name = fields.Char(string='Name', required=True, index=True)
    parent_id = fields.Many2one('res.partner', 'Related Company', ondelete='restrict')
    child_ids = fields.One2many('res.partner', 'parent_id', string='Contacts')
    category_id = fields.Many2many(comodel_name='res.partner.category', string='Tags')
    lang = fields.Selection(_lang_get, default=lambda self: self.env.lang)
    _order = 'name'

    def _compute_display_name(self):
        x = fields.Char()
        return x


class PartnerExtension(models.Model):
    _inherit = 'res.partner'

    vat = fields.Char('Tax ID')


class Helper:
    _name = 'not.a.model'
`

func TestExtractModelsBasic(t *testing.T) {
	frags, err := ExtractModels("base/models/res_partner.py", "base", []byte(partnerSource))
	require.NoError(t, err)
	require.Len(t, frags, 2)

	p := frags[0]
	assert.Equal(t, "ResPartner", p.ClassName)
	assert.Equal(t, "res.partner", p.DeclaredName)
	assert.Equal(t, []string{"mail.thread", "mail.activity.mixin"}, p.InheritTargets)
	assert.Equal(t, "Contact", p.Description)
	assert.Equal(t, "base", p.Module)
	assert.Equal(t, "base/models/res_partner.py", p.SourceFile)
	assert.Equal(t, 4, p.Line)
	assert.Equal(t, entity.KindRedefinition, p.Kind())
	require.Len(t, p.Fields, 5, "method-local assignments are not fields")

	byName := map[string]entity.FieldDecl{}
	for _, f := range p.Fields {
		byName[f.Name] = f
	}
	assert.Equal(t, entity.FieldKind("char"), byName["name"].Type)
	assert.Equal(t, "Name", byName["name"].Attributes["string"])
	assert.Equal(t, "True", byName["name"].Attributes["required"])

	parent := byName["parent_id"]
	assert.Equal(t, entity.FieldMany2one, parent.Type)
	assert.Equal(t, "res.partner", parent.RelationTarget)
	assert.Equal(t, "Related Company", parent.Attributes["string"])
	assert.Equal(t, "restrict", parent.Attributes["ondelete"])

	children := byName["child_ids"]
	assert.Equal(t, entity.FieldOne2many, children.Type)
	assert.Equal(t, "res.partner", children.RelationTarget)
	assert.Equal(t, "parent_id", children.Attributes["inverse_name"])

	assert.Equal(t, "res.partner.category", byName["category_id"].RelationTarget)
	_, hasComodelAttr := byName["category_id"].Attributes["comodel_name"]
	assert.False(t, hasComodelAttr)

	lang := byName["lang"]
	assert.Equal(t, "_lang_get", lang.Attributes["selection"])
	assert.Equal(t, "lambda self: self.env.lang", lang.Attributes["default"])
	assert.Empty(t, lang.RelationTarget)

	ext := frags[1]
	assert.Empty(t, ext.DeclaredName)
	assert.Equal(t, []string{"res.partner"}, ext.InheritTargets)
	assert.Equal(t, []string{"res.partner"}, ext.Identities())
	assert.Equal(t, entity.KindExtension, ext.Kind())
}

func TestExtractModelsTransientAndAbstract(t *testing.T) {
	src := `from odoo import fields, models
from odoo.models import AbstractModel


class Wizard(models.TransientModel):
    _name = 'sale.advance.wizard'
    amount = fields.Float()


class Flagged(models.Model):
    _name = 'legacy.wizard'
    _transient = True


class Mixin(AbstractModel):
    _name = 'portal.mixin'
    access_url = fields.Char()


class Delegating(models.Model):
    _name = 'res.users'
    _inherits = {'res.partner': 'partner_id'}
`
	frags, err := ExtractModels("m/models.py", "m", []byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 4)

	assert.True(t, frags[0].IsTransient)
	assert.Equal(t, entity.KindTransient, frags[0].Kind())
	require.Len(t, frags[0].Fields, 1)

	assert.True(t, frags[1].IsTransient)
	assert.True(t, frags[2].IsAbstract)
	assert.Equal(t, map[string]string{"res.partner": "partner_id"}, frags[3].InheritsMap)
}

func TestExtractModelsMixinWithoutName(t *testing.T) {
	src := `from odoo import fields, models


class Trackable(models.AbstractModel):
    note = fields.Text()
`
	frags, err := ExtractModels("m/mixin.py", "m", []byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, entity.KindMixin, frags[0].Kind())
	assert.Empty(t, frags[0].Identities())
}

func TestExtractModelsDynamicNameIgnored(t *testing.T) {
	src := `from odoo import models

PREFIX = 'x'


class Dyn(models.Model):
    _name = PREFIX + '.dyn'
    _inherit = 'base'
`
	frags, err := ExtractModels("m/dyn.py", "m", []byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Empty(t, frags[0].DeclaredName)
	assert.Equal(t, []string{"base"}, frags[0].InheritTargets)
}

func TestExtractModelsSyntaxError(t *testing.T) {
	src := "from odoo import models\n\nclass Broken(models.Model:\n    _name = 'x'\n"
	frags, err := ExtractModels("m/broken.py", "m", []byte(src))
	assert.Nil(t, frags)

	var pe *errs.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "m/broken.py", pe.Path)
}

func TestFileDispatch(t *testing.T) {
	res := File("m/a.py", "m", "python", []byte(partnerSource))
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Fragments())

	res = File("m/a.js", "m", "javascript", nil)
	assert.Error(t, res.Err)
}
