package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/odoo-graph/internal/pipeline"
	"github.com/DeusData/odoo-graph/internal/query"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o600))
}

// addons builds a two-module tree and returns the flags pointing at it.
func addons(t *testing.T) []string {
	t.Helper()
	t.Chdir(t.TempDir())
	src := t.TempDir()
	writeFile(t, src, "base/__manifest__.py", `{'name': 'Base'}`)
	writeFile(t, src, "base/models/partner.py", `from odoo import fields, models


class Partner(models.Model):
    _name = 'res.partner'

    name = fields.Char()
`)
	writeFile(t, src, "sale/__manifest__.py", `{'name': 'Sales', 'depends': ['base']}`)
	writeFile(t, src, "sale/models/order.py", `from odoo import fields, models


class SaleOrder(models.Model):
    _name = 'sale.order'

    partner_id = fields.Many2one('res.partner')
`)
	writeFile(t, src, "sale/views/order.xml", `<odoo>
    <record id="view_order_form" model="ir.ui.view">
        <field name="model">sale.order</field>
        <field name="arch" type="xml"><form/></field>
    </record>
</odoo>
`)
	return []string{
		"--source=" + src,
		"--db=" + filepath.Join(t.TempDir(), "graph.db"),
		"--project=addons",
		"--workers=2",
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func cmd(name string, flags []string, extra ...string) []string {
	return append(append([]string{name}, flags...), extra...)
}

func TestVersionAndUsage(t *testing.T) {
	code, out, _ := runCLI(t, "--version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "odoo-graph")

	code, _, errOut := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "Commands:")

	code, _, errOut = runCLI(t, "frobnicate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, `unknown command "frobnicate"`)
}

func TestConfigurationErrorIsUsage(t *testing.T) {
	flags := addons(t)
	code, _, errOut := runCLI(t, cmd("load", flags, "--full_ratio=0")...)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "full_ratio")
}

func TestLoadAndQuery(t *testing.T) {
	flags := addons(t)

	code, out, errOut := runCLI(t, cmd("load", flags)...)
	require.Equal(t, exitOK, code, errOut)
	var r pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "FULL", string(r.Mode))
	assert.Equal(t, "SUCCESS", string(r.Status))
	assert.Equal(t, 3, r.Files.Processed)

	code, out, errOut = runCLI(t, cmd("model", flags, "sale.order")...)
	require.Equal(t, exitOK, code, errOut)
	var d query.ModelDetail
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "sale", d.Model.Module)
	assert.Equal(t, []string{"sale.view_order_form"}, d.Views)

	code, out, errOut = runCLI(t, cmd("view", flags, "sale.view_order_form")...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, `"view_type": "form"`)

	code, out, errOut = runCLI(t, cmd("models", flags, "--module=base")...)
	require.Equal(t, exitOK, code, errOut)
	var list query.ModelList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Models, 1)
	assert.Equal(t, "res.partner", list.Models[0].Name)

	code, out, errOut = runCLI(t, cmd("impact", flags, "res.partner")...)
	require.Equal(t, exitOK, code, errOut)
	var imp query.Impact
	require.NoError(t, json.Unmarshal([]byte(out), &imp))
	assert.Equal(t, 1, imp.Referrers)

	code, out, errOut = runCLI(t, cmd("stats", flags)...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, `"status": "SUCCESS"`)
}

func TestSecondLoadIsIncremental(t *testing.T) {
	flags := addons(t)
	code, _, errOut := runCLI(t, cmd("load", flags)...)
	require.Equal(t, exitOK, code, errOut)

	code, out, errOut := runCLI(t, cmd("load", flags)...)
	require.Equal(t, exitOK, code, errOut)
	var r pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "INCREMENTAL", string(r.Mode))
	assert.Zero(t, r.Ops.Ops())

	code, out, errOut = runCLI(t, cmd("load", flags, "--full")...)
	require.Equal(t, exitOK, code, errOut)
	r = pipeline.Report{}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "FULL", string(r.Mode))
}

func TestPartialLoadExitCode(t *testing.T) {
	flags := addons(t)
	var src string
	for _, f := range flags {
		if v, ok := strings.CutPrefix(f, "--source="); ok {
			src = v
		}
	}
	writeFile(t, src, "sale/models/broken.py", "class Broken(models.Model:\n    _name = 'x'\n")

	code, out, _ := runCLI(t, cmd("load", flags)...)
	assert.Equal(t, exitPartial, code)
	assert.Contains(t, out, `"PARTIAL"`)
}

func TestUnknownModel(t *testing.T) {
	flags := addons(t)
	code, _, errOut := runCLI(t, cmd("load", flags)...)
	require.Equal(t, exitOK, code, errOut)

	code, _, errOut = runCLI(t, cmd("model", flags, "sale.ordr")...)
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, errOut, "sale.order")

	code, _, _ = runCLI(t, cmd("model", flags)...)
	assert.Equal(t, exitUsage, code)
}

func TestClear(t *testing.T) {
	flags := addons(t)
	code, _, errOut := runCLI(t, cmd("load", flags)...)
	require.Equal(t, exitOK, code, errOut)

	code, out, errOut := runCLI(t, cmd("clear", flags)...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "cleared addons")

	code, out, errOut = runCLI(t, cmd("load", flags)...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, `"mode": "FULL"`, "cleared fingerprints force a FULL run")
}

func TestServeNeedsATransport(t *testing.T) {
	flags := addons(t)
	code, _, _ := runCLI(t, cmd("serve", flags, "--stdio=false")...)
	assert.Equal(t, exitUsage, code)
}

func TestParse(t *testing.T) {
	flags := addons(t)
	src := strings.TrimPrefix(flags[0], "--source=")
	t.Chdir(src)

	code, out, errOut := runCLI(t, "parse", "sale/models/order.py")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, `"module": "sale"`)
	assert.Contains(t, out, "sale.order")

	code, out, errOut = runCLI(t, "parse", "--ast", "sale/models/order.py")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "class_definition")

	code, _, _ = runCLI(t, "parse", "--ast", "sale/views/order.xml")
	assert.Equal(t, exitUsage, code)
}
