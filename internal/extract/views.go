package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strconv"
	"strings"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
)

// viewKinds are the arch root tags that name a view type.
var viewKinds = map[string]bool{
	"form": true, "tree": true, "list": true, "kanban": true, "search": true,
	"graph": true, "pivot": true, "calendar": true, "gantt": true,
	"activity": true, "qweb": true, "map": true, "cohort": true,
	"dashboard": true, "grid": true, "hierarchy": true,
}

// xmlNode is a generic element tree; view records are read structurally
// rather than through a fixed schema so unknown tags pass through.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ExtractViews parses one XML data file and returns its view fragments in
// document order: `record` elements of model ir.ui.view and QWeb
// `template` elements. A malformed document yields a *errs.ParseError.
func ExtractViews(relPath, module string, source []byte) ([]entity.ViewFragment, error) {
	if len(bytes.TrimSpace(source)) == 0 {
		return nil, nil
	}
	var root xmlNode
	dec := xml.NewDecoder(bytes.NewReader(source))
	dec.Strict = true
	if err := dec.Decode(&root); err != nil {
		line := 0
		var se *xml.SyntaxError
		if errors.As(err, &se) {
			line = se.Line
		}
		return nil, errs.NewParseError(relPath, line, err)
	}

	var out []entity.ViewFragment
	var visit func(n *xmlNode)
	visit = func(n *xmlNode) {
		switch n.XMLName.Local {
		case "record":
			if n.attr("model") == "ir.ui.view" {
				if v, ok := readRecord(n, module); ok {
					v.SourceFile = relPath
					out = append(out, v)
				}
				return
			}
		case "template":
			if v, ok := readTemplate(n, module); ok {
				v.SourceFile = relPath
				out = append(out, v)
			}
			return
		}
		for i := range n.Children {
			visit(&n.Children[i])
		}
	}
	visit(&root)
	return out, nil
}

func readRecord(rec *xmlNode, module string) (entity.ViewFragment, bool) {
	id := rec.attr("id")
	if id == "" {
		return entity.ViewFragment{}, false
	}
	v := entity.ViewFragment{
		XMLID:    entity.QualifyXMLID(module, id),
		Module:   module,
		Priority: entity.DefaultViewPriority,
	}
	for i := range rec.Children {
		f := &rec.Children[i]
		if f.XMLName.Local != "field" {
			continue
		}
		switch f.attr("name") {
		case "name":
			v.Name = strings.TrimSpace(f.Text)
		case "model":
			v.DeclaredModel = strings.TrimSpace(f.Text)
		case "type":
			v.ViewType = strings.TrimSpace(f.Text)
		case "inherit_id":
			v.InheritID = entity.QualifyXMLID(module, f.attr("ref"))
		case "priority":
			v.Priority = parsePriority(f)
		case "arch":
			if v.ViewType == "" {
				v.ViewType = archType(f)
			}
		}
	}
	if v.Name == "" {
		v.Name = id
	}
	if v.ViewType == "" {
		v.ViewType = entity.ViewTypeUnknown
	}
	return v, true
}

func readTemplate(tpl *xmlNode, module string) (entity.ViewFragment, bool) {
	id := tpl.attr("id")
	if id == "" {
		return entity.ViewFragment{}, false
	}
	v := entity.ViewFragment{
		XMLID:     entity.QualifyXMLID(module, id),
		Name:      tpl.attr("name"),
		InheritID: entity.QualifyXMLID(module, tpl.attr("inherit_id")),
		ViewType:  "qweb",
		Module:    module,
		Priority:  entity.DefaultViewPriority,
	}
	if p := tpl.attr("priority"); p != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			v.Priority = n
		}
	}
	if v.Name == "" {
		v.Name = id
	}
	return v, true
}

func parsePriority(f *xmlNode) int {
	raw := strings.TrimSpace(f.attr("eval"))
	if raw == "" {
		raw = strings.TrimSpace(f.Text)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return entity.DefaultViewPriority
	}
	return n
}

// archType returns the first known view tag among the arch's top-level
// elements, descending through a wrapping <data> element.
func archType(arch *xmlNode) string {
	for i := range arch.Children {
		c := &arch.Children[i]
		tag := c.XMLName.Local
		if viewKinds[tag] {
			return tag
		}
		if tag == "data" {
			if t := archType(c); t != entity.ViewTypeUnknown {
				return t
			}
		}
	}
	return entity.ViewTypeUnknown
}
