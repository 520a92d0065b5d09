package parser

import (
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Pair is one entry of an evaluated dict literal, in source order.
type Pair struct {
	Key   any
	Value any
}

// Literal evaluates a Python literal expression: strings (including implicit
// concatenation), numbers, True/False/None, and lists, tuples and dicts of
// literals. Lists and tuples become []any, dicts become []Pair. Anything else
// (names, calls, f-strings, operators) reports ok=false.
func Literal(node *tree_sitter.Node, source []byte) (v any, ok bool) {
	if node == nil {
		return nil, false
	}
	switch node.Kind() {
	case "string":
		return stringLiteral(NodeText(node, source))
	case "concatenated_string":
		var b strings.Builder
		for _, part := range NamedChildren(node) {
			s, ok := Literal(part, source)
			str, isStr := s.(string)
			if !ok || !isStr {
				return nil, false
			}
			b.WriteString(str)
		}
		return b.String(), true
	case "integer":
		text := strings.ReplaceAll(NodeText(node, source), "_", "")
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case "float":
		f, err := strconv.ParseFloat(strings.ReplaceAll(NodeText(node, source), "_", ""), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case "true":
		return true, true
	case "false":
		return false, true
	case "none":
		return nil, true
	case "unary_operator":
		operand := node.ChildByFieldName("argument")
		op := node.ChildByFieldName("operator")
		if operand == nil || op == nil || NodeText(op, source) != "-" {
			return nil, false
		}
		switch n := mustLiteral(operand, source).(type) {
		case int64:
			return -n, true
		case float64:
			return -n, true
		}
		return nil, false
	case "parenthesized_expression":
		children := NamedChildren(node)
		if len(children) != 1 {
			return nil, false
		}
		return Literal(children[0], source)
	case "list", "tuple", "set":
		items := NamedChildren(node)
		out := make([]any, 0, len(items))
		for _, item := range items {
			v, ok := Literal(item, source)
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return out, true
	case "dictionary":
		var out []Pair
		for _, child := range NamedChildren(node) {
			if child.Kind() != "pair" {
				return nil, false
			}
			k, okK := Literal(child.ChildByFieldName("key"), source)
			v, okV := Literal(child.ChildByFieldName("value"), source)
			if !okK || !okV {
				return nil, false
			}
			out = append(out, Pair{Key: k, Value: v})
		}
		return out, true
	}
	return nil, false
}

func mustLiteral(node *tree_sitter.Node, source []byte) any {
	v, _ := Literal(node, source)
	return v
}

// stringLiteral decodes the text of a single Python string token.
func stringLiteral(text string) (any, bool) {
	i := 0
	for i < len(text) && text[i] != '\'' && text[i] != '"' {
		i++
	}
	prefix := strings.ToLower(text[:i])
	if strings.ContainsRune(prefix, 'f') {
		return nil, false
	}
	body := text[i:]
	var quote string
	switch {
	case strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`):
		quote = body[:3]
	case len(body) >= 2:
		quote = body[:1]
	default:
		return nil, false
	}
	if len(body) < 2*len(quote) || !strings.HasSuffix(body, quote) {
		return nil, false
	}
	inner := body[len(quote) : len(body)-len(quote)]
	if strings.ContainsRune(prefix, 'r') {
		return inner, true
	}
	return unescape(inner), true
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		case '\n':
			// line continuation
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// LiteralString returns the node's value if it is a string literal.
func LiteralString(node *tree_sitter.Node, source []byte) (string, bool) {
	v, ok := Literal(node, source)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// LiteralStrings accepts a string or a list/tuple of strings.
func LiteralStrings(node *tree_sitter.Node, source []byte) ([]string, bool) {
	v, ok := Literal(node, source)
	if !ok {
		return nil, false
	}
	return AsStrings(v)
}

// AsStrings converts an evaluated literal to a string slice.
func AsStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case string:
		return []string{t}, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Lookup returns the value stored under a string key of an evaluated dict.
func Lookup(pairs []Pair, key string) (any, bool) {
	for _, p := range pairs {
		if k, ok := p.Key.(string); ok && k == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Display renders an evaluated literal the way it would read in source.
func Display(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = quoteIfString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []Pair:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = quoteIfString(p.Key) + ": " + quoteIfString(p.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

func quoteIfString(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Display(v)
}
