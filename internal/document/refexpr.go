package document

import (
	"fmt"
	"strings"
)

// relations maps a relationship operator to the cardinality markers of its
// left and right endpoints.
var relations = map[string][2]string{
	">":  {RelationMany, RelationOne},
	"<":  {RelationOne, RelationMany},
	"-":  {RelationOne, RelationOne},
	"<>": {RelationMany, RelationMany},
}

// ParseRefExpression parses "orders.user_id > users.id" style references.
// Composite endpoints are written as table.(a, b).
func ParseRefExpression(expr string) ([2]Endpoint, error) {
	var eps [2]Endpoint
	pos, op := findOperator(expr)
	if pos < 0 {
		return eps, fmt.Errorf("reference %q has no relationship operator", expr)
	}
	left, err := ParseEndpoint(expr[:pos])
	if err != nil {
		return eps, err
	}
	right, err := ParseEndpoint(expr[pos+len(op):])
	if err != nil {
		return eps, err
	}
	rel := relations[op]
	left.Relation, right.Relation = rel[0], rel[1]
	eps[0], eps[1] = left, right
	return eps, nil
}

// parseInlineRef parses a column-level reference such as "> users.id" and
// returns the operator together with the target endpoint.
func parseInlineRef(expr string) (string, Endpoint, error) {
	expr = strings.TrimSpace(expr)
	for _, op := range []string{"<>", ">", "<", "-"} {
		if strings.HasPrefix(expr, op) {
			ep, err := ParseEndpoint(expr[len(op):])
			return op, ep, err
		}
	}
	return "", Endpoint{}, fmt.Errorf("inline reference %q must start with one of <>, >, <, -", expr)
}

// findOperator locates the relationship operator outside quotes and
// parentheses. A dash only counts as an operator when it is spaced.
func findOperator(expr string) (int, string) {
	depth := 0
	quoted := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth > 0:
		case c == '<' && i+1 < len(expr) && expr[i+1] == '>':
			return i, "<>"
		case c == '<' || c == '>':
			return i, string(c)
		case c == '-' && i > 0 && i+1 < len(expr) && (expr[i-1] == ' ' || expr[i+1] == ' '):
			return i, "-"
		}
	}
	return -1, ""
}

// ParseEndpoint parses [namespace.]table.column or [namespace.]table.(a, b).
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	var ep Endpoint
	if open := strings.Index(s, "("); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return ep, fmt.Errorf("endpoint %q has an unterminated column list", s)
		}
		path := splitPath(strings.TrimSuffix(strings.TrimSpace(s[:open]), "."))
		for _, c := range strings.Split(s[open+1:len(s)-1], ",") {
			if c = unquote(strings.TrimSpace(c)); c != "" {
				ep.Columns = append(ep.Columns, c)
			}
		}
		switch len(path) {
		case 1:
			ep.Table = path[0]
		case 2:
			ep.Namespace, ep.Table = path[0], path[1]
		default:
			return ep, fmt.Errorf("endpoint %q must be [namespace.]table.(columns)", s)
		}
	} else {
		path := splitPath(s)
		switch len(path) {
		case 2:
			ep.Table, ep.Columns = path[0], []string{path[1]}
		case 3:
			ep.Namespace, ep.Table, ep.Columns = path[0], path[1], []string{path[2]}
		default:
			return ep, fmt.Errorf("endpoint %q must be [namespace.]table.column", s)
		}
	}
	if ep.Table == "" {
		return ep, fmt.Errorf("endpoint %q is missing a table name", s)
	}
	return ep, nil
}

// FormatRefExpression is the inverse of ParseRefExpression.
func FormatRefExpression(ref *Ref) string {
	op := "-"
	for o, rel := range relations {
		if rel[0] == ref.Endpoints[0].Relation && rel[1] == ref.Endpoints[1].Relation {
			op = o
			break
		}
	}
	return formatEndpoint(ref.Endpoints[0]) + " " + op + " " + formatEndpoint(ref.Endpoints[1])
}

func formatEndpoint(ep Endpoint) string {
	s := ep.Table
	if ep.Namespace != "" {
		s = ep.Namespace + "." + s
	}
	if len(ep.Columns) == 1 {
		return s + "." + ep.Columns[0]
	}
	return s + ".(" + strings.Join(ep.Columns, ", ") + ")"
}

// splitPath splits on dots that are not inside double quotes.
func splitPath(s string) []string {
	var parts []string
	var b strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '.' && !quoted:
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(parts, strings.TrimSpace(b.String()))
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
