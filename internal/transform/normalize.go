package transform

import (
	"fmt"
	"regexp"
	"strings"

	"erdlive/internal/document"
	"erdlive/internal/schema"
)

// typeShorthands maps verbose type names to the names shown on the diagram.
var typeShorthands = map[string]string{
	"integer":                     "int",
	"int4":                        "int",
	"int8":                        "bigint",
	"int2":                        "smallint",
	"character varying":           "varchar",
	"character":                   "char",
	"bool":                        "boolean",
	"double precision":            "double",
	"float8":                      "double",
	"float4":                      "real",
	"timestamp with time zone":    "timestamptz",
	"timestamp without time zone": "timestamp",
	"time with time zone":         "timetz",
	"time without time zone":      "time",
	"serial4":                     "serial",
	"serial8":                     "bigserial",
}

func normalizeType(name string) string {
	if short, ok := typeShorthands[strings.ToLower(strings.TrimSpace(name))]; ok {
		return short
	}
	return name
}

var (
	callLike = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*\s*\(.*\)$`)

	// Bare function names that are expressions even without parentheses.
	knownFunctions = map[string]bool{
		"now":                   true,
		"current_timestamp":     true,
		"current_date":          true,
		"current_time":          true,
		"localtime":             true,
		"localtimestamp":        true,
		"uuid_generate_v4":      true,
		"gen_random_uuid":       true,
		"uuid":                  true,
		"current_user":          true,
		"session_user":          true,
		"transaction_timestamp": true,
	}
)

// isExpression reports whether a raw string default is an SQL expression
// rather than a literal.
func isExpression(s string) bool {
	s = strings.TrimSpace(s)
	if callLike.MatchString(s) {
		return true
	}
	return knownFunctions[strings.ToLower(s)]
}

// normalizeDefault turns a parsed default into its tagged form.
func normalizeDefault(d *document.DefaultValue) *schema.Default {
	if d == nil {
		return nil
	}
	switch d.Type {
	case document.DefaultTypeNull:
		return &schema.Default{Kind: schema.DefaultNull}
	case document.DefaultTypeNumber:
		if f, ok := toFloat(d.Value); ok {
			return &schema.Default{Value: f, Kind: schema.DefaultNumber}
		}
	case document.DefaultTypeBoolean:
		if b, ok := d.Value.(bool); ok {
			return &schema.Default{Value: b, Kind: schema.DefaultBoolean}
		}
	case document.DefaultTypeExpression:
		return &schema.Default{Value: toString(d.Value), Kind: schema.DefaultExpression}
	case document.DefaultTypeString:
		return &schema.Default{Value: toString(d.Value), Kind: schema.DefaultString}
	}

	// Raw values, including typed hints whose value did not match the hint.
	switch v := d.Value.(type) {
	case nil:
		return &schema.Default{Kind: schema.DefaultNull}
	case bool:
		return &schema.Default{Value: v, Kind: schema.DefaultBoolean}
	case string:
		if isExpression(v) {
			return &schema.Default{Value: v, Kind: schema.DefaultExpression}
		}
		return &schema.Default{Value: v, Kind: schema.DefaultString}
	}
	if f, ok := toFloat(d.Value); ok {
		return &schema.Default{Value: f, Kind: schema.DefaultNumber}
	}
	return &schema.Default{Value: toString(d.Value), Kind: schema.DefaultString}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
