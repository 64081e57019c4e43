package database

import (
	"regexp"
	"strconv"
	"strings"

	"erdlive/internal/document"
)

// castSuffix matches a trailing PostgreSQL cast such as ::character varying
// or ::"auth".role[].
var castSuffix = regexp.MustCompile(`::[A-Za-z_" ][A-Za-z0-9_." ]*(\[\])?$`)

var numericTypes = map[string]bool{
	"smallint":         true,
	"integer":          true,
	"bigint":           true,
	"numeric":          true,
	"real":             true,
	"double precision": true,
}

// parseDefault turns a column default as reported by the catalog into a
// typed document default. Sequence defaults mark the column as
// auto-increment and carry no default of their own.
func parseDefault(raw string) (def *document.DefaultValue, increment bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(raw), "nextval(") {
		return nil, true
	}

	v, cast := raw, ""
	for castSuffix.MatchString(v) {
		cast = strings.ToLower(strings.Trim(castSuffix.FindString(v), ": "))
		v = strings.TrimSpace(castSuffix.ReplaceAllString(v, ""))
	}
	if len(v) >= 2 && v[0] == '(' && v[len(v)-1] == ')' {
		if _, err := strconv.ParseFloat(v[1:len(v)-1], 64); err == nil {
			v = v[1 : len(v)-1]
		}
	}

	switch {
	case strings.EqualFold(v, "null"):
		return &document.DefaultValue{Type: document.DefaultTypeNull}, false
	case isQuoted(v):
		s := strings.ReplaceAll(v[1:len(v)-1], "''", "'")
		if numericTypes[cast] {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &document.DefaultValue{Value: f, Type: document.DefaultTypeNumber}, false
			}
		}
		return &document.DefaultValue{Value: s, Type: document.DefaultTypeString}, false
	case strings.EqualFold(v, "true") || strings.EqualFold(v, "false"):
		return &document.DefaultValue{Value: strings.EqualFold(v, "true"), Type: document.DefaultTypeBoolean}, false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return &document.DefaultValue{Value: f, Type: document.DefaultTypeNumber}, false
	}
	return &document.DefaultValue{Value: raw, Type: document.DefaultTypeExpression}, false
}

// isQuoted reports whether s is a single complete SQL string literal.
func isQuoted(s string) bool {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return false
	}
	inner := s[1 : len(s)-1]
	return !strings.Contains(strings.ReplaceAll(inner, "''", ""), "'")
}
