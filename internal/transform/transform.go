// Package transform turns a parsed schema document into normalized tables,
// single-column relationships, warnings and an SQL rendering.
package transform

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"erdlive/internal/document"
	"erdlive/internal/schema"
)

// Limits are hard ceilings that keep a diagram renderable. A zero field
// takes its default.
type Limits struct {
	MaxTables        int
	MaxColumns       int
	MaxRelationships int
}

func DefaultLimits() Limits {
	return Limits{MaxTables: 500, MaxColumns: 200, MaxRelationships: 2000}
}

type Option func(*Transformer)

func WithLimits(l Limits) Option {
	return func(t *Transformer) {
		def := DefaultLimits()
		if l.MaxTables <= 0 {
			l.MaxTables = def.MaxTables
		}
		if l.MaxColumns <= 0 {
			l.MaxColumns = def.MaxColumns
		}
		if l.MaxRelationships <= 0 {
			l.MaxRelationships = def.MaxRelationships
		}
		t.limits = l
	}
}

func WithAdapter(a *document.Adapter) Option {
	return func(t *Transformer) { t.adapter = a }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Transformer) { t.log = l }
}

// Transformer is stateless between calls and safe for concurrent use.
type Transformer struct {
	adapter *document.Adapter
	limits  Limits
	log     logrus.FieldLogger
}

func New(opts ...Option) *Transformer {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	t := &Transformer{
		adapter: document.DefaultAdapter,
		limits:  DefaultLimits(),
		log:     discard,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transformer) Limits() Limits {
	return t.limits
}

// Transform parses text and transforms the resulting document. Parse
// diagnostics and limit violations are the only errors; every other anomaly
// is reported as a warning.
func (t *Transformer) Transform(text string) (*schema.TransformResult, error) {
	doc, err := t.adapter.Parse(text)
	if err != nil {
		t.log.WithError(err).Debug("schema text rejected")
		return nil, err
	}
	return t.TransformDocument(doc)
}

// TransformDocument transforms an already parsed document, e.g. one read
// from a live database.
func (t *Transformer) TransformDocument(doc *document.Document) (*schema.TransformResult, error) {
	if n := doc.TableCount(); n > t.limits.MaxTables {
		return nil, &LimitError{Limit: LimitTables, Subject: "schema", Max: t.limits.MaxTables, Got: n}
	}

	r := newRun(t.limits)
	r.buildEnums(doc)
	for _, ns := range doc.Namespaces {
		for _, dt := range ns.Tables {
			if err := r.addTable(ns.Name, dt); err != nil {
				return nil, err
			}
		}
	}
	if err := r.resolveRefs(doc); err != nil {
		return nil, err
	}

	res := &schema.TransformResult{
		Tables:        make([]schema.Table, 0, len(r.tables)),
		Relationships: r.rels,
		Warnings:      r.warnings,
	}
	for _, tbl := range r.tables {
		res.Tables = append(res.Tables, *tbl)
	}
	if res.Relationships == nil {
		res.Relationships = []schema.Relationship{}
	}
	if res.Warnings == nil {
		res.Warnings = []schema.Warning{}
	}
	res.ExportedText = exportSQL(r)

	t.log.WithFields(logrus.Fields{
		"tables":        len(res.Tables),
		"relationships": len(res.Relationships),
		"warnings":      len(res.Warnings),
	}).Debug("schema transformed")
	return res, nil
}

type tableKey struct {
	ns, name string
}

type columnKey struct {
	ns, table, column string
}

type enumDef struct {
	ns, name string
	values   []string
}

type indexDef struct {
	ns, table string
	index     *document.Index
}

// run holds the lookup registries of a single transform call.
type run struct {
	limits   Limits
	tables   []*schema.Table
	declared map[tableKey]*schema.Table
	byKey    map[tableKey]*schema.Table // declared names and aliases
	columns  map[columnKey]*schema.Column
	enums    map[string][]string
	enumDefs []enumDef
	indexes  []indexDef
	rels     []schema.Relationship
	warnings []schema.Warning
	seen     map[string]bool
}

func newRun(l Limits) *run {
	return &run{
		limits:   l,
		declared: make(map[tableKey]*schema.Table),
		byKey:    make(map[tableKey]*schema.Table),
		columns:  make(map[columnKey]*schema.Column),
		enums:    make(map[string][]string),
		seen:     make(map[string]bool),
	}
}

func (r *run) warn(context, format string, args ...any) {
	r.warnings = append(r.warnings, schema.Warning{Message: fmt.Sprintf(format, args...), Context: context})
}

func (r *run) buildEnums(doc *document.Document) {
	for _, ns := range doc.Namespaces {
		for _, e := range ns.Enums {
			key := ns.Name + "." + e.Name
			if _, dup := r.enums[key]; dup {
				r.warn(key, "duplicate enum %q ignored", e.Name)
				continue
			}
			values := append([]string(nil), e.Values...)
			r.enums[key] = values
			if ns.Name == schema.DefaultNamespace {
				r.enums[e.Name] = values
			}
			r.enumDefs = append(r.enumDefs, enumDef{ns: ns.Name, name: e.Name, values: values})
		}
	}
}

func (r *run) lookupEnum(ft document.FieldType, tableNs string) []string {
	ns := ft.Namespace
	if ns == "" {
		ns = tableNs
	}
	if values, ok := r.enums[ns+"."+ft.Name]; ok {
		return values
	}
	if ft.Namespace == "" {
		return r.enums[ft.Name]
	}
	return nil
}

func (r *run) addTable(ns string, dt *document.Table) error {
	key := tableKey{ns, dt.Name}
	if _, dup := r.declared[key]; dup {
		r.warn(ns+"."+dt.Name, "duplicate table %q ignored", dt.Name)
		return nil
	}

	t := &schema.Table{Namespace: ns, Name: dt.Name, Alias: dt.Alias, Note: dt.Note}
	if len(dt.Fields) > r.limits.MaxColumns {
		return &LimitError{Limit: LimitColumns, Subject: fmt.Sprintf("table %q", t.Label()), Max: r.limits.MaxColumns, Got: len(dt.Fields)}
	}
	if len(dt.Fields) == 0 {
		r.warn(ns+"."+dt.Name, "table %q has no columns", t.Label())
	}

	t.Columns = make([]schema.Column, 0, len(dt.Fields))
	names := make(map[string]bool, len(dt.Fields))
	for _, f := range dt.Fields {
		if names[f.Name] {
			r.warn(ns+"."+dt.Name+"."+f.Name, "duplicate column %q ignored", f.Name)
			continue
		}
		names[f.Name] = true
		t.Columns = append(t.Columns, r.buildColumn(ns, f))
	}

	for _, idx := range dt.Indexes {
		r.applyIndex(t, idx)
	}

	r.tables = append(r.tables, t)
	r.declared[key] = t
	// A declared name outranks an alias that claimed the same key earlier.
	if other, taken := r.byKey[key]; taken {
		r.refuseAlias(other, t)
	}
	r.byKey[key] = t
	if t.Alias != "" && t.Alias != t.Name {
		aliasKey := tableKey{ns, t.Alias}
		if other, taken := r.byKey[aliasKey]; taken {
			r.refuseAlias(t, other)
		} else {
			r.byKey[aliasKey] = t
		}
	}
	for i := range t.Columns {
		r.columns[columnKey{ns, t.Name, t.Columns[i].Name}] = &t.Columns[i]
	}
	return nil
}

// refuseAlias drops t's alias because owner already holds that key. The
// table falls back to its declared name so node keys stay unique.
func (r *run) refuseAlias(t, owner *schema.Table) {
	r.warn(t.Namespace+"."+t.Alias, "alias %q of %q already refers to %q; alias ignored", t.Alias, t.Label(), owner.Label())
	t.Alias = ""
}

func (r *run) buildColumn(ns string, f *document.Field) schema.Column {
	col := schema.Column{
		Name:       f.Name,
		TypeDetail: f.Type.Args,
		Nullable:   !f.NotNull,
		Unique:     f.Unique,
		Increment:  f.Increment,
		Note:       f.Note,
		Default:    normalizeDefault(f.Default),
	}
	if f.Type.Namespace != "" {
		col.Type = f.Type.Namespace + "." + f.Type.Name
	} else {
		col.Type = normalizeType(f.Type.Name)
	}
	if f.PK {
		col.MarkPrimaryKey()
	}
	if len(f.EnumValues) > 0 {
		col.EnumValues = append([]string(nil), f.EnumValues...)
	} else if values := r.lookupEnum(f.Type, ns); values != nil {
		col.EnumValues = append([]string(nil), values...)
	}
	return col
}

func (r *run) applyIndex(t *schema.Table, idx *document.Index) {
	for _, ic := range idx.Columns {
		if ic.Expression {
			continue
		}
		col := t.Column(ic.Value)
		if col == nil {
			r.warn(t.Namespace+"."+t.Name+"."+ic.Value, "index on %q references unknown column %q", t.Label(), ic.Value)
			continue
		}
		col.Indexed = true
		if idx.Type != "" {
			col.IndexType = idx.Type
		}
		if idx.PK {
			col.MarkPrimaryKey()
		}
		if idx.Unique {
			col.Unique = true
		}
	}
	r.indexes = append(r.indexes, indexDef{ns: t.Namespace, table: t.Name, index: idx})
}
