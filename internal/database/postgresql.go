package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"erdlive/internal/document"
	"erdlive/pkg/config"
)

type PostgreSQLExtractor struct {
	db *sql.DB
}

type pgTable struct {
	ns, name, kind, comment string
}

func (p *PostgreSQLExtractor) ExtractDocument(ctx context.Context, cfg config.SchemaConfig) (*document.Document, error) {
	f := filter{cfg: cfg}
	doc := &document.Document{}

	if err := p.extractEnums(ctx, doc, f); err != nil {
		return nil, fmt.Errorf("failed to extract enums: %w", err)
	}

	tables, err := p.listTables(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	extracted := make(tableSet)
	for _, pt := range tables {
		t := &document.Table{Name: pt.name, Note: pt.comment}
		if pt.kind == "VIEW" && t.Note == "" {
			t.Note = "view"
		}

		if t.Fields, err = p.extractColumns(ctx, pt); err != nil {
			return nil, fmt.Errorf("failed to extract columns of %s.%s: %w", pt.ns, pt.name, err)
		}
		if pt.kind != "VIEW" {
			if err := p.extractKeys(ctx, pt, t); err != nil {
				return nil, fmt.Errorf("failed to extract keys of %s.%s: %w", pt.ns, pt.name, err)
			}
			if err := p.extractIndexes(ctx, pt, t); err != nil {
				return nil, fmt.Errorf("failed to extract indexes of %s.%s: %w", pt.ns, pt.name, err)
			}
		}

		ns := doc.Namespace(pt.ns)
		ns.Tables = append(ns.Tables, t)
		extracted.add(pt.ns, t)
	}

	fks, err := p.extractForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	addForeignKeys(doc, extracted, fks)

	return doc, nil
}

func (p *PostgreSQLExtractor) listTables(ctx context.Context, f filter) ([]pgTable, error) {
	query := `
        SELECT t.table_schema, t.table_name, t.table_type,
            COALESCE(obj_description(format('%I.%I', t.table_schema, t.table_name)::regclass, 'pg_class'), '') AS comment
        FROM information_schema.tables t
        WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
            AND t.table_type IN ('BASE TABLE', 'VIEW')
        ORDER BY t.table_schema, t.table_name
    `

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []pgTable
	for rows.Next() {
		var t pgTable
		if err := rows.Scan(&t.ns, &t.name, &t.kind, &t.comment); err != nil {
			return nil, err
		}
		if t.kind == "VIEW" && !f.cfg.IncludeViews {
			continue
		}
		if !f.table(t.ns, t.name) {
			continue
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

func (p *PostgreSQLExtractor) extractColumns(ctx context.Context, pt pgTable) ([]*document.Field, error) {
	query := `
        SELECT
            c.column_name,
            c.data_type,
            c.udt_schema,
            c.udt_name,
            c.character_maximum_length,
            c.numeric_precision,
            c.numeric_scale,
            c.is_nullable = 'YES' AS is_nullable,
            c.column_default,
            c.is_identity = 'YES' AS is_identity,
            COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position), '') AS comment
        FROM information_schema.columns c
        WHERE c.table_schema = $1 AND c.table_name = $2
        ORDER BY c.ordinal_position
    `

	rows, err := p.db.QueryContext(ctx, query, pt.ns, pt.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []*document.Field
	for rows.Next() {
		var (
			field                    document.Field
			dataType, udtNs, udtName string
			length, precision, scale sql.NullInt64
			nullable, identity       bool
			defaultValue             sql.NullString
		)

		if err := rows.Scan(
			&field.Name,
			&dataType,
			&udtNs,
			&udtName,
			&length,
			&precision,
			&scale,
			&nullable,
			&defaultValue,
			&identity,
			&field.Note,
		); err != nil {
			return nil, err
		}

		field.Type = pgFieldType(pt.ns, dataType, udtNs, udtName, length, precision, scale)
		field.NotNull = !nullable
		field.Increment = identity
		if defaultValue.Valid {
			def, seq := parseDefault(defaultValue.String)
			field.Default = def
			field.Increment = field.Increment || seq
		}

		fields = append(fields, &field)
	}

	return fields, rows.Err()
}

func pgFieldType(tableNs, dataType, udtNs, udtName string, length, precision, scale sql.NullInt64) document.FieldType {
	switch dataType {
	case "USER-DEFINED":
		ft := document.FieldType{Name: udtName}
		if udtNs != tableNs && udtNs != "pg_catalog" {
			ft.Namespace = udtNs
		}
		return ft
	case "ARRAY":
		return document.FieldType{Name: strings.TrimPrefix(udtName, "_") + "[]"}
	case "character varying", "character", "bit", "bit varying":
		if length.Valid {
			return document.FieldType{Name: dataType, Args: fmt.Sprint(length.Int64)}
		}
	case "numeric", "decimal":
		if precision.Valid && scale.Valid {
			return document.FieldType{Name: dataType, Args: fmt.Sprintf("%d, %d", precision.Int64, scale.Int64)}
		}
		if precision.Valid {
			return document.FieldType{Name: dataType, Args: fmt.Sprint(precision.Int64)}
		}
	}
	return document.FieldType{Name: dataType}
}

func (p *PostgreSQLExtractor) extractKeys(ctx context.Context, pt pgTable, t *document.Table) error {
	query := `
        SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
        FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
            ON tc.constraint_name = kcu.constraint_name
            AND tc.table_schema = kcu.table_schema
            AND tc.table_name = kcu.table_name
        WHERE tc.table_schema = $1
            AND tc.table_name = $2
            AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
        ORDER BY tc.constraint_type, tc.constraint_name, kcu.ordinal_position
    `

	rows, err := p.db.QueryContext(ctx, query, pt.ns, pt.name)
	if err != nil {
		return err
	}
	defer rows.Close()

	type key struct {
		name, kind string
		columns    []string
	}
	var keys []*key
	for rows.Next() {
		var name, kind, column string
		if err := rows.Scan(&name, &kind, &column); err != nil {
			return err
		}
		if n := len(keys); n == 0 || keys[n-1].name != name {
			keys = append(keys, &key{name: name, kind: kind})
		}
		k := keys[len(keys)-1]
		k.columns = append(k.columns, column)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range keys {
		applyKeys(t, k.name, k.columns, k.kind == "PRIMARY KEY", k.kind == "UNIQUE")
	}
	return nil
}

// extractIndexes reads indexes that do not back a constraint.
func (p *PostgreSQLExtractor) extractIndexes(ctx context.Context, pt pgTable, t *document.Table) error {
	query := `
        SELECT i.relname, am.amname, ix.indisunique, array_agg(COALESCE(a.attname, '') ORDER BY k.ord)
        FROM pg_index ix
        JOIN pg_class tbl ON tbl.oid = ix.indrelid
        JOIN pg_namespace n ON n.oid = tbl.relnamespace
        JOIN pg_class i ON i.oid = ix.indexrelid
        JOIN pg_am am ON am.oid = i.relam
        CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
        LEFT JOIN pg_attribute a ON a.attrelid = tbl.oid AND a.attnum = k.attnum
        WHERE n.nspname = $1 AND tbl.relname = $2
            AND NOT ix.indisprimary
            AND NOT EXISTS (SELECT 1 FROM pg_constraint c WHERE c.conindid = ix.indexrelid)
        GROUP BY i.relname, am.amname, ix.indisunique
        ORDER BY i.relname
    `

	rows, err := p.db.QueryContext(ctx, query, pt.ns, pt.name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, method string
			unique       bool
			columns      []string
		)
		if err := rows.Scan(&name, &method, &unique, pq.Array(&columns)); err != nil {
			return err
		}

		idx := &document.Index{Name: name, Unique: unique}
		if method != "btree" {
			idx.Type = method
		}
		for _, c := range columns {
			if c == "" {
				// expression key; the catalog only exposes it as attnum 0
				idx.Columns = append(idx.Columns, document.IndexColumn{Value: "expression", Expression: true})
				continue
			}
			idx.Columns = append(idx.Columns, document.IndexColumn{Value: c})
		}
		t.Indexes = append(t.Indexes, idx)
	}

	return rows.Err()
}

func (p *PostgreSQLExtractor) extractEnums(ctx context.Context, doc *document.Document, f filter) error {
	query := `
        SELECT n.nspname, t.typname, array_agg(e.enumlabel ORDER BY e.enumsortorder)
        FROM pg_type t
        JOIN pg_enum e ON e.enumtypid = t.oid
        JOIN pg_namespace n ON n.oid = t.typnamespace
        GROUP BY n.nspname, t.typname
        ORDER BY n.nspname, t.typname
    `

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			nsName string
			e      document.Enum
		)
		if err := rows.Scan(&nsName, &e.Name, pq.Array(&e.Values)); err != nil {
			return err
		}
		if !f.namespace(nsName) {
			continue
		}
		ns := doc.Namespace(nsName)
		ns.Enums = append(ns.Enums, &e)
	}

	return rows.Err()
}

// extractForeignKeys reads every foreign key constraint with its column
// pairs in key order.
func (p *PostgreSQLExtractor) extractForeignKeys(ctx context.Context) ([]foreignKey, error) {
	query := `
        SELECT
            con.conname,
            ns.nspname,
            cl.relname,
            a.attname,
            fns.nspname,
            fcl.relname,
            fa.attname,
            con.confupdtype,
            con.confdeltype
        FROM pg_constraint con
        JOIN pg_class cl ON cl.oid = con.conrelid
        JOIN pg_namespace ns ON ns.oid = cl.relnamespace
        JOIN pg_class fcl ON fcl.oid = con.confrelid
        JOIN pg_namespace fns ON fns.oid = fcl.relnamespace
        CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
        JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
        JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
        WHERE con.contype = 'f'
        ORDER BY ns.nspname, cl.relname, con.conname, k.ord
    `

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		var (
			name, ns, table, column    string
			refNs, refTable, refColumn string
			updateAction, deleteAction string
		)
		if err := rows.Scan(&name, &ns, &table, &column, &refNs, &refTable, &refColumn, &updateAction, &deleteAction); err != nil {
			return nil, err
		}

		n := len(fks)
		if n == 0 || fks[n-1].name != name || fks[n-1].ns != ns || fks[n-1].table != table {
			fks = append(fks, foreignKey{
				name:     name,
				ns:       ns,
				table:    table,
				refNs:    refNs,
				refTable: refTable,
				onUpdate: pgAction(updateAction),
				onDelete: pgAction(deleteAction),
			})
		}
		fk := &fks[len(fks)-1]
		fk.columns = append(fk.columns, column)
		fk.refColumns = append(fk.refColumns, refColumn)
	}

	return fks, rows.Err()
}

// pgAction maps pg_constraint action codes to their SQL names.
func pgAction(code string) string {
	switch code {
	case "r":
		return "restrict"
	case "c":
		return "cascade"
	case "n":
		return "set null"
	case "d":
		return "set default"
	}
	return ""
}
