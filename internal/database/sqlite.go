package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"erdlive/internal/document"
	"erdlive/pkg/config"
)

// SQLiteExtractor reads the main database. SQLite has no schema namespaces,
// so every table lands in the default namespace.
type SQLiteExtractor struct {
	db *sql.DB
}

type sqliteTable struct {
	name, kind string
	sqlDef     string
}

func (s *SQLiteExtractor) ExtractDocument(ctx context.Context, cfg config.SchemaConfig) (*document.Document, error) {
	f := filter{cfg: cfg}
	doc := &document.Document{}
	if !f.namespace(document.DefaultNamespace) {
		return doc, nil
	}

	tables, err := s.listTables(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	ns := doc.Namespace(document.DefaultNamespace)
	extracted := make(tableSet)
	for _, st := range tables {
		t := &document.Table{Name: st.name}
		if st.kind == "view" {
			t.Note = "view"
		}

		pk, err := s.extractColumns(ctx, st, t)
		if err != nil {
			return nil, fmt.Errorf("failed to extract columns of %s: %w", st.name, err)
		}
		if len(pk) > 0 {
			applyKeys(t, "", pk, true, false)
		}
		if st.kind == "table" {
			if err := s.extractIndexes(ctx, st, t); err != nil {
				return nil, fmt.Errorf("failed to extract indexes of %s: %w", st.name, err)
			}
		}

		ns.Tables = append(ns.Tables, t)
		extracted.add(document.DefaultNamespace, t)
	}

	var fks []foreignKey
	for _, st := range tables {
		if st.kind != "table" {
			continue
		}
		tableFKs, err := s.extractForeignKeys(ctx, st, extracted)
		if err != nil {
			return nil, fmt.Errorf("failed to extract foreign keys of %s: %w", st.name, err)
		}
		fks = append(fks, tableFKs...)
	}
	addForeignKeys(doc, extracted, fks)

	return doc, nil
}

func (s *SQLiteExtractor) listTables(ctx context.Context, f filter) ([]sqliteTable, error) {
	query := `
        SELECT name, type, COALESCE(sql, '')
        FROM sqlite_master
        WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
        ORDER BY name
    `

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []sqliteTable
	for rows.Next() {
		var t sqliteTable
		if err := rows.Scan(&t.name, &t.kind, &t.sqlDef); err != nil {
			return nil, err
		}
		if t.kind == "view" && !f.cfg.IncludeViews {
			continue
		}
		if !f.table(document.DefaultNamespace, t.name) {
			continue
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

// extractColumns fills t's fields and returns the primary key columns in key
// order.
func (s *SQLiteExtractor) extractColumns(ctx context.Context, st sqliteTable, t *document.Table) ([]string, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdent(st.name))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pkByPos := make(map[int]string)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, dataType   string
			defaultValue     sql.NullString
		)

		if err := rows.Scan(
			&cid,
			&name,
			&dataType,
			&notNull,
			&defaultValue,
			&pk,
		); err != nil {
			return nil, err
		}

		field := &document.Field{
			Name:    name,
			Type:    document.ParseFieldType(strings.ToLower(dataType)),
			NotNull: notNull == 1,
		}
		if field.Type.Name == "" {
			field.Type.Name = "blob"
		}
		if defaultValue.Valid {
			field.Default, _ = parseDefault(defaultValue.String)
		}
		if pk > 0 {
			pkByPos[pk] = name
			if strings.EqualFold(dataType, "integer") && strings.Contains(strings.ToUpper(st.sqlDef), "AUTOINCREMENT") {
				field.Increment = true
			}
		}

		t.Fields = append(t.Fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pks := make([]string, 0, len(pkByPos))
	for i := 1; i <= len(pkByPos); i++ {
		pks = append(pks, pkByPos[i])
	}
	return pks, nil
}

func (s *SQLiteExtractor) extractIndexes(ctx context.Context, st sqliteTable, t *document.Table) error {
	type indexInfo struct {
		name   string
		unique bool
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteSQLiteIdent(st.name)))
	if err != nil {
		return err
	}
	var indexes []indexInfo
	for rows.Next() {
		var (
			seq, unique, partial int
			name, origin         string
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return err
		}
		// Primary keys were already read from table_info.
		if origin == "pk" {
			continue
		}
		indexes = append(indexes, indexInfo{name: name, unique: unique == 1})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, info := range indexes {
		columns, err := s.indexColumns(ctx, info.name)
		if err != nil {
			return err
		}
		if info.unique && len(columns) == 1 && !columns[0].Expression {
			applyKeys(t, info.name, []string{columns[0].Value}, false, true)
			continue
		}
		idx := &document.Index{Unique: info.unique, Columns: columns}
		if !strings.HasPrefix(info.name, "sqlite_autoindex_") {
			idx.Name = info.name
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return nil
}

func (s *SQLiteExtractor) indexColumns(ctx context.Context, index string) ([]document.IndexColumn, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteSQLiteIdent(index)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []document.IndexColumn
	for rows.Next() {
		var (
			seqno, cid int
			name       sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if !name.Valid {
			columns = append(columns, document.IndexColumn{Value: "expression", Expression: true})
			continue
		}
		columns = append(columns, document.IndexColumn{Value: name.String})
	}
	return columns, rows.Err()
}

// extractForeignKeys groups foreign_key_list rows by constraint id. A key
// that omits the referenced columns points at the parent's primary key.
func (s *SQLiteExtractor) extractForeignKeys(ctx context.Context, st sqliteTable, extracted tableSet) ([]foreignKey, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteSQLiteIdent(st.name))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []foreignKey
	lastID := -1
	for rows.Next() {
		var (
			id, seq                   int
			refTable, column          string
			refColumn                 sql.NullString
			onUpdate, onDelete, match string
		)

		if err := rows.Scan(
			&id,
			&seq,
			&refTable,
			&column,
			&refColumn,
			&onUpdate,
			&onDelete,
			&match,
		); err != nil {
			return nil, err
		}

		if id != lastID {
			lastID = id
			fks = append(fks, foreignKey{
				name:     fmt.Sprintf("fk_%s_%d", st.name, id),
				ns:       document.DefaultNamespace,
				table:    st.name,
				refNs:    document.DefaultNamespace,
				refTable: refTable,
				onUpdate: referentialAction(onUpdate),
				onDelete: referentialAction(onDelete),
			})
		}
		fk := &fks[len(fks)-1]
		fk.columns = append(fk.columns, column)
		if refColumn.Valid {
			fk.refColumns = append(fk.refColumns, refColumn.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range fks {
		if len(fks[i].refColumns) == 0 {
			fks[i].refColumns = primaryKeyColumns(extracted.get(document.DefaultNamespace, fks[i].refTable))
		}
	}
	return fks, nil
}

func primaryKeyColumns(t *document.Table) []string {
	if t == nil {
		return nil
	}
	for _, idx := range t.Indexes {
		if idx.PK {
			var cols []string
			for _, c := range idx.Columns {
				cols = append(cols, c.Value)
			}
			return cols
		}
	}
	for _, f := range t.Fields {
		if f.PK {
			return []string{f.Name}
		}
	}
	return nil
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
