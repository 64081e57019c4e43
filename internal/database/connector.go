// Package database reads a live database's tables, columns, keys, indexes,
// enums and foreign keys into a schema document.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"erdlive/internal/document"
	"erdlive/pkg/config"
)

type Connector struct {
	db     *sql.DB
	driver string
}

type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, cfg config.SchemaConfig) (*document.Document, error)
}

func NewConnector(ctx context.Context, databaseURL string) (*Connector, error) {
	driver, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewConnectorFromDB(db, driver), nil
}

// NewConnectorFromDB wraps an already open handle. driver is "postgres" or
// "sqlite3".
func NewConnectorFromDB(db *sql.DB, driver string) *Connector {
	return &Connector{db: db, driver: driver}
}

func (c *Connector) Close() error {
	return c.db.Close()
}

func (c *Connector) Driver() string {
	return c.driver
}

func (c *Connector) ExtractDocument(ctx context.Context, cfg config.SchemaConfig) (*document.Document, error) {
	var extractor DocumentExtractor

	switch c.driver {
	case "postgres":
		extractor = &PostgreSQLExtractor{db: c.db}
	case "sqlite3":
		extractor = &SQLiteExtractor{db: c.db}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.driver)
	}

	return extractor.ExtractDocument(ctx, cfg)
}

func ParseDatabaseURL(databaseURL string) (driver, dsn string, err error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", databaseURL, nil
	case "sqlite", "sqlite3":
		dsn = strings.TrimPrefix(databaseURL, u.Scheme+"://")
		if dsn == "" {
			return "", "", fmt.Errorf("sqlite URL %q has no path", databaseURL)
		}
		return "sqlite3", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s", u.Scheme)
	}
}

// filter applies the include, exclude and namespace lists. Table entries
// match either the bare or the namespace-qualified name.
type filter struct {
	cfg config.SchemaConfig
}

func (f filter) namespace(ns string) bool {
	return len(f.cfg.Namespaces) == 0 || contains(f.cfg.Namespaces, ns)
}

func (f filter) table(ns, name string) bool {
	if !f.namespace(ns) {
		return false
	}
	qualified := ns + "." + name
	if len(f.cfg.IncludeTables) > 0 && !contains(f.cfg.IncludeTables, name) && !contains(f.cfg.IncludeTables, qualified) {
		return false
	}
	return !contains(f.cfg.ExcludeTables, name) && !contains(f.cfg.ExcludeTables, qualified)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// tableSet records which tables made it through the filter, so foreign keys
// to filtered tables can be dropped.
type tableSet map[string]*document.Table

func (s tableSet) key(ns, name string) string {
	return ns + "." + name
}

func (s tableSet) add(ns string, t *document.Table) {
	s[s.key(ns, t.Name)] = t
}

func (s tableSet) get(ns, name string) *document.Table {
	return s[s.key(ns, name)]
}

// foreignKey is one composite foreign key constraint.
type foreignKey struct {
	name            string
	ns, table       string
	columns         []string
	refNs, refTable string
	refColumns      []string
	onDelete        string
	onUpdate        string
}

func (fk foreignKey) ref() *document.Ref {
	return &document.Ref{
		Name: fk.name,
		Endpoints: [2]document.Endpoint{
			{Namespace: fk.ns, Table: fk.table, Columns: fk.columns, Relation: document.RelationMany},
			{Namespace: fk.refNs, Table: fk.refTable, Columns: fk.refColumns, Relation: document.RelationOne},
		},
		OnDelete: fk.onDelete,
		OnUpdate: fk.onUpdate,
	}
}

// addForeignKeys attaches each key whose both tables were extracted.
func addForeignKeys(doc *document.Document, tables tableSet, fks []foreignKey) {
	for _, fk := range fks {
		if tables.get(fk.ns, fk.table) == nil || tables.get(fk.refNs, fk.refTable) == nil {
			continue
		}
		ns := doc.Namespace(fk.ns)
		ns.Refs = append(ns.Refs, fk.ref())
	}
}

// referentialAction normalizes an ON DELETE/ON UPDATE rule. The default
// "no action" is dropped.
func referentialAction(rule string) string {
	rule = strings.ToLower(strings.TrimSpace(rule))
	if rule == "" || rule == "no action" {
		return ""
	}
	return rule
}

// applyKeys marks single-column primary and unique keys on the fields and
// records composite ones as indexes.
func applyKeys(t *document.Table, name string, columns []string, pk, unique bool) {
	if len(columns) == 1 {
		for _, f := range t.Fields {
			if f.Name != columns[0] {
				continue
			}
			if pk {
				f.PK = true
			} else if unique {
				f.Unique = true
			}
			return
		}
		return
	}
	idx := &document.Index{Name: name, PK: pk, Unique: unique && !pk}
	for _, c := range columns {
		idx.Columns = append(idx.Columns, document.IndexColumn{Value: c})
	}
	t.Indexes = append(t.Indexes, idx)
}
