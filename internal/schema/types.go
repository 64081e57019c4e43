package schema

// DefaultNamespace is the namespace a table lives in when the source text
// does not name one.
const DefaultNamespace = "public"

// DefaultKind tags how a column default must be rendered.
type DefaultKind string

const (
	DefaultExpression DefaultKind = "expression"
	DefaultString     DefaultKind = "string"
	DefaultNumber     DefaultKind = "number"
	DefaultBoolean    DefaultKind = "boolean"
	DefaultNull       DefaultKind = "null"
)

// Default is a column default value. Value holds a string for expression and
// string kinds, a float64 for numbers, a bool for booleans and nil for null.
type Default struct {
	Value any         `json:"value"`
	Kind  DefaultKind `json:"kind"`
}

type ForeignKey struct {
	Namespace string `json:"namespace"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	OnDelete  string `json:"on_delete,omitempty"`
	OnUpdate  string `json:"on_update,omitempty"`
}

type Column struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	TypeDetail  string       `json:"type_detail,omitempty"`
	Nullable    bool         `json:"nullable"`
	PrimaryKey  bool         `json:"primary_key"`
	Unique      bool         `json:"unique"`
	Increment   bool         `json:"increment"`
	Default     *Default     `json:"default,omitempty"`
	Note        string       `json:"note,omitempty"`
	EnumValues  []string     `json:"enum_values,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Indexed     bool         `json:"indexed"`
	IndexType   string       `json:"index_type,omitempty"`
}

// FullType returns the type name with its detail suffix, e.g. varchar(255).
func (c Column) FullType() string {
	if c.TypeDetail == "" {
		return c.Type
	}
	return c.Type + "(" + c.TypeDetail + ")"
}

// MarkPrimaryKey flags the column as primary key, which always implies
// unique and not null.
func (c *Column) MarkPrimaryKey() {
	c.PrimaryKey = true
	c.Unique = true
	c.Nullable = false
}

type Table struct {
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
	Alias     string   `json:"alias,omitempty"`
	Note      string   `json:"note,omitempty"`
	Columns   []Column `json:"columns"`
}

// ReferenceName is the alias when present, else the declared name.
func (t Table) ReferenceName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// Label is the display name, qualified unless the namespace is the default.
func (t Table) Label() string {
	if t.Namespace == "" || t.Namespace == DefaultNamespace {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Key identifies the table's diagram node.
func (t Table) Key() string {
	return t.Namespace + "." + t.ReferenceName()
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Endpoint is one side of a resolved relationship. Table is the declared
// table name, never the alias.
type Endpoint struct {
	Namespace string `json:"namespace"`
	Table     string `json:"table"`
	Column    string `json:"column"`
}

func (e Endpoint) String() string {
	return e.Namespace + "." + e.Table + "." + e.Column
}

// Relationship links a parent ("one") column to a child ("many") column.
// Composite references are decomposed into one Relationship per column pair.
type Relationship struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Parent   Endpoint `json:"parent"`
	Child    Endpoint `json:"child"`
	OnDelete string   `json:"on_delete,omitempty"`
	OnUpdate string   `json:"on_update,omitempty"`
}

type Warning struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

func (w Warning) String() string {
	if w.Context == "" {
		return w.Message
	}
	return w.Message + " (" + w.Context + ")"
}

type TransformResult struct {
	Tables        []Table        `json:"tables"`
	Relationships []Relationship `json:"relationships"`
	Warnings      []Warning      `json:"warnings"`
	ExportedText  string         `json:"exported_text"`
}
