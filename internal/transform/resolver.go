package transform

import (
	"fmt"

	"github.com/google/uuid"

	"erdlive/internal/document"
	"erdlive/internal/schema"
)

// relationshipSpace namespaces the name-based relationship ids.
var relationshipSpace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("erdlive.relationship"))

func (r *run) resolveRefs(doc *document.Document) error {
	ordinal := 0
	for _, ns := range doc.Namespaces {
		for _, ref := range ns.Refs {
			if err := r.resolveRef(ref, ns.Name, ordinal); err != nil {
				return err
			}
			ordinal++
		}
	}
	return nil
}

// resolveRef resolves one declared reference into zero or more
// single-column relationships. The endpoint marked "1" is the parent; when
// both or neither are, the second endpoint is.
func (r *run) resolveRef(ref *document.Ref, declNs string, ordinal int) error {
	child, parent := ref.Endpoints[0], ref.Endpoints[1]
	if child.Relation == document.RelationOne && parent.Relation != document.RelationOne {
		child, parent = parent, child
	}
	expr := document.FormatRefExpression(ref)

	pt := r.lookupTable(parent, declNs)
	ct := r.lookupTable(child, declNs)
	if pt == nil || ct == nil {
		r.warn(expr, "unable to resolve reference endpoints")
		return nil
	}

	pairs := max(len(parent.Columns), len(child.Columns))
	if pairs == 0 {
		r.warn(expr, "reference is missing a column name")
		return nil
	}
	for i := 0; i < pairs; i++ {
		pc, cc := columnAt(parent.Columns, i), columnAt(child.Columns, i)
		if pc == "" || cc == "" {
			r.warn(expr, "reference column pair %d is missing a column name", i+1)
			continue
		}
		p := schema.Endpoint{Namespace: pt.Namespace, Table: pt.Name, Column: pc}
		c := schema.Endpoint{Namespace: ct.Namespace, Table: ct.Name, Column: cc}

		if r.columns[columnKey{p.Namespace, p.Table, p.Column}] == nil {
			r.warn(expr, "referenced column %q not found", p.String())
			continue
		}
		childCol := r.columns[columnKey{c.Namespace, c.Table, c.Column}]
		if childCol == nil {
			r.warn(expr, "unable to attach foreign key: column %q not found", c.String())
			continue
		}

		sig := c.String() + "->" + p.String()
		if r.seen[sig] {
			r.warn(expr, "duplicate reference from %q to %q ignored", c.String(), p.String())
			continue
		}
		if r.seen[p.String()+"->"+c.String()] {
			r.warn(expr, "circular reference between %q and %q", c.String(), p.String())
		}
		r.seen[sig] = true

		if len(r.rels) >= r.limits.MaxRelationships {
			return &LimitError{Limit: LimitRelationships, Subject: "schema", Max: r.limits.MaxRelationships, Got: len(r.rels) + 1}
		}

		childCol.ForeignKeys = append(childCol.ForeignKeys, schema.ForeignKey{
			Namespace: p.Namespace,
			Table:     p.Table,
			Column:    p.Column,
			OnDelete:  ref.OnDelete,
			OnUpdate:  ref.OnUpdate,
		})
		r.rels = append(r.rels, schema.Relationship{
			ID:       relationshipID(ordinal, i, c, p),
			Name:     ref.Name,
			Parent:   p,
			Child:    c,
			OnDelete: ref.OnDelete,
			OnUpdate: ref.OnUpdate,
		})
	}
	return nil
}

// lookupTable tries the endpoint's namespace, the declaring namespace and
// the default namespace in that order, then any table with a matching name
// or alias.
func (r *run) lookupTable(ep document.Endpoint, declNs string) *schema.Table {
	var candidates []string
	if ep.Namespace != "" {
		candidates = append(candidates, ep.Namespace)
	}
	candidates = append(candidates, declNs, schema.DefaultNamespace)
	for _, ns := range candidates {
		if t := r.byKey[tableKey{ns, ep.Table}]; t != nil {
			return t
		}
	}
	for _, t := range r.tables {
		if t.Name == ep.Table || t.Alias == ep.Table {
			return t
		}
	}
	return nil
}

// columnAt zips composite column lists; a single column is reused for every
// pair.
func columnAt(cols []string, i int) string {
	switch {
	case len(cols) == 1:
		return cols[0]
	case i < len(cols):
		return cols[i]
	}
	return ""
}

func relationshipID(ordinal, pair int, child, parent schema.Endpoint) string {
	name := fmt.Sprintf("%d/%d/%s/%s", ordinal, pair, child, parent)
	return uuid.NewSHA1(relationshipSpace, []byte(name)).String()
}
