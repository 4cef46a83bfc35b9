package core

import "sort"

// Equal reports field-wise equality of two columns.
func (c *Column) Equal(o *Column) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Name != o.Name || c.Nullable != o.Nullable || c.Kind != o.Kind ||
		c.Size != o.Size || c.Scale != o.Scale ||
		c.DefaultKind != o.DefaultKind || c.DefaultValue != o.DefaultValue ||
		c.TypeRestriction != o.TypeRestriction || c.ReferenceSystem != o.ReferenceSystem ||
		c.DbTypeDef != o.DbTypeDef {
		return false
	}
	if !c.Flags.Equal(o.Flags) {
		return false
	}
	if len(c.EnumerationValues) != len(o.EnumerationValues) {
		return false
	}
	for i := range c.EnumerationValues {
		if c.EnumerationValues[i] != o.EnumerationValues[i] {
			return false
		}
	}
	return true
}

// Equal reports field-wise equality of two keys, including column order.
func (k *Key) Equal(o *Key) bool {
	if k == nil || o == nil {
		return k == o
	}
	if k.Name != o.Name || k.Kind != o.Kind || len(k.Columns) != len(o.Columns) {
		return false
	}
	for i := range k.Columns {
		if k.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// Equal reports field-wise equality of two tables, including column
// order (column order is semantic; key order is not, so keys are
// compared as a (kind, name)-sorted sequence).
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Name != o.Name || t.PrimaryKeyKind != o.PrimaryKeyKind {
		return false
	}
	if len(t.Columns) != len(o.Columns) || len(t.PrimaryKeyColumns) != len(o.PrimaryKeyColumns) || len(t.Keys) != len(o.Keys) {
		return false
	}
	for i := range t.Columns {
		if !t.Columns[i].Equal(o.Columns[i]) {
			return false
		}
	}
	for i := range t.PrimaryKeyColumns {
		if t.PrimaryKeyColumns[i] != o.PrimaryKeyColumns[i] {
			return false
		}
	}
	tk, ok := SortedKeys(t.Keys), SortedKeys(o.Keys)
	for i := range tk {
		if !tk[i].Equal(ok[i]) {
			return false
		}
	}
	return true
}

// Equal reports field-wise equality of two databases, independent of
// table order (tables are compared as a name-sorted sequence).
func (db *Database) Equal(o *Database) bool {
	if db == nil || o == nil {
		return db == o
	}
	if len(db.Tables) != len(o.Tables) {
		return false
	}
	a, b := SortedTables(db.Tables), SortedTables(o.Tables)
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// SortedTables returns a copy of tables ordered by name.
func SortedTables(tables []*Table) []*Table {
	out := make([]*Table, len(tables))
	copy(out, tables)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SortedKeys returns a copy of keys ordered by (kind, name); this
// tie-break rule is load-bearing for the schema-match engine's lockstep
// walk over two tables' keys.
func SortedKeys(keys []*Key) []*Key {
	out := make([]*Key, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}
