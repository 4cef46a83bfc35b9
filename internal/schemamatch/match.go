// Package schemamatch implements the schema-match engine (C7): a pure
// comparison of two schemas that either succeeds or fails fast with a
// mismatch message, whose exact wording is part of the public contract.
package schemamatch

import (
	"fmt"

	"kitchensync/internal/core"
)

// MismatchError reports a structural disagreement between the "from"
// and "to" schemas. Its Error() text is user-visible and stable; callers
// that need the structured reason should inspect Reason instead of
// parsing the message.
type MismatchError struct {
	Reason string
}

func (e *MismatchError) Error() string { return e.Reason }

func mismatch(format string, args ...any) *MismatchError {
	return &MismatchError{Reason: fmt.Sprintf(format, args...)}
}

// Filter narrows which tables participate in the comparison (and, by
// extension, in synchronization). An empty Only means "no restriction".
type Filter struct {
	Ignore map[string]bool
	Only   map[string]bool
}

func (f Filter) included(name string) bool {
	if f.Ignore[name] {
		return false
	}
	if len(f.Only) > 0 && !f.Only[name] {
		return false
	}
	return true
}

// CheckSchemaMatch compares from and to table-by-table, column-by-column,
// and key-by-key, per §4.7. It returns nil on a full match, or the first
// *MismatchError encountered while walking in the fixed order: tables,
// then (within each matched table) columns, primary key, keys.
func CheckSchemaMatch(from, to *core.Database, filter Filter) error {
	fromTables := filterTables(core.SortedTables(from.Tables), filter)
	toTables := filterTables(core.SortedTables(to.Tables), filter)

	i, j := 0, 0
	for i < len(fromTables) {
		ft := fromTables[i]
		if j >= len(toTables) || toTables[j].Name > ft.Name {
			return mismatch("Missing table %s", ft.Name)
		}
		if toTables[j].Name < ft.Name {
			return mismatch("Extra table %s", toTables[j].Name)
		}
		if err := checkTableMatch(ft, toTables[j]); err != nil {
			return err
		}
		i++
		j++
	}
	if j < len(toTables) {
		return mismatch("Extra table %s", toTables[j].Name)
	}
	return nil
}

func filterTables(tables []*core.Table, f Filter) []*core.Table {
	if len(f.Ignore) == 0 && len(f.Only) == 0 {
		return tables
	}
	out := make([]*core.Table, 0, len(tables))
	for _, t := range tables {
		if f.included(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// checkTableMatch compares one pair of same-named tables: columns (order
// matters), then primary key, then keys.
func checkTableMatch(from, to *core.Table) error {
	if err := checkColumnsMatch(from, to); err != nil {
		return err
	}
	if err := checkPrimaryKeyMatch(from, to); err != nil {
		return err
	}
	return checkKeysMatch(from, to)
}

// checkColumnsMatch walks both column lists with two cursors, the
// from-cursor advancing every iteration, per §4.7's four-way rule.
func checkColumnsMatch(from, to *core.Table) error {
	i, j := 0, 0
	for i < len(from.Columns) {
		fc := from.Columns[i]
		if j < len(to.Columns) && to.Columns[j].Name == fc.Name {
			if err := checkColumnMatch(from, fc, to.Columns[j]); err != nil {
				return err
			}
			i++
			j++
			continue
		}

		if !nameAppearsAfter(to.Columns, j, fc.Name) {
			return mismatch("Missing column %s on table %s", fc.Name, from.Name)
		}
		if j < len(to.Columns) && !nameAppearsAfter(from.Columns, i, to.Columns[j].Name) {
			return mismatch("Extra column %s on table %s", to.Columns[j].Name, from.Name)
		}
		return mismatch("Misordered column %s on table %s, should have %s first", fc.Name, from.Name, to.Columns[j].Name)
	}
	if j < len(to.Columns) {
		return mismatch("Extra column %s on table %s", to.Columns[j].Name, from.Name)
	}
	return nil
}

func nameAppearsAfter(cols []*core.Column, from int, name string) bool {
	for _, c := range cols[from:] {
		if c.Name == name {
			return true
		}
	}
	return false
}

// checkColumnMatch currently verifies name equality only (§4.7, §9 open
// question (a)): other attribute differences are not yet surfaced as a
// dedicated mismatch message, preserving the documented lenient
// behavior rather than guessing an expanded wording.
func checkColumnMatch(t *core.Table, from, to *core.Column) error {
	if from.Name != to.Name {
		return mismatch("Missing column %s on table %s", from.Name, t.Name)
	}
	return nil
}

func checkPrimaryKeyMatch(from, to *core.Table) error {
	if !columnIndexesEqual(from.PrimaryKeyColumns, to.PrimaryKeyColumns) {
		return mismatch("Primary key mismatch on table %s: %v vs %v",
			from.Name, columnNames(from, from.PrimaryKeyColumns), columnNames(to, to.PrimaryKeyColumns))
	}
	return nil
}

func columnNames(t *core.Table, idx []core.ColumnIndex) []string {
	names := make([]string, len(idx))
	for i, ci := range idx {
		if int(ci) < len(t.Columns) {
			names[i] = t.Columns[ci].Name
		}
	}
	return names
}

func columnIndexesEqual(a, b []core.ColumnIndex) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkKeysMatch sorts both sides by (kind, name) — the tie-break rule
// §4.3 calls load-bearing — and walks in lockstep, keyed on name within
// each kind.
func checkKeysMatch(from, to *core.Table) error {
	fromKeys := core.SortedKeys(from.Keys)
	toKeys := core.SortedKeys(to.Keys)

	i, j := 0, 0
	for i < len(fromKeys) {
		fk := fromKeys[i]
		if j >= len(toKeys) {
			return mismatch("Missing key %s on table %s", fk.Name, from.Name)
		}
		tk := toKeys[j]
		switch {
		case fk.Kind == tk.Kind && fk.Name == tk.Name:
			if fk.Kind != tk.Kind || !columnIndexesEqual(fk.Columns, tk.Columns) {
				return mismatch("Key %s on table %s does not match", fk.Name, from.Name)
			}
			i++
			j++
		case keyLess(tk, fk):
			return mismatch("Extra key %s on table %s", tk.Name, from.Name)
		default:
			return mismatch("Missing key %s on table %s", fk.Name, from.Name)
		}
	}
	if j < len(toKeys) {
		return mismatch("Extra key %s on table %s", toKeys[j].Name, from.Name)
	}
	return nil
}

func keyLess(a, b *core.Key) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Name < b.Name
}
