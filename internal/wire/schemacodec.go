package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"kitchensync/internal/core"
)

// schemaPayload adapts a *core.Database to msgpack's struct-tag encoding
// for the "schema" command's reply shape, §6:
//
//	{"tables": [{"name": ..., "columns": [...], "primary_key_columns": [...],
//	  "primary_key_type": ..., "keys": [...]}, ...]}
//
// Enums are written by name, and decode ignores any map key it doesn't
// recognize, so a newer peer's extra fields never break an older one.
type schemaPayload struct {
	Tables []tablePayload `msgpack:"tables"`
}

type tablePayload struct {
	Name              string          `msgpack:"name"`
	Columns           []columnPayload `msgpack:"columns"`
	PrimaryKeyColumns []int           `msgpack:"primary_key_columns"`
	PrimaryKeyKind    string          `msgpack:"primary_key_type"`
	Keys              []keyPayload    `msgpack:"keys"`
}

type columnPayload struct {
	Name              string   `msgpack:"name"`
	Nullable          bool     `msgpack:"nullable"`
	Kind              string   `msgpack:"column_type"`
	Size              int      `msgpack:"size,omitempty"`
	Scale             int      `msgpack:"scale,omitempty"`
	DefaultKind       string   `msgpack:"default_type"`
	DefaultValue      string   `msgpack:"default_value,omitempty"`
	Flags             []string `msgpack:"flags,omitempty"`
	TypeRestriction   string   `msgpack:"type_restriction,omitempty"`
	ReferenceSystem   string   `msgpack:"reference_system,omitempty"`
	EnumerationValues []string `msgpack:"enumeration_values,omitempty"`
	DbTypeDef         string   `msgpack:"db_type_def,omitempty"`
}

type keyPayload struct {
	Name    string `msgpack:"name"`
	Kind    string `msgpack:"key_type"`
	Columns []int  `msgpack:"columns"`
}

// EncodeSchema serializes db as the "schema" command's reply value.
func EncodeSchema(db *core.Database) ([]byte, error) {
	payload := toPayload(db)
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode schema: %w", err)
	}
	return b, nil
}

// WriteSchema writes db as a single reply frame on s.
func (s *Stream) WriteSchema(db *core.Database) error {
	return s.WriteReply(toPayload(db))
}

// DecodeSchema parses a "schema" reply value back into a *core.Database.
func DecodeSchema(b []byte) (*core.Database, error) {
	var payload schemaPayload
	if err := msgpack.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("wire: decode schema: %w", err)
	}
	return fromPayload(payload), nil
}

func toPayload(db *core.Database) schemaPayload {
	out := schemaPayload{Tables: make([]tablePayload, len(db.Tables))}
	for i, t := range db.Tables {
		out.Tables[i] = tablePayload{
			Name:              t.Name,
			Columns:           make([]columnPayload, len(t.Columns)),
			PrimaryKeyColumns: indexesToInts(t.PrimaryKeyColumns),
			PrimaryKeyKind:    string(t.PrimaryKeyKind),
			Keys:              make([]keyPayload, len(t.Keys)),
		}
		for j, c := range t.Columns {
			out.Tables[i].Columns[j] = columnPayload{
				Name:              c.Name,
				Nullable:          c.Nullable,
				Kind:              string(c.Kind),
				Size:              c.Size,
				Scale:             c.Scale,
				DefaultKind:       string(c.DefaultKind),
				DefaultValue:      c.DefaultValue,
				Flags:             c.Flags.Names(),
				TypeRestriction:   c.TypeRestriction,
				ReferenceSystem:   c.ReferenceSystem,
				EnumerationValues: c.EnumerationValues,
				DbTypeDef:         c.DbTypeDef,
			}
		}
		for j, k := range t.Keys {
			out.Tables[i].Keys[j] = keyPayload{
				Name:    k.Name,
				Kind:    string(k.Kind),
				Columns: indexesToInts(k.Columns),
			}
		}
	}
	return out
}

func fromPayload(p schemaPayload) *core.Database {
	db := &core.Database{Tables: make([]*core.Table, len(p.Tables))}
	for i, t := range p.Tables {
		tbl := &core.Table{
			Name:              t.Name,
			Columns:           make([]*core.Column, len(t.Columns)),
			PrimaryKeyColumns: intsToIndexes(t.PrimaryKeyColumns),
			PrimaryKeyKind:    core.PrimaryKeyKind(t.PrimaryKeyKind),
			Keys:              make([]*core.Key, len(t.Keys)),
		}
		for j, c := range t.Columns {
			flags := core.NewColumnFlags()
			for _, name := range c.Flags {
				flags.Set(core.ColumnFlag(name))
			}
			tbl.Columns[j] = &core.Column{
				Name:              c.Name,
				Nullable:          c.Nullable,
				Kind:              core.ColumnKind(c.Kind),
				Size:              c.Size,
				Scale:             c.Scale,
				DefaultKind:       core.DefaultKind(c.DefaultKind),
				DefaultValue:      c.DefaultValue,
				Flags:             flags,
				TypeRestriction:   c.TypeRestriction,
				ReferenceSystem:   c.ReferenceSystem,
				EnumerationValues: c.EnumerationValues,
				DbTypeDef:         c.DbTypeDef,
			}
		}
		for j, k := range t.Keys {
			tbl.Keys[j] = &core.Key{
				Name:    k.Name,
				Kind:    core.KeyKind(k.Kind),
				Columns: intsToIndexes(k.Columns),
			}
		}
		db.Tables[i] = tbl
	}
	return db
}

func indexesToInts(idx []core.ColumnIndex) []int {
	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = int(v)
	}
	return out
}

func intsToIndexes(ints []int) []core.ColumnIndex {
	out := make([]core.ColumnIndex, len(ints))
	for i, v := range ints {
		out[i] = core.ColumnIndex(v)
	}
	return out
}
