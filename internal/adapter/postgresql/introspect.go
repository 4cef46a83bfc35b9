package postgresql

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"kitchensync/internal/adapter"
	"kitchensync/internal/core"
)

const tablesQuery = `
	SELECT c.relname
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relkind = 'r' AND n.nspname = ANY(current_schemas(false))
	ORDER BY pg_relation_size(c.oid) DESC, c.relname ASC
`

const columnsQuery = `
	SELECT a.attname,
	       format_type(a.atttypid, a.atttypmod),
	       a.attnotnull,
	       a.atthasdef,
	       COALESCE(pg_get_expr(d.adbin, d.adrelid), '')
	FROM pg_attribute a
	JOIN pg_class c ON c.oid = a.attrelid
	LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE c.relname = $1 AND a.attnum > 0 AND NOT a.attisdropped
	ORDER BY a.attnum
`

const primaryKeyQuery = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name AND kcu.table_name = tc.table_name
	WHERE tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'
	ORDER BY kcu.ordinal_position
`

const otherKeysQuery = `
	SELECT ic.relname AS index_name, ix.indisunique,
	       array_agg(a.attname ORDER BY k.ord)
	FROM pg_index ix
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_class ic ON ic.oid = ix.indexrelid
	JOIN unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
	WHERE t.relname = $1 AND NOT ix.indisprimary
	GROUP BY ic.relname, ix.indisunique
	ORDER BY ix.indisunique DESC, ic.relname ASC
`

// DatabaseSchema introspects every base table in the connection's search
// path, in the largest-first order the §8 testable property requires.
func (a *Adapter) DatabaseSchema(ctx context.Context) (*core.Database, error) {
	db := &core.Database{}
	var names []string
	if err := a.Query(ctx, tablesQuery, func(cells []any) error {
		names = append(names, toString(cells[0]))
		return nil
	}); err != nil {
		return nil, err
	}

	for _, name := range names {
		t, err := a.introspectTable(ctx, name)
		if err != nil {
			return nil, err
		}
		db.Tables = append(db.Tables, t)
	}
	if err := db.Validate(); err != nil {
		return nil, adapter.NewDatabaseError("database_schema", "", err)
	}
	return db, nil
}

func (a *Adapter) introspectTable(ctx context.Context, name string) (*core.Table, error) {
	t := &core.Table{Name: name}

	if err := a.Query(ctx, rewriteParam(columnsQuery, name), func(cells []any) error {
		col := &core.Column{
			Name:     toString(cells[0]),
			Nullable: !toBool(cells[2]),
		}
		parseFormatType(col, toString(cells[1]))
		if toBool(cells[3]) {
			parseDefaultExpr(col, toString(cells[4]))
		} else {
			col.DefaultKind = core.NoDefault
		}
		t.Columns = append(t.Columns, col)
		return nil
	}); err != nil {
		return nil, err
	}

	var pkNames []string
	if err := a.Query(ctx, rewriteParam(primaryKeyQuery, name), func(cells []any) error {
		pkNames = append(pkNames, toString(cells[0]))
		return nil
	}); err != nil {
		return nil, err
	}
	if len(pkNames) > 0 {
		t.PrimaryKeyKind = core.ExplicitPrimaryKey
		for _, n := range pkNames {
			if idx, ok := t.IndexOfColumn(n); ok {
				t.PrimaryKeyColumns = append(t.PrimaryKeyColumns, idx)
			}
		}
	} else {
		t.PrimaryKeyKind = core.NoAvailableKey
	}

	if err := a.Query(ctx, rewriteParam(otherKeysQuery, name), func(cells []any) error {
		key := &core.Key{
			Name: toString(cells[0]),
			Kind: core.KeyKindStandard,
		}
		if toBool(cells[1]) {
			key.Kind = core.KeyKindUnique
		}
		for _, colName := range toStringSlice(cells[2]) {
			if idx, ok := t.IndexOfColumn(colName); ok {
				key.Columns = append(key.Columns, idx)
			}
		}
		t.Keys = append(t.Keys, key)
		return nil
	}); err != nil {
		return nil, err
	}

	return t, nil
}

// rewriteParam substitutes the $1 placeholder with an escaped string
// literal: the backend adapter contract's query(sql) takes a bare
// statement, not a parameterized one, so table names are inlined here
// rather than bound.
func rewriteParam(query, name string) string {
	escaped := "'" + strings.ReplaceAll(name, "'", "''") + "'"
	return strings.ReplaceAll(query, "$1", escaped)
}

var (
	varcharRe = regexp.MustCompile(`^character varying(?:\((\d+)\))?$`)
	charRe    = regexp.MustCompile(`^character(?:\((\d+)\))?$`)
	numericRe = regexp.MustCompile(`^numeric(?:\((\d+),(\d+)\))?$`)
	geomRe    = regexp.MustCompile(`^geometry(?:\(([A-Za-z]+)(?:,(\d+))?\))?$`)
)

// parseFormatType classifies PostgreSQL's format_type() output into the
// canonical ColumnKind taxonomy, per §4.5.
func parseFormatType(col *core.Column, t string) {
	t = strings.TrimSpace(t)
	switch {
	case t == "boolean":
		col.Kind = core.ColumnKindBool
	case t == "smallint":
		col.Kind, col.Size = core.ColumnKindSignedInt, 2
	case t == "integer":
		col.Kind, col.Size = core.ColumnKindSignedInt, 4
	case t == "bigint":
		col.Kind, col.Size = core.ColumnKindSignedInt, 8
	case t == "real":
		col.Kind, col.Size = core.ColumnKindReal, 4
	case t == "double precision":
		col.Kind, col.Size = core.ColumnKindReal, 8
	case numericRe.MatchString(t):
		m := numericRe.FindStringSubmatch(t)
		col.Kind = core.ColumnKindDecimal
		if m[1] != "" {
			col.Size, _ = strconv.Atoi(m[1])
			col.Scale, _ = strconv.Atoi(m[2])
		}
	case varcharRe.MatchString(t):
		m := varcharRe.FindStringSubmatch(t)
		col.Kind = core.ColumnKindVarChar
		if m[1] != "" {
			col.Size, _ = strconv.Atoi(m[1])
		}
	case charRe.MatchString(t):
		m := charRe.FindStringSubmatch(t)
		col.Kind = core.ColumnKindFixedChar
		col.Size = 1
		if m[1] != "" {
			col.Size, _ = strconv.Atoi(m[1])
		}
	case t == "text":
		col.Kind = core.ColumnKindText
	case t == "bytea":
		col.Kind = core.ColumnKindBlob
	case t == "uuid":
		col.Kind = core.ColumnKindUuid
	case t == "json" || t == "jsonb":
		col.Kind = core.ColumnKindJson
	case t == "date":
		col.Kind = core.ColumnKindDate
	case strings.HasPrefix(t, "time"):
		flags := core.NewColumnFlags()
		if strings.Contains(t, "with time zone") {
			flags.Set(core.FlagTimeZone)
		}
		col.Flags = flags
		if strings.HasPrefix(t, "timestamp") {
			col.Kind = core.ColumnKindDateTime
		} else {
			col.Kind = core.ColumnKindTime
		}
	case geomRe.MatchString(t):
		m := geomRe.FindStringSubmatch(t)
		col.Kind = core.ColumnKindSpatial
		col.TypeRestriction = strings.ToLower(m[1])
		col.ReferenceSystem = m[2]
	default:
		col.Kind = core.ColumnKindUnknown
		col.DbTypeDef = t
	}
	if col.Flags == nil {
		col.Flags = core.NewColumnFlags()
	}
}

var (
	nextvalRe   = regexp.MustCompile(`^nextval\('[^']*'::regclass\)$`)
	nullCastRe  = regexp.MustCompile(`^NULL::[\w ]+$`)
	literalRe   = regexp.MustCompile(`^'((?:[^'\\]|\\.|'')*)'(?:::[\w ]+)?$`)
	zeroArgIdRe = regexp.MustCompile(`^"(current_schema|current_user|session_user)"\(\)$`)
)

// parseDefaultExpr canonicalizes pg_get_expr's textual default
// expression per §4.5, including the corrected fall-through: each case
// below returns (rather than falls through to a catch-all Expression),
// fixing the source's missing break before `default:` noted in §9(b).
func parseDefaultExpr(col *core.Column, expr string) {
	expr = strings.TrimSpace(expr)
	switch {
	case nextvalRe.MatchString(expr):
		col.DefaultKind = core.Sequence
		col.DefaultValue = expr
		return
	case nullCastRe.MatchString(expr):
		col.DefaultKind = core.Expression
		col.DefaultValue = "NULL"
		return
	case expr == "now()":
		col.DefaultKind = core.Expression
		col.DefaultValue = "CURRENT_TIMESTAMP"
		return
	case expr == "('now'::text)::date":
		col.DefaultKind = core.Expression
		col.DefaultValue = "CURRENT_DATE"
		return
	case zeroArgIdRe.MatchString(expr):
		col.DefaultKind = core.Expression
		col.DefaultValue = zeroArgIdRe.FindStringSubmatch(expr)[1] + "()"
		return
	case literalRe.MatchString(expr):
		raw := literalRe.FindStringSubmatch(expr)[1]
		col.DefaultKind = core.Literal
		col.DefaultValue = strings.NewReplacer(`\\`, `\`, `\'`, `'`, `''`, `'`).Replace(raw)
		return
	default:
		col.DefaultKind = core.Expression
		col.DefaultValue = expr
	}
}

// ConvertUnsupportedSchema normalizes a peer schema that did not
// originate from PostgreSQL, per §4.5.
func (a *Adapter) ConvertUnsupportedSchema(db *core.Database) {
	for _, t := range db.Tables {
		for _, c := range t.Columns {
			if c.Kind == core.ColumnKindUnsignedInt {
				c.Kind = core.ColumnKindSignedInt
			}
			if c.Kind == core.ColumnKindSignedInt {
				switch c.Size {
				case 1:
					c.Size = 2
				case 3:
					c.Size = 4
				}
			}
			if c.Kind == core.ColumnKindText || c.Kind == core.ColumnKindBlob {
				c.Size = 0
			}
		}
		for _, k := range t.Keys {
			if len(k.Name) > 63 {
				k.Name = k.Name[:63]
			}
		}
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return ""
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toStringSlice(v any) []string {
	if arr, ok := v.([]string); ok {
		return arr
	}
	if arr, ok := v.([]any); ok {
		out := make([]string, len(arr))
		for i, e := range arr {
			out[i] = toString(e)
		}
		return out
	}
	return nil
}
