package mysql

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"kitchensync/internal/adapter"
	"kitchensync/internal/core"
)

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
	ORDER BY (data_length + index_length) DESC, table_name ASC
`

const columnsQuery = `
	SELECT column_name, column_type, is_nullable, column_default, extra
	FROM information_schema.columns
	WHERE table_schema = DATABASE() AND table_name = %s
	ORDER BY ordinal_position
`

const indexesQuery = `
	SELECT index_name, non_unique, index_type,
	       GROUP_CONCAT(column_name ORDER BY seq_in_index SEPARATOR ',')
	FROM information_schema.statistics
	WHERE table_schema = DATABASE() AND table_name = %s
	GROUP BY index_name, non_unique, index_type
`

// DatabaseSchema introspects every base table of the connected schema,
// largest-first by the combined data+index footprint — MySQL's
// equivalent of Postgres's pg_relation_size ordering (§8).
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
	var pkColumns []string

	stmt := rewriteParam(columnsQuery, name)
	if err := a.Query(ctx, stmt, func(cells []any) error {
		col := &core.Column{
			Name:     toString(cells[0]),
			Nullable: toString(cells[2]) == "YES",
		}
		parseColumnType(col, toString(cells[1]))

		extra := strings.ToLower(toString(cells[4]))
		if strings.Contains(extra, "auto_increment") {
			col.DefaultKind = core.Sequence
			col.DefaultValue = "AUTO_INCREMENT"
		} else if strings.Contains(extra, "on update current_timestamp") {
			col.Flags.Set(core.FlagMysqlOnUpdateTimestamp)
		}

		if cells[3] != nil {
			parseDefaultValue(col, toString(cells[3]))
		} else if col.DefaultKind == "" {
			col.DefaultKind = core.NoDefault
		}
		t.Columns = append(t.Columns, col)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := a.Query(ctx, rewriteParam(indexesQuery, name), func(cells []any) error {
		indexName := toString(cells[0])
		colNames := strings.Split(toString(cells[3]), ",")

		if indexName == "PRIMARY" {
			pkColumns = colNames
			return nil
		}
		key := &core.Key{Name: indexName, Kind: core.KeyKindStandard}
		if toString(cells[1]) == "0" {
			key.Kind = core.KeyKindUnique
		}
		if strings.EqualFold(toString(cells[2]), "SPATIAL") {
			key.Kind = core.KeyKindSpatial
		}
		for _, cn := range colNames {
			if idx, ok := t.IndexOfColumn(cn); ok {
				key.Columns = append(key.Columns, idx)
			}
		}
		t.Keys = append(t.Keys, key)
		return nil
	}); err != nil {
		return nil, err
	}

	if len(pkColumns) > 0 {
		t.PrimaryKeyKind = core.ExplicitPrimaryKey
		for _, cn := range pkColumns {
			if idx, ok := t.IndexOfColumn(cn); ok {
				t.PrimaryKeyColumns = append(t.PrimaryKeyColumns, idx)
			}
		}
	} else {
		t.PrimaryKeyKind = core.NoAvailableKey
	}

	return t, nil
}

func rewriteParam(query, name string) string {
	escaped := "'" + strings.ReplaceAll(name, "'", "''") + "'"
	return strings.Replace(query, "%s", escaped, 1)
}

var (
	intRe     = regexp.MustCompile(`^(tinyint|smallint|mediumint|int|bigint)(?:\(\d+\))?( unsigned)?$`)
	decimalRe = regexp.MustCompile(`^decimal\((\d+),(\d+)\)( unsigned)?$`)
	varcharRe = regexp.MustCompile(`^varchar\((\d+)\)$`)
	charRe    = regexp.MustCompile(`^char\((\d+)\)$`)
	enumRe    = regexp.MustCompile(`^enum\((.*)\)$`)
)

var intSize = map[string]int{"tinyint": 1, "smallint": 2, "mediumint": 3, "int": 4, "bigint": 8}

// parseColumnType classifies information_schema.columns.column_type (the
// full "int(11) unsigned" form, which carries unsigned-ness that
// data_type alone drops) into the canonical ColumnKind taxonomy.
func parseColumnType(col *core.Column, t string) {
	t = strings.TrimSpace(strings.ToLower(t))
	col.Flags = core.NewColumnFlags()

	switch {
	case t == "tinyint(1)":
		col.Kind = core.ColumnKindBool
	case intRe.MatchString(t):
		m := intRe.FindStringSubmatch(t)
		col.Size = intSize[m[1]]
		if m[2] != "" {
			col.Kind = core.ColumnKindUnsignedInt
		} else {
			col.Kind = core.ColumnKindSignedInt
		}
	case t == "float":
		col.Kind, col.Size = core.ColumnKindReal, 4
	case t == "double":
		col.Kind, col.Size = core.ColumnKindReal, 8
	case decimalRe.MatchString(t):
		m := decimalRe.FindStringSubmatch(t)
		col.Kind = core.ColumnKindDecimal
		col.Size, _ = strconv.Atoi(m[1])
		col.Scale, _ = strconv.Atoi(m[2])
	case varcharRe.MatchString(t):
		col.Kind = core.ColumnKindVarChar
		col.Size, _ = strconv.Atoi(varcharRe.FindStringSubmatch(t)[1])
	case charRe.MatchString(t):
		col.Kind = core.ColumnKindFixedChar
		col.Size, _ = strconv.Atoi(charRe.FindStringSubmatch(t)[1])
	case t == "text" || t == "tinytext" || t == "mediumtext" || t == "longtext":
		col.Kind = core.ColumnKindText
	case t == "blob" || t == "tinyblob" || t == "mediumblob" || t == "longblob" || t == "binary" || strings.HasPrefix(t, "varbinary"):
		col.Kind = core.ColumnKindBlob
	case t == "json":
		col.Kind = core.ColumnKindJson
	case t == "date":
		col.Kind = core.ColumnKindDate
	case t == "time":
		col.Kind = core.ColumnKindTime
	case t == "datetime":
		col.Kind = core.ColumnKindDateTime
	case t == "timestamp":
		col.Kind = core.ColumnKindDateTime
		col.Flags.Set(core.FlagMysqlTimestamp)
	case enumRe.MatchString(t):
		col.Kind = core.ColumnKindEnum
		col.EnumerationValues = splitEnumValues(enumRe.FindStringSubmatch(t)[1])
	case strings.Contains(t, "geometry") || strings.Contains(t, "point") || strings.Contains(t, "polygon") || strings.Contains(t, "linestring"):
		col.Kind = core.ColumnKindSpatial
		col.Flags.Set(core.FlagSimpleGeometry)
		col.TypeRestriction = t
	default:
		col.Kind = core.ColumnKindUnknown
		col.DbTypeDef = t
	}
}

func splitEnumValues(inner string) []string {
	var out []string
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "'")
		part = strings.TrimSuffix(part, "'")
		out = append(out, strings.ReplaceAll(part, "''", "'"))
	}
	return out
}

// parseDefaultValue classifies information_schema's column_default,
// which (unlike Postgres) is already the literal value, not an
// expression string, except for the small set of function-call defaults
// MySQL 8 allows.
func parseDefaultValue(col *core.Column, def string) {
	upper := strings.ToUpper(strings.TrimSpace(def))
	switch upper {
	case "NULL":
		col.DefaultKind = core.Expression
		col.DefaultValue = "NULL"
	case "CURRENT_TIMESTAMP", "CURRENT_TIMESTAMP()":
		col.DefaultKind = core.Expression
		col.DefaultValue = "CURRENT_TIMESTAMP"
	default:
		col.DefaultKind = core.Literal
		col.DefaultValue = def
	}
}

// ConvertUnsupportedSchema normalizes a peer schema that did not
// originate from MySQL, per §4.6: MySQL has no spatial subtype/SRID
// concept beyond SIMPLE geometry columns, and TEXT/BLOB arrive in fixed
// size buckets rather than Postgres's single unsized type.
func (a *Adapter) ConvertUnsupportedSchema(db *core.Database) {
	for _, t := range db.Tables {
		for _, c := range t.Columns {
			if c.Kind == core.ColumnKindSpatial {
				c.TypeRestriction = ""
				c.ReferenceSystem = ""
				c.Flags.Set(core.FlagSimpleGeometry)
			}
			if c.Kind == core.ColumnKindText && c.Size == 0 {
				c.Size = 65535 // TEXT
			}
			if c.Kind == core.ColumnKindBlob && c.Size == 0 {
				c.Size = 65535 // BLOB
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
	default:
		return ""
	}
}
