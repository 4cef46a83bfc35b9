package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kitchensync/internal/core"
)

func TestParseFormatTypeVariants(t *testing.T) {
	cases := []struct {
		in   string
		kind core.ColumnKind
		size int
	}{
		{"boolean", core.ColumnKindBool, 0},
		{"smallint", core.ColumnKindSignedInt, 2},
		{"bigint", core.ColumnKindSignedInt, 8},
		{"double precision", core.ColumnKindReal, 8},
		{"numeric(10,2)", core.ColumnKindDecimal, 10},
		{"numeric", core.ColumnKindDecimal, 0},
		{"character varying(255)", core.ColumnKindVarChar, 255},
		{"text", core.ColumnKindText, 0},
		{"bytea", core.ColumnKindBlob, 0},
		{"uuid", core.ColumnKindUuid, 0},
		{"date", core.ColumnKindDate, 0},
		{"timestamp without time zone", core.ColumnKindDateTime, 0},
		{"some_weird_extension_type", core.ColumnKindUnknown, 0},
	}
	for _, c := range cases {
		col := &core.Column{}
		parseFormatType(col, c.in)
		assert.Equal(t, c.kind, col.Kind, c.in)
		if c.size != 0 {
			assert.Equal(t, c.size, col.Size, c.in)
		}
	}
}

func TestParseFormatTypeTimeWithZone(t *testing.T) {
	col := &core.Column{}
	parseFormatType(col, "timestamp with time zone")
	assert.Equal(t, core.ColumnKindDateTime, col.Kind)
	assert.True(t, col.Flags.Has(core.FlagTimeZone))
}

func TestParseFormatTypeGeometry(t *testing.T) {
	col := &core.Column{}
	parseFormatType(col, "geometry(Point,4326)")
	assert.Equal(t, core.ColumnKindSpatial, col.Kind)
	assert.Equal(t, "point", col.TypeRestriction)
	assert.Equal(t, "4326", col.ReferenceSystem)
}

func TestParseDefaultExprSequence(t *testing.T) {
	col := &core.Column{}
	parseDefaultExpr(col, "nextval('users_id_seq'::regclass)")
	assert.Equal(t, core.Sequence, col.DefaultKind)
}

func TestParseDefaultExprNow(t *testing.T) {
	col := &core.Column{}
	parseDefaultExpr(col, "now()")
	assert.Equal(t, core.Expression, col.DefaultKind)
	assert.Equal(t, "CURRENT_TIMESTAMP", col.DefaultValue)
}

func TestParseDefaultExprNowDate(t *testing.T) {
	col := &core.Column{}
	parseDefaultExpr(col, "('now'::text)::date")
	assert.Equal(t, "CURRENT_DATE", col.DefaultValue)
}

func TestParseDefaultExprNullCast(t *testing.T) {
	col := &core.Column{}
	parseDefaultExpr(col, "NULL::integer")
	assert.Equal(t, core.Expression, col.DefaultKind)
	assert.Equal(t, "NULL", col.DefaultValue)
}

func TestParseDefaultExprLiteralUnescape(t *testing.T) {
	col := &core.Column{}
	parseDefaultExpr(col, `'it''s here'::text`)
	assert.Equal(t, core.Literal, col.DefaultKind)
	assert.Equal(t, "it's here", col.DefaultValue)
}

func TestParseDefaultExprZeroArgIdentity(t *testing.T) {
	col := &core.Column{}
	parseDefaultExpr(col, `"current_schema"()`)
	assert.Equal(t, core.Expression, col.DefaultKind)
	assert.Equal(t, "current_schema()", col.DefaultValue)
}

// TestParseDefaultExprNoFallThrough guards against the source's bug
// (§9b): a matched case must never also apply the generic Expression
// fallback, so the canonicalized value is never e.g. both CURRENT_TIMESTAMP
// and "now()" depending on case order.
func TestParseDefaultExprNoFallThrough(t *testing.T) {
	col := &core.Column{}
	parseDefaultExpr(col, "now()")
	assert.NotEqual(t, "now()", col.DefaultValue)
}

func TestEscapeString(t *testing.T) {
	a := &Adapter{}
	assert.Equal(t, `'it''s\\'`, a.EscapeString(`it's\`))
}

func TestEscapeBytea(t *testing.T) {
	a := &Adapter{}
	assert.Equal(t, `'\xdeadbeef'`, a.EscapeBytea([]byte{0xde, 0xad, 0xbe, 0xef}))
}

func TestEscapeSpatialStripsSRIDPrefix(t *testing.T) {
	a := &Adapter{}
	srid := []byte{0xe6, 0x10, 0x00, 0x00} // 4326 little-endian
	wkb := []byte{0x01, 0x02, 0x03}
	got := a.EscapeSpatial(append(append([]byte{}, srid...), wkb...))
	assert.Equal(t, `ST_GeomFromWKB('\x010203', 4326)`, got)
}

func TestConvertUnsupportedSchemaNormalizesMySQLTypes(t *testing.T) {
	db := &core.Database{Tables: []*core.Table{{
		Name: "t",
		Columns: []*core.Column{
			{Name: "a", Kind: core.ColumnKindUnsignedInt},
			{Name: "b", Kind: core.ColumnKindSignedInt, Size: 1},
			{Name: "c", Kind: core.ColumnKindSignedInt, Size: 3},
			{Name: "d", Kind: core.ColumnKindText, Size: 65535},
		},
		Keys: []*core.Key{{Name: string(make([]byte, 80))}},
	}}}
	a := &Adapter{}
	a.ConvertUnsupportedSchema(db)

	assert.Equal(t, core.ColumnKindSignedInt, db.Tables[0].Columns[0].Kind)
	assert.Equal(t, 2, db.Tables[0].Columns[1].Size)
	assert.Equal(t, 4, db.Tables[0].Columns[2].Size)
	assert.Equal(t, 0, db.Tables[0].Columns[3].Size)
	assert.Len(t, db.Tables[0].Keys[0].Name, 63)
}
