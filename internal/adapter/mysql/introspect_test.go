package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kitchensync/internal/core"
)

func TestParseColumnTypeVariants(t *testing.T) {
	cases := []struct {
		in   string
		kind core.ColumnKind
		size int
	}{
		{"tinyint(1)", core.ColumnKindBool, 0},
		{"int(11)", core.ColumnKindSignedInt, 4},
		{"int(11) unsigned", core.ColumnKindUnsignedInt, 4},
		{"bigint(20) unsigned", core.ColumnKindUnsignedInt, 8},
		{"decimal(10,2)", core.ColumnKindDecimal, 10},
		{"varchar(255)", core.ColumnKindVarChar, 255},
		{"char(36)", core.ColumnKindFixedChar, 36},
		{"text", core.ColumnKindText, 0},
		{"blob", core.ColumnKindBlob, 0},
		{"json", core.ColumnKindJson, 0},
		{"date", core.ColumnKindDate, 0},
		{"some_future_type", core.ColumnKindUnknown, 0},
	}
	for _, c := range cases {
		col := &core.Column{}
		parseColumnType(col, c.in)
		assert.Equal(t, c.kind, col.Kind, c.in)
		if c.size != 0 {
			assert.Equal(t, c.size, col.Size, c.in)
		}
	}
}

func TestParseColumnTypeTimestampSetsFlag(t *testing.T) {
	col := &core.Column{}
	parseColumnType(col, "timestamp")
	assert.Equal(t, core.ColumnKindDateTime, col.Kind)
	assert.True(t, col.Flags.Has(core.FlagMysqlTimestamp))
}

func TestParseColumnTypeEnum(t *testing.T) {
	col := &core.Column{}
	parseColumnType(col, "enum('a','b','it''s')")
	assert.Equal(t, core.ColumnKindEnum, col.Kind)
	assert.Equal(t, []string{"a", "b", "it's"}, col.EnumerationValues)
}

func TestParseDefaultValueCurrentTimestamp(t *testing.T) {
	col := &core.Column{}
	parseDefaultValue(col, "CURRENT_TIMESTAMP")
	assert.Equal(t, core.Expression, col.DefaultKind)
	assert.Equal(t, "CURRENT_TIMESTAMP", col.DefaultValue)
}

func TestParseDefaultValueLiteral(t *testing.T) {
	col := &core.Column{}
	parseDefaultValue(col, "0")
	assert.Equal(t, core.Literal, col.DefaultKind)
	assert.Equal(t, "0", col.DefaultValue)
}

func TestEscapeStringEscapesControlChars(t *testing.T) {
	a := &Adapter{}
	got := a.EscapeString("line1\nline2")
	assert.Equal(t, `'line1\nline2'`, got)
}

func TestEscapeBytea(t *testing.T) {
	a := &Adapter{}
	assert.Equal(t, "0xdeadbeef", a.EscapeBytea([]byte{0xde, 0xad, 0xbe, 0xef}))
}

func TestQuoteIdentifierBacktick(t *testing.T) {
	a := &Adapter{}
	assert.Equal(t, "`order`", a.QuoteIdentifier("order"))
	assert.Equal(t, "`a``b`", a.QuoteIdentifier("a`b"))
}

func TestConvertUnsupportedSchemaBucketsUnsizedTextBlob(t *testing.T) {
	db := &core.Database{Tables: []*core.Table{{
		Name: "t",
		Columns: []*core.Column{
			{Name: "a", Kind: core.ColumnKindText, Size: 0},
			{Name: "b", Kind: core.ColumnKindBlob, Size: 0},
			{Name: "c", Kind: core.ColumnKindSpatial, TypeRestriction: "point", ReferenceSystem: "4326", Flags: core.NewColumnFlags()},
		},
	}}}
	a := &Adapter{}
	a.ConvertUnsupportedSchema(db)

	assert.Equal(t, 65535, db.Tables[0].Columns[0].Size)
	assert.Equal(t, 65535, db.Tables[0].Columns[1].Size)
	assert.Equal(t, "", db.Tables[0].Columns[2].TypeRestriction)
	assert.True(t, db.Tables[0].Columns[2].Flags.Has(core.FlagSimpleGeometry))
}
