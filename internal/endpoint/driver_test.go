package endpoint

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchensync/internal/adapter"
	"kitchensync/internal/core"
	"kitchensync/internal/wire"
)

// fakeAdapter is a minimal in-memory adapter.Adapter stand-in for
// exercising the driver loop without a live database connection.
type fakeAdapter struct {
	schema         *core.Database
	snapshotToken  string
	importedToken  string
	unheld         bool
	readTxnStarted bool
}

func (f *fakeAdapter) DatabaseSchema(ctx context.Context) (*core.Database, error) { return f.schema, nil }
func (f *fakeAdapter) ConvertUnsupportedSchema(db *core.Database)                 {}
func (f *fakeAdapter) StartReadTransaction(ctx context.Context) error            { f.readTxnStarted = true; return nil }
func (f *fakeAdapter) StartWriteTransaction(ctx context.Context) error           { return nil }
func (f *fakeAdapter) CommitTransaction(ctx context.Context) error               { return nil }
func (f *fakeAdapter) RollbackTransaction(ctx context.Context) error             { return nil }
func (f *fakeAdapter) ExportSnapshot(ctx context.Context) (string, error)        { return f.snapshotToken, nil }
func (f *fakeAdapter) ImportSnapshot(ctx context.Context, token string) error    { f.importedToken = token; return nil }
func (f *fakeAdapter) UnholdSnapshot(ctx context.Context) error                  { f.unheld = true; return nil }
func (f *fakeAdapter) DisableReferentialIntegrity(ctx context.Context) error     { return nil }
func (f *fakeAdapter) EnableReferentialIntegrity(ctx context.Context) error      { return nil }
func (f *fakeAdapter) Execute(ctx context.Context, sql string) (int64, error)    { return 0, nil }
func (f *fakeAdapter) Query(ctx context.Context, sql string, h adapter.RowHandler) error {
	return nil
}
func (f *fakeAdapter) EscapeString(s string) string                             { return s }
func (f *fakeAdapter) EscapeBytea(b []byte) string                              { return "" }
func (f *fakeAdapter) EscapeSpatial(b []byte) string                            { return "" }
func (f *fakeAdapter) EscapeColumnValue(c *core.Column, raw []byte) string      { return "" }
func (f *fakeAdapter) QuoteIdentifier(name string) string                       { return name }
func (f *fakeAdapter) SupportedFlags() core.ColumnFlags                         { return core.NewColumnFlags() }
func (f *fakeAdapter) ColumnDefinition(t *core.Table, c *core.Column) string    { return "" }
func (f *fakeAdapter) Close() error                                            { return nil }

func TestVersionNegotiationAcceptsSupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	s := wire.NewStream(&buf, &buf)
	d := New(s, &fakeAdapter{schema: &core.Database{}}, nil)

	require.NoError(t, s.WriteCommand(wire.CommandProtocol, 9))
	require.NoError(t, s.WriteCommand(wire.CommandQuit))

	require.NoError(t, d.Run(context.Background()))

	reply, err := s.ReadReply()
	require.NoError(t, err)
	require.Len(t, reply, 1)
	n, err := reply[0].Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
}

func TestVersionNegotiationRejectsTooOld(t *testing.T) {
	var buf bytes.Buffer
	s := wire.NewStream(&buf, &buf)
	d := New(s, &fakeAdapter{}, nil)

	require.NoError(t, s.WriteCommand(wire.CommandProtocol, 6))

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolVersion)
}

func TestSchemaCommandRepliesWithIntrospectedDatabase(t *testing.T) {
	var buf bytes.Buffer
	s := wire.NewStream(&buf, &buf)
	db := &core.Database{Tables: []*core.Table{{Name: "users"}}}
	d := New(s, &fakeAdapter{schema: db}, nil)

	require.NoError(t, s.WriteCommand(wire.CommandSchema))
	require.NoError(t, s.WriteCommand(wire.CommandQuit))
	require.NoError(t, d.Run(context.Background()))

	reply, err := s.ReadReply()
	require.NoError(t, err)
	require.Len(t, reply, 1)

	m, err := reply[0].Map()
	require.NoError(t, err)
	tablesVal, ok := wire.MapGet(m, "tables")
	require.True(t, ok)
	arr, err := tablesVal.Array()
	require.NoError(t, err)
	assert.Len(t, arr, 1)
}

func TestIdleBeforeV8Rejected(t *testing.T) {
	var buf bytes.Buffer
	s := wire.NewStream(&buf, &buf)
	d := New(s, &fakeAdapter{}, nil)

	require.NoError(t, s.WriteCommand(wire.CommandProtocol, 7))
	require.NoError(t, s.WriteCommand(wire.CommandIdle))

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedCommand)

	_, err = s.ReadReply() // the protocol reply, written before idle was refused
	require.NoError(t, err)
}

func TestQuitEndsLoopCleanly(t *testing.T) {
	var buf bytes.Buffer
	s := wire.NewStream(&buf, &buf)
	d := New(s, &fakeAdapter{}, nil)

	require.NoError(t, s.WriteCommand(wire.CommandQuit))
	assert.NoError(t, d.Run(context.Background()))
}

func TestEOFBeforeNextCommandIsClean(t *testing.T) {
	s := wire.NewStream(bytes.NewReader(nil), &bytes.Buffer{})
	d := New(s, &fakeAdapter{}, nil)
	assert.NoError(t, d.Run(context.Background()))
}
