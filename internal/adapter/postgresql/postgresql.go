// Package postgresql implements the backend adapter contract (C4) for
// PostgreSQL: introspection, type mapping, value escaping, and
// transactional snapshot control, via github.com/jackc/pgx/v5.
package postgresql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kitchensync/internal/adapter"
	"kitchensync/internal/core"
)

func init() {
	adapter.Register("postgresql", func(ctx context.Context, cfg adapter.Config) (adapter.Adapter, error) {
		return Connect(ctx, cfg)
	})
}

// Adapter is a live PostgreSQL connection implementing adapter.Adapter.
type Adapter struct {
	pool *pgxpool.Pool
	tx   pgx.Tx // non-nil while a transaction is open
}

// Connect opens a pooled connection and applies cfg.SessionVariables.
func Connect(ctx context.Context, cfg adapter.Config) (*Adapter, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, adapter.NewDatabaseError("connect", "", err)
	}
	a := &Adapter{pool: pool}
	for k, v := range cfg.SessionVariables {
		stmt := fmt.Sprintf("SET %s = %s", k, a.EscapeString(v))
		if _, err := a.Execute(ctx, stmt); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// querier abstracts over the pool and an open transaction so Execute and
// Query work identically whether or not a transaction is active.
func (a *Adapter) querier() interface {
	Exec(context.Context, string, ...any) (pgx.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
} {
	if a.tx != nil {
		return a.tx
	}
	return a.pool
}

func (a *Adapter) Execute(ctx context.Context, sql string) (int64, error) {
	tag, err := a.querier().Exec(ctx, sql)
	if err != nil {
		return 0, adapter.NewDatabaseError("execute", sql, err)
	}
	return tag.RowsAffected(), nil
}

func (a *Adapter) Query(ctx context.Context, sql string, handle adapter.RowHandler) error {
	rows, err := a.querier().Query(ctx, sql)
	if err != nil {
		return adapter.NewDatabaseError("query", sql, err)
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return adapter.NewDatabaseError("query scan", sql, err)
		}
		if err := handle(values); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return adapter.NewDatabaseError("query", sql, err)
	}
	return nil
}

func (a *Adapter) StartReadTransaction(ctx context.Context) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: pgx.ReadOnly,
		IsoLevel:   pgx.RepeatableRead,
	})
	if err != nil {
		return adapter.NewDatabaseError("start_read_transaction", "", err)
	}
	a.tx = tx
	return nil
}

func (a *Adapter) StartWriteTransaction(ctx context.Context) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return adapter.NewDatabaseError("start_write_transaction", "", err)
	}
	a.tx = tx
	return nil
}

func (a *Adapter) CommitTransaction(ctx context.Context) error {
	if a.tx == nil {
		return nil
	}
	err := a.tx.Commit(ctx)
	a.tx = nil
	if err != nil {
		return adapter.NewDatabaseError("commit", "", err)
	}
	return nil
}

func (a *Adapter) RollbackTransaction(ctx context.Context) error {
	if a.tx == nil {
		return nil
	}
	err := a.tx.Rollback(ctx)
	a.tx = nil
	if err != nil {
		return adapter.NewDatabaseError("rollback", "", err)
	}
	return nil
}

// ExportSnapshot begins a read transaction (if not already inside one)
// and returns pg_export_snapshot()'s token, per §4.5.
func (a *Adapter) ExportSnapshot(ctx context.Context) (string, error) {
	if a.tx == nil {
		if err := a.StartReadTransaction(ctx); err != nil {
			return "", err
		}
	}
	var token string
	row := a.tx.QueryRow(ctx, "SELECT pg_export_snapshot()")
	if err := row.Scan(&token); err != nil {
		return "", adapter.NewDatabaseError("export_snapshot", "", err)
	}
	return token, nil
}

func (a *Adapter) ImportSnapshot(ctx context.Context, token string) error {
	if err := a.StartReadTransaction(ctx); err != nil {
		return err
	}
	stmt := fmt.Sprintf("SET TRANSACTION SNAPSHOT '%s'", strings.ReplaceAll(token, "'", "''"))
	_, err := a.tx.Exec(ctx, stmt)
	if err != nil {
		return adapter.NewDatabaseError("import_snapshot", stmt, err)
	}
	return nil
}

// UnholdSnapshot is a no-op: Postgres holds a snapshot via the
// transaction itself, with nothing extra to release.
func (a *Adapter) UnholdSnapshot(ctx context.Context) error { return nil }

func (a *Adapter) DisableReferentialIntegrity(ctx context.Context) error {
	_, err := a.Execute(ctx, "SET CONSTRAINTS ALL DEFERRED")
	return err
}

// EnableReferentialIntegrity is a no-op: deferred constraints are
// checked automatically at commit.
func (a *Adapter) EnableReferentialIntegrity(ctx context.Context) error { return nil }

func (a *Adapter) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (a *Adapter) EscapeString(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", "''") + "'"
}

func (a *Adapter) EscapeBytea(b []byte) string {
	var sb strings.Builder
	sb.WriteString(`'\x`)
	const hex = "0123456789abcdef"
	for _, c := range b {
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0xf])
	}
	sb.WriteByte('\'')
	return sb.String()
}

// EscapeSpatial turns a canonical WKB-with-SRID value (a 4-byte
// little-endian SRID prefix followed by standard WKB) into
// ST_GeomFromWKB('\x...', srid), per the scenario in §8.6.
func (a *Adapter) EscapeSpatial(wkbWithSRID []byte) string {
	if len(wkbWithSRID) < 4 {
		return "NULL"
	}
	srid := uint32(wkbWithSRID[0]) | uint32(wkbWithSRID[1])<<8 | uint32(wkbWithSRID[2])<<16 | uint32(wkbWithSRID[3])<<24
	wkb := wkbWithSRID[4:]
	return fmt.Sprintf("ST_GeomFromWKB(%s, %d)", a.EscapeBytea(wkb), srid)
}

func (a *Adapter) EscapeColumnValue(col *core.Column, raw []byte) string {
	switch col.Kind {
	case core.ColumnKindBlob:
		return a.EscapeBytea(raw)
	case core.ColumnKindSpatial:
		return a.EscapeSpatial(raw)
	case core.ColumnKindBool:
		if len(raw) > 0 && (raw[0] == 't' || raw[0] == '1') {
			return "true"
		}
		return "false"
	case core.ColumnKindSignedInt, core.ColumnKindUnsignedInt, core.ColumnKindReal, core.ColumnKindDecimal:
		return string(raw)
	default:
		return a.EscapeString(string(raw))
	}
}

// SupportedFlags lists the column flags Postgres can faithfully persist:
// it has no on-update-timestamp trigger column concept and no MySQL-style
// implicit timestamp default, so those two flags are excluded.
func (a *Adapter) SupportedFlags() core.ColumnFlags {
	flags := core.NewColumnFlags()
	flags.Set(core.FlagTimeZone)
	flags.Set(core.FlagSimpleGeometry)
	flags.Set(core.FlagIdentityGeneratedAlways)
	return flags
}

func (a *Adapter) ColumnDefinition(t *core.Table, c *core.Column) string {
	var sb strings.Builder
	sb.WriteString(a.QuoteIdentifier(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(pgTypeName(c))
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	switch c.DefaultKind {
	case core.Expression:
		sb.WriteString(" DEFAULT ")
		sb.WriteString(c.DefaultValue)
	case core.Literal:
		sb.WriteString(" DEFAULT ")
		sb.WriteString(a.EscapeString(c.DefaultValue))
	}
	return sb.String()
}

func pgTypeName(c *core.Column) string {
	switch c.Kind {
	case core.ColumnKindBool:
		return "boolean"
	case core.ColumnKindSignedInt:
		switch c.Size {
		case 2:
			return "smallint"
		case 8:
			return "bigint"
		default:
			return "integer"
		}
	case core.ColumnKindUnsignedInt:
		return "bigint" // Postgres has no unsigned integer type
	case core.ColumnKindReal:
		if c.Size == 4 {
			return "real"
		}
		return "double precision"
	case core.ColumnKindDecimal:
		if c.Size == 0 {
			return "numeric"
		}
		return fmt.Sprintf("numeric(%d,%d)", c.Size, c.Scale)
	case core.ColumnKindVarChar:
		if c.Size == 0 {
			return "text"
		}
		return "character varying(" + strconv.Itoa(c.Size) + ")"
	case core.ColumnKindFixedChar:
		return "character(" + strconv.Itoa(c.Size) + ")"
	case core.ColumnKindText:
		return "text"
	case core.ColumnKindBlob:
		return "bytea"
	case core.ColumnKindUuid:
		return "uuid"
	case core.ColumnKindJson:
		return "jsonb"
	case core.ColumnKindDate:
		return "date"
	case core.ColumnKindTime:
		if c.Flags.Has(core.FlagTimeZone) {
			return "time with time zone"
		}
		return "time without time zone"
	case core.ColumnKindDateTime:
		if c.Flags.Has(core.FlagTimeZone) {
			return "timestamp with time zone"
		}
		return "timestamp without time zone"
	case core.ColumnKindSpatial:
		if c.TypeRestriction != "" && c.ReferenceSystem != "" {
			return fmt.Sprintf("geometry(%s,%s)", c.TypeRestriction, c.ReferenceSystem)
		}
		return "geometry"
	case core.ColumnKindEnum:
		return "text" // plain text; the enumeration values are not carried into the definition
	default:
		return "text"
	}
}
