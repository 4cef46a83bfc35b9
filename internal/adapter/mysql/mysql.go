// Package mysql implements the backend adapter contract (C4) for MySQL,
// MariaDB, and TiDB (detected at connect time, §4.6 and the teacher's
// own variant-detection code), via github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"kitchensync/internal/adapter"
	"kitchensync/internal/core"
)

func init() {
	adapter.Register("mysql", func(ctx context.Context, cfg adapter.Config) (adapter.Adapter, error) {
		return Connect(ctx, cfg)
	})
}

// Variant names the detected server flavor; TiDB and MariaDB share
// MySQL's wire protocol but diverge in a handful of information_schema
// and session-variable details.
type Variant string

const (
	VariantMySQL   Variant = "mysql"
	VariantMariaDB Variant = "mariadb"
	VariantTiDB    Variant = "tidb"
)

// Adapter is a live MySQL-family connection implementing adapter.Adapter.
type Adapter struct {
	db      *sql.DB
	tx      *sql.Tx
	variant Variant
	locked  bool // true while FLUSH TABLES WITH READ LOCK is held for a snapshot
}

func Connect(ctx context.Context, cfg adapter.Config) (*Adapter, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, adapter.NewDatabaseError("connect", "", err)
	}
	a := &Adapter{db: db}
	a.variant, _ = detectVariant(ctx, db)
	for k, v := range cfg.SessionVariables {
		if _, err := a.Execute(ctx, fmt.Sprintf("SET %s = %s", k, a.EscapeString(v))); err != nil {
			db.Close()
			return nil, err
		}
	}
	return a, nil
}

func detectVariant(ctx context.Context, db *sql.DB) (Variant, error) {
	var varName, comment string
	if err := db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'version_comment'").Scan(&varName, &comment); err != nil {
		return VariantMySQL, err
	}
	comment = strings.ToLower(comment)
	switch {
	case strings.Contains(comment, "mariadb"):
		return VariantMariaDB, nil
	case strings.Contains(comment, "tidb"):
		return VariantTiDB, nil
	default:
		return VariantMySQL, nil
	}
}

func (a *Adapter) Close() error { return a.db.Close() }

func (a *Adapter) querier() interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
} {
	if a.tx != nil {
		return a.tx
	}
	return a.db
}

func (a *Adapter) Execute(ctx context.Context, stmt string) (int64, error) {
	res, err := a.querier().ExecContext(ctx, stmt)
	if err != nil {
		return 0, adapter.NewDatabaseError("execute", stmt, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (a *Adapter) Query(ctx context.Context, stmt string, handle adapter.RowHandler) error {
	rows, err := a.querier().QueryContext(ctx, stmt)
	if err != nil {
		return adapter.NewDatabaseError("query", stmt, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return adapter.NewDatabaseError("query columns", stmt, err)
	}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return adapter.NewDatabaseError("query scan", stmt, err)
		}
		if err := handle(raw); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return adapter.NewDatabaseError("query", stmt, err)
	}
	return nil
}

func (a *Adapter) StartReadTransaction(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return adapter.NewDatabaseError("start_read_transaction", "", err)
	}
	a.tx = tx
	return nil
}

func (a *Adapter) StartWriteTransaction(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
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
	err := a.tx.Commit()
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
	err := a.tx.Rollback()
	a.tx = nil
	if err != nil {
		return adapter.NewDatabaseError("rollback", "", err)
	}
	return nil
}

// ExportSnapshot implements MySQL's snapshot semantics (§4.6):
// FLUSH TABLES WITH READ LOCK followed by a consistent-snapshot
// transaction. The lock is held until UnholdSnapshot releases it; the
// token is a fixed marker since MySQL has no separate importable
// snapshot identifier — the importing side instead just starts its own
// consistent-snapshot transaction once it knows the source is locked.
func (a *Adapter) ExportSnapshot(ctx context.Context) (string, error) {
	if _, err := a.Execute(ctx, "FLUSH TABLES WITH READ LOCK"); err != nil {
		return "", err
	}
	a.locked = true
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return "", adapter.NewDatabaseError("export_snapshot", "", err)
	}
	if _, err := tx.ExecContext(ctx, "START TRANSACTION WITH CONSISTENT SNAPSHOT"); err != nil {
		tx.Rollback()
		return "", adapter.NewDatabaseError("export_snapshot", "", err)
	}
	a.tx = tx
	return "mysql-consistent-snapshot", nil
}

func (a *Adapter) ImportSnapshot(ctx context.Context, token string) error {
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return adapter.NewDatabaseError("import_snapshot", "", err)
	}
	if _, err := tx.ExecContext(ctx, "START TRANSACTION WITH CONSISTENT SNAPSHOT"); err != nil {
		tx.Rollback()
		return adapter.NewDatabaseError("import_snapshot", "", err)
	}
	a.tx = tx
	return nil
}

// UnholdSnapshot releases the table lock FLUSH TABLES WITH READ LOCK
// holds, once the transaction it protected has been established on both
// peers; the transaction's consistent view survives the unlock.
func (a *Adapter) UnholdSnapshot(ctx context.Context) error {
	if !a.locked {
		return nil
	}
	_, err := a.Execute(ctx, "UNLOCK TABLES")
	a.locked = false
	return err
}

func (a *Adapter) DisableReferentialIntegrity(ctx context.Context) error {
	if _, err := a.Execute(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return err
	}
	_, err := a.Execute(ctx, "SET UNIQUE_CHECKS = 0")
	return err
}

func (a *Adapter) EnableReferentialIntegrity(ctx context.Context) error {
	if _, err := a.Execute(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
		return err
	}
	_, err := a.Execute(ctx, "SET UNIQUE_CHECKS = 1")
	return err
}

func (a *Adapter) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (a *Adapter) EscapeString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"'", `\'`,
		"\x00", `\0`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return "'" + r.Replace(s) + "'"
}

func (a *Adapter) EscapeBytea(b []byte) string {
	var sb strings.Builder
	sb.WriteString("0x")
	const hex = "0123456789abcdef"
	for _, c := range b {
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0xf])
	}
	return sb.String()
}

// EscapeSpatial turns WKB-with-SRID into ST_GeomFromWKB(hex, srid),
// MySQL's spatial literal form (mirrors Postgres's own ST_GeomFromWKB,
// since both speak OGC WKB).
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
	case core.ColumnKindBool, core.ColumnKindSignedInt, core.ColumnKindUnsignedInt, core.ColumnKindReal, core.ColumnKindDecimal:
		return string(raw)
	default:
		return a.EscapeString(string(raw))
	}
}

// SupportedFlags: MySQL can persist its own timestamp-default and
// on-update-timestamp behaviors and has no notion of a time zone on a
// TIME/DATETIME column.
func (a *Adapter) SupportedFlags() core.ColumnFlags {
	flags := core.NewColumnFlags()
	flags.Set(core.FlagMysqlTimestamp)
	flags.Set(core.FlagMysqlOnUpdateTimestamp)
	flags.Set(core.FlagSimpleGeometry)
	return flags
}

func (a *Adapter) ColumnDefinition(t *core.Table, c *core.Column) string {
	var sb strings.Builder
	sb.WriteString(a.QuoteIdentifier(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(mysqlTypeName(c))
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
	if c.Flags.Has(core.FlagMysqlOnUpdateTimestamp) {
		sb.WriteString(" ON UPDATE CURRENT_TIMESTAMP")
	}
	return sb.String()
}

func mysqlTypeName(c *core.Column) string {
	switch c.Kind {
	case core.ColumnKindBool:
		return "tinyint(1)"
	case core.ColumnKindSignedInt:
		return signedIntName(c.Size)
	case core.ColumnKindUnsignedInt:
		return signedIntName(c.Size) + " unsigned"
	case core.ColumnKindReal:
		if c.Size == 4 {
			return "float"
		}
		return "double"
	case core.ColumnKindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", c.Size, c.Scale)
	case core.ColumnKindVarChar:
		return "varchar(" + strconv.Itoa(c.Size) + ")"
	case core.ColumnKindFixedChar:
		return "char(" + strconv.Itoa(c.Size) + ")"
	case core.ColumnKindText:
		return "text"
	case core.ColumnKindBlob:
		return "blob"
	case core.ColumnKindUuid:
		return "char(36)"
	case core.ColumnKindJson:
		return "json"
	case core.ColumnKindDate:
		return "date"
	case core.ColumnKindTime:
		return "time"
	case core.ColumnKindDateTime:
		if c.Flags.Has(core.FlagMysqlTimestamp) {
			return "timestamp"
		}
		return "datetime"
	case core.ColumnKindSpatial:
		if c.TypeRestriction != "" {
			return strings.ToUpper(c.TypeRestriction)
		}
		return "geometry"
	case core.ColumnKindEnum:
		var quoted []string
		for _, v := range c.EnumerationValues {
			quoted = append(quoted, "'"+strings.ReplaceAll(v, "'", "''")+"'")
		}
		return "enum(" + strings.Join(quoted, ",") + ")"
	default:
		return "text"
	}
}

func signedIntName(size int) string {
	switch size {
	case 1:
		return "tinyint"
	case 2:
		return "smallint"
	case 3:
		return "mediumint"
	case 8:
		return "bigint"
	default:
		return "int"
	}
}
