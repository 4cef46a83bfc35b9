// Package adapter defines the uniform contract each database engine
// implements: schema introspection, type mapping, value escaping,
// transactional snapshot control, and row iteration. It composes small
// capability interfaces rather than one large one, and a concrete
// adapter rather than a class hierarchy, the way the rest of this
// codebase favors interface composition over inheritance.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"kitchensync/internal/core"
)

// ErrUnsupportedEngine is returned by New when no adapter is registered
// for the requested engine name.
var ErrUnsupportedEngine = errors.New("adapter: unsupported engine")

// DatabaseError wraps a failure from the underlying engine driver,
// carrying at most the first 200 bytes of the offending SQL (§7) so logs
// and error messages never balloon on a large generated statement.
type DatabaseError struct {
	Op  string
	SQL string
	Err error
}

const maxEchoedSQL = 200

func NewDatabaseError(op, sql string, err error) *DatabaseError {
	if len(sql) > maxEchoedSQL {
		sql = sql[:maxEchoedSQL] + "…"
	}
	return &DatabaseError{Op: op, SQL: sql, Err: err}
}

func (e *DatabaseError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("adapter: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("adapter: %s: %v (sql: %s)", e.Op, e.Err, e.SQL)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// RowHandler receives one query result row at a time as a packed array
// whose cells correspond 1:1 with the query's result columns (§4.4 "Row
// pack contract"). Returning an error aborts iteration.
type RowHandler func(cells []any) error

// Introspector produces and normalizes an engine-agnostic schema.
type Introspector interface {
	// DatabaseSchema introspects the connected database and returns a
	// valid *core.Database (every §3 invariant holds).
	DatabaseSchema(ctx context.Context) (*core.Database, error)

	// ConvertUnsupportedSchema applies this engine's lossy normalization
	// rules (§4.5/§4.6) to a peer's schema in place, before comparison.
	ConvertUnsupportedSchema(db *core.Database)
}

// TransactionController manages the read/write transaction and snapshot
// lifecycle a sync session needs.
type TransactionController interface {
	StartReadTransaction(ctx context.Context) error
	StartWriteTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	ExportSnapshot(ctx context.Context) (string, error)
	ImportSnapshot(ctx context.Context, token string) error
	UnholdSnapshot(ctx context.Context) error

	DisableReferentialIntegrity(ctx context.Context) error
	EnableReferentialIntegrity(ctx context.Context) error
}

// Executor runs SQL and iterates results.
type Executor interface {
	Execute(ctx context.Context, sql string) (rowsAffected int64, err error)
	Query(ctx context.Context, sql string, handle RowHandler) error
}

// Escaper produces SQL-embeddable literals and identifiers.
type Escaper interface {
	EscapeString(s string) string
	EscapeBytea(b []byte) string
	EscapeSpatial(wkbWithSRID []byte) string
	EscapeColumnValue(col *core.Column, raw []byte) string
	QuoteIdentifier(name string) string
}

// Capabilities reports what this engine can faithfully persist.
type Capabilities interface {
	SupportedFlags() core.ColumnFlags
	ColumnDefinition(t *core.Table, c *core.Column) string
}

// Adapter is the full backend contract (C4): one live connection to one
// engine, exposing introspection, transaction control, execution, and
// escaping as a single capability-composed value.
type Adapter interface {
	Introspector
	TransactionController
	Executor
	Escaper
	Capabilities

	// Close releases the adapter's connection. Safe to call once.
	Close() error
}

// Factory constructs a live Adapter from a DSN-shaped connection config.
type Factory func(ctx context.Context, cfg Config) (Adapter, error)

// Config carries the connection parameters an endpoint's CLI accepts.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	// SessionVariables are applied immediately after connecting, e.g.
	// MySQL's "SET sql_mode = ..." or Postgres's "SET search_path = ...".
	SessionVariables map[string]string
}

var (
	registry = make(map[string]Factory)
)

// Register adds an engine's adapter factory under name (e.g.
// "postgresql", "mysql"). Called from each adapter package's init().
func Register(name string, fn Factory) {
	registry[name] = fn
}

// New constructs the adapter registered under name.
func New(ctx context.Context, name string, cfg Config) (Adapter, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, name)
	}
	return fn(ctx, cfg)
}
