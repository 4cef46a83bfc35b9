package postgresql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"kitchensync/internal/adapter"
)

// TestDatabaseSchemaAgainstRealPostgres exercises introspection and
// snapshot export against a real server: the parts of the contract a
// fixture-only unit test can't verify, since they depend on pg_catalog's
// actual shape.
func TestDatabaseSchemaAgainstRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker; skipped under -short")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("kitchensync"),
		tcpostgres.WithUsername("kitchensync"),
		tcpostgres.WithPassword("kitchensync"),
		tcpostgres.BasicWaitStrategies(),
		wait.ForListeningPort("5432/tcp"),
	)
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	a, err := Connect(ctx, adapter.Config{
		Host:     host,
		Port:     port.Int(),
		Database: "kitchensync",
		Username: "kitchensync",
		Password: "kitchensync",
	})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Execute(ctx, `CREATE TABLE users (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		email varchar(255) NOT NULL,
		created_at timestamp without time zone DEFAULT now()
	)`)
	require.NoError(t, err)

	db, err := a.DatabaseSchema(ctx)
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)

	tbl := db.Tables[0]
	require.Equal(t, "users", tbl.Name)
	emailIdx, ok := tbl.IndexOfColumn("email")
	require.True(t, ok)
	require.Equal(t, 255, tbl.Columns[emailIdx].Size)

	token, err := a.ExportSnapshot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
