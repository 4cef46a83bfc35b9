// Command ks_postgresql is the PostgreSQL endpoint binary: it runs the
// Kitchen Sync driver loop against a PostgreSQL connection, reading
// commands from stdin and writing replies to stdout.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kitchensync/internal/adapter"
	_ "kitchensync/internal/adapter/postgresql"
	"kitchensync/internal/endpoint"
	"kitchensync/internal/wire"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		host, database, username, password string
		port                                int
		sessionVars                         []string
		debug                               bool
	)

	cmd := &cobra.Command{
		Use:   "ks_postgresql",
		Short: "Run the Kitchen Sync PostgreSQL endpoint on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := context.Background()
			cfg := adapter.Config{
				Host:             host,
				Port:             port,
				Database:         database,
				Username:         username,
				Password:         password,
				SessionVariables: parseSessionVars(sessionVars),
			}
			backend, err := adapter.New(ctx, "postgresql", cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			stream := wire.NewStream(os.Stdin, os.Stdout)
			return endpoint.New(stream, backend, log).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "database host")
	cmd.Flags().IntVar(&port, "port", 5432, "database port")
	cmd.Flags().StringVar(&database, "database", "", "database name")
	cmd.Flags().StringVar(&username, "username", "", "connection username")
	cmd.Flags().StringVar(&password, "password", "", "connection password")
	cmd.Flags().StringArrayVar(&sessionVars, "set", nil, "session variable as name=value, may be repeated")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable verbose wire-level logging")

	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func parseSessionVars(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		for i := 0; i < len(p); i++ {
			if p[i] == '=' {
				out[p[:i]] = p[i+1:]
				break
			}
		}
	}
	return out
}
