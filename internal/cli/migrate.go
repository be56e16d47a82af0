package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/socialgraph/config"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/postgres"
)

// errNoDatabase is returned by schema commands when the memory store is configured.
var errNoDatabase = errors.New("schema commands need STORE_DRIVER=postgres")

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, revert and inspect schema migrations.

Examples:
  graphctl migrate up       Apply every pending migration
  graphctl migrate down     Revert the most recent migration
  graphctl migrate status   List migrations and when they were applied`,
	}

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
					applied, err := m.Migrate(ctx)
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
						return nil
					}
					for _, v := range applied {
						fmt.Fprintf(cmd.OutOrStdout(), "applied %d\n", v)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
					version, err := m.Rollback(ctx)
					if err != nil {
						return err
					}
					if version == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "nothing to revert")
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "reverted %d\n", version)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
					migrations, err := m.Status(ctx)
					if err != nil {
						return err
					}
					return writeMigrations(cmd.OutOrStdout(), opts.output, migrations)
				})
			},
		},
	)
	return migrate
}

// withMigrator opens a connection for the duration of fn.
func (o *rootOptions) withMigrator(cmd *cobra.Command, fn func(context.Context, *postgres.Migrator) error) error {
	cfg, log, err := o.setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.StorePostgres {
		return errNoDatabase
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log.Debug("connecting to database")
	conn, err := postgres.NewConnection(ctx, postgres.Config{URL: cfg.Database.URL, MaxConns: 2})
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, postgres.NewMigrator(conn))
}

type migrationRow struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}

func writeMigrations(w io.Writer, format string, migrations []postgres.Migration) error {
	rows := make([]migrationRow, 0, len(migrations))
	for _, m := range migrations {
		row := migrationRow{Version: m.Version, Name: m.Name, Applied: m.IsApplied}
		if m.IsApplied {
			at := m.AppliedAt
			row.AppliedAt = &at
		}
		rows = append(rows, row)
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
	for _, r := range rows {
		appliedAt := "pending"
		if r.AppliedAt != nil {
			appliedAt = r.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Version, r.Name, appliedAt)
	}
	return tw.Flush()
}
