package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/storage/postgres"
)

// MigrateResult is the output of migrate
type MigrateResult struct {
	Migrations  int `json:"migrations"`
	SystemRoles int `json:"system_roles"`
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed the system roles",
		Long: `Apply every pending schema migration, then create or refresh the
built-in system roles. Safe to run repeatedly.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withBackend(cmd.Context(), func(ctx context.Context, b *Backend) error {
				if b.DB == nil {
					return errors.New("migrate needs a database connection")
				}
				if err := postgres.Migrate(ctx, b.DB); err != nil {
					return err
				}
				if err := rbac.NewSQLStore(b.DB).SeedSystemRoles(ctx); err != nil {
					return err
				}
				result := MigrateResult{Migrations: len(postgres.Migrations()), SystemRoles: len(rbac.SystemRoleNames())}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Result(result, func(w io.Writer) error {
					return line(w, "Schema at version %d, %d system roles seeded", result.Migrations, result.SystemRoles)
				})
			})
		},
	}
}
