package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/rbac"
)

// PasswordEnv supplies the password of create-superuser when --password is not given
const PasswordEnv = "CAMPUS_SUPERUSER_PASSWORD"

type superuserOptions struct {
	email    string
	fullName string
	password string
}

// SuperuserResult is the output of create-superuser
type SuperuserResult struct {
	PrincipalID  string `json:"principal_id"`
	Email        string `json:"email"`
	AssignmentID string `json:"assignment_id"`
}

// NewCreateSuperuserCommand creates the create-superuser command
func NewCreateSuperuserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &superuserOptions{}
	cmd := &cobra.Command{
		Use:          "create-superuser",
		Short:        "Create a principal holding the super_admin platform role",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				opts.password = os.Getenv(PasswordEnv)
			}
			if opts.email == "" || opts.password == "" {
				return errors.New("--email and a password (--password or $" + PasswordEnv + ") are required")
			}
			return rootOpts.withBackend(cmd.Context(), func(ctx context.Context, b *Backend) error {
				return runCreateSuperuser(ctx, b, opts, newFormatter(rootOpts, cmd.OutOrStdout()))
			})
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "email address of the superuser")
	cmd.Flags().StringVar(&opts.fullName, "name", "", "full name")
	cmd.Flags().StringVar(&opts.password, "password", "", "password (prefer $"+PasswordEnv+")")
	return cmd
}

func runCreateSuperuser(ctx context.Context, b *Backend, opts *superuserOptions, out *OutputFormatter) error {
	principal, err := b.Auth.Register(ctx, opts.email, opts.fullName, opts.password)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", err)
	}
	assignment := &rbac.RoleAssignment{
		PrincipalID: principal.ID,
		RoleID:      rbac.SystemRoleID(rbac.RoleSuperAdmin),
		IsActive:    true,
	}
	if err := b.Roles.Assign(ctx, assignment); err != nil {
		return fmt.Errorf("failed to grant super_admin: %w", err)
	}
	if err := audit.Record(ctx, audit.EventTypeRoleAssign, nil, string(rbac.ResourceRoleAssignment), assignment.ID.String(), &audit.ChangeDetails{
		After: map[string]interface{}{"principal_id": principal.ID.String(), "role": string(rbac.RoleSuperAdmin)},
	}); err != nil {
		b.Logger.WithError(err).Warn("Failed to record audit event")
	}

	result := SuperuserResult{PrincipalID: principal.ID.String(), Email: principal.Email, AssignmentID: assignment.ID.String()}
	return out.Result(result, func(w io.Writer) error {
		return line(w, "Created superuser %s (%s)", result.Email, result.PrincipalID)
	})
}
