package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/campus/pkg/orgs"
	"github.com/platinummonkey/campus/pkg/tenants"
)

type onboardOptions struct {
	name       string
	slug       string
	domain     string
	status     string
	school     string
	schoolSlug string
	timezone   string
	adminEmail string
}

// NewOnboardCommand creates the onboard command
func NewOnboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &onboardOptions{}
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create an organization, its first school and its administrator",
		Long: `Create a tenant organization. With --school its first school is created
too, and with --admin-email an existing principal is made its org_admin.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.name == "" {
				return errors.New("--name is required")
			}
			return rootOpts.withBackend(cmd.Context(), func(ctx context.Context, b *Backend) error {
				return runOnboard(ctx, b, opts, newFormatter(rootOpts, cmd.OutOrStdout()))
			})
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "organization name")
	cmd.Flags().StringVar(&opts.slug, "slug", "", "organization slug (derived from the name when empty)")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "custom domain")
	cmd.Flags().StringVar(&opts.status, "status", "", "subscription status (default trial)")
	cmd.Flags().StringVar(&opts.school, "school", "", "name of the first school")
	cmd.Flags().StringVar(&opts.schoolSlug, "school-slug", "", "slug of the first school")
	cmd.Flags().StringVar(&opts.timezone, "timezone", "", "timezone of the first school")
	cmd.Flags().StringVar(&opts.adminEmail, "admin-email", "", "email of the principal to make org_admin")
	return cmd
}

func runOnboard(ctx context.Context, b *Backend, opts *onboardOptions, out *OutputFormatter) error {
	req := &orgs.OnboardRequest{
		Name:               opts.name,
		Slug:               opts.slug,
		SubscriptionStatus: tenants.SubscriptionStatus(opts.status),
	}
	if opts.domain != "" {
		req.Domain = &opts.domain
	}
	if opts.school != "" {
		req.School = &orgs.SchoolRequest{
			Name:   opts.school,
			Slug:   opts.schoolSlug,
			Config: tenants.SchoolConfig{Timezone: opts.timezone},
		}
	}
	if opts.adminEmail != "" {
		admin, err := b.Principals.GetPrincipalByEmail(ctx, opts.adminEmail)
		if err != nil {
			return fmt.Errorf("failed to find admin %s: %w", opts.adminEmail, err)
		}
		req.AdminPrincipalID = &admin.ID
	}

	result, err := b.Orgs.Onboard(ctx, req)
	if err != nil {
		return err
	}
	return out.Result(result, func(w io.Writer) error {
		if err := line(w, "Organization %s (%s) created with status %s",
			result.Organization.Slug, result.Organization.ID, result.Organization.SubscriptionStatus); err != nil {
			return err
		}
		if result.School != nil {
			if err := line(w, "School %s (%s) created", result.School.Slug, result.School.ID); err != nil {
				return err
			}
		}
		if result.Assignment != nil {
			return line(w, "%s granted org_admin", opts.adminEmail)
		}
		return nil
	})
}
