package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/campus/pkg/audit"
)

// NewAuditCommand creates the audit command group
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Work with the audit trail",
	}
	cmd.AddCommand(newAuditArchiveCommand(rootOpts))
	return cmd
}

type archiveOptions struct {
	organization string
	day          string
}

func newAuditArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &archiveOptions{}
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Copy one day of an organization's audit trail to the archive bucket",
		Long: `Write one UTC day of an organization's audit events to the configured S3
bucket as newline-delimited JSON. The trail itself is not modified.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(opts.organization)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}
			day := time.Now().UTC().AddDate(0, 0, -1)
			if opts.day != "" {
				if day, err = time.Parse(time.DateOnly, opts.day); err != nil {
					return fmt.Errorf("invalid --day, expected YYYY-MM-DD: %w", err)
				}
			}
			return rootOpts.withBackend(cmd.Context(), func(ctx context.Context, b *Backend) error {
				if b.Archive == nil {
					return ErrNoArchive
				}
				result, err := audit.ArchiveDay(ctx, b.AuditStore, b.Archive, orgID, day)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Result(result, func(w io.Writer) error {
					return line(w, "Archived %d events to %s", result.Events, result.Key)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.organization, "org", "", "organization ID")
	cmd.Flags().StringVar(&opts.day, "day", "", "UTC day to archive, YYYY-MM-DD (default yesterday)")
	return cmd
}
