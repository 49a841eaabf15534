package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/campus/pkg/audit"
)

// NewTokenCommand creates the token command group
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenCreateCommand(rootOpts))
	return cmd
}

type tokenCreateOptions struct {
	email string
	name  string
	ttl   time.Duration
}

// TokenResult is the output of token create. Token is shown only once.
type TokenResult struct {
	ID        string     `json:"id"`
	Token     string     `json:"token"`
	Prefix    string     `json:"prefix"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newTokenCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenCreateOptions{}
	cmd := &cobra.Command{
		Use:          "create",
		Short:        "Issue an API token for a principal",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.email == "" || opts.name == "" {
				return errors.New("--email and --name are required")
			}
			return rootOpts.withBackend(cmd.Context(), func(ctx context.Context, b *Backend) error {
				return runTokenCreate(ctx, b, opts, newFormatter(rootOpts, cmd.OutOrStdout()))
			})
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "email of the principal")
	cmd.Flags().StringVar(&opts.name, "name", "", "token name")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (0 never expires)")
	return cmd
}

func runTokenCreate(ctx context.Context, b *Backend, opts *tokenCreateOptions, out *OutputFormatter) error {
	principal, err := b.Principals.GetPrincipalByEmail(ctx, opts.email)
	if err != nil {
		return fmt.Errorf("failed to find principal %s: %w", opts.email, err)
	}
	token, plaintext, err := b.Auth.Tokens().CreateToken(ctx, principal.ID, opts.name, opts.ttl)
	if err != nil {
		return err
	}
	if err := audit.Record(ctx, audit.EventTypeAuthTokenCreate, nil, "api_token", token.ID.String(), &audit.ChangeDetails{
		After: map[string]interface{}{"principal_id": principal.ID.String(), "name": opts.name},
	}); err != nil {
		b.Logger.WithError(err).Warn("Failed to record audit event")
	}

	result := TokenResult{ID: token.ID.String(), Token: plaintext, Prefix: token.TokenPrefix, ExpiresAt: token.ExpiresAt}
	return out.Result(result, func(w io.Writer) error {
		if err := line(w, "Token %s created for %s", result.ID, principal.Email); err != nil {
			return err
		}
		return line(w, "%s", plaintext)
	})
}
