package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/campus/pkg/config"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigFile string
	Format     string // "json" | "text"
	Verbose    bool

	// Open connects to the backing services; tests replace it
	Open Opener
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the campusctl root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Open: OpenBackend}

	cmd := &cobra.Command{
		Use:   "campusctl",
		Short: "campusctl - administer a campus deployment",
		Long:  "Administrative commands for campus: schema migration, platform users, tenant onboarding and audit archives.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "configuration file (default $"+config.ConfigFileEnv+")")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCreateSuperuserCommand(opts))
	cmd.AddCommand(NewOnboardCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewRolesCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
