// Package cli implements the stratus command line interface.
package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stratusforge/stratus/pkg/logging"
)

type options struct {
	configDir   string
	environment string
	region      string
	profile     string
	dryRun      bool
	verbose     bool
}

var cfg options

// NewRootCommand builds the stratus command tree: one verb per stack
// operation, each taking a resource type and name.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "stratus",
		Short:         "CloudFormation stack management",
		Long:          "Assembles CloudFormation templates from declarative configuration and submits them for provisioning.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.Setup(cfg.verbose)
			if err != nil {
				return err
			}
			cobra.OnFinalize(func() {
				_ = logger.Sync()
			})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfg.configDir, "config-dir", "c", ".", "Directory holding the configuration tree")
	flags.StringVarP(&cfg.environment, "environment", "e", "", "Environment to build for")
	flags.StringVarP(&cfg.region, "region", "r", "", "Override the environment's region")
	flags.StringVarP(&cfg.profile, "profile", "p", "", "AWS credentials profile")
	flags.BoolVarP(&cfg.dryRun, "dry-run", "n", false, "Print the template without staging or submitting it")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "Enable debug logging")

	for _, verb := range []struct {
		use   string
		short string
	}{
		{"create", "Create a new stack"},
		{"update", "Update an existing stack"},
		{"delete", "Delete a stack"},
		{"estimate", "Print the cost calculator URL for a stack"},
	} {
		action := verb.use
		root.AddCommand(&cobra.Command{
			Use:   action + " <type> <name>",
			Short: verb.short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				controller, err := newController(cfg)
				if err != nil {
					return err
				}
				return controller.run(cmd.Context(), action, args[0], args[1])
			},
		})
	}
	return root
}

// Main runs the CLI and exits non-zero on failure.
func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
