package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	// Version is set at build time with -ldflags "-X .../internal/app.Version=v1.2.3".
	Version = "dev"

	// RootCmd is the root command for docmirror
	RootCmd = &cobra.Command{
		Use:   "docmirror",
		Short: "Local documentation mirror with a /docs slash command",
		Long: `docmirror keeps a local git mirror of the community documentation
repository and wires it into your assistant profile (~/.claude):

  • a /docs slash command that reads topics from the mirror
  • a hook that keeps the mirror fresh in the background
  • install/uninstall that can be re-run safely at any time

Quick Start:
  1. docmirror install
  2. In your assistant, type /docs

Examples:
  # Preview what install would change
  docmirror install --dry-run

  # Show mirror, hook and freshness state
  docmirror status

  # Check the installation for problems
  docmirror doctor

  # Restore settings.json from before the last change
  docmirror undo latest

  # Remove the integration and the mirror
  docmirror uninstall --purge`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "docmirror: local documentation mirror")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'docmirror install' to set it up.")
			fmt.Fprintln(out, "Run 'docmirror --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/docmirror/config.yaml or $DOCMIRROR_CONFIG)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs to stderr")
	RootCmd.Version = Version

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command. An interrupt cancels the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}
