package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/installer"
	"github.com/blackwell-systems/docmirror/internal/output"
)

var (
	uninstallFlagPurge bool
	uninstallFlagForce bool
	uninstallFlagYes   bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the hook, the /docs command and the install record",
	Long: `Removes everything docmirror added to your assistant profile: the hook in
settings.json (settings are backed up first), the /docs command file, the
helper binary and the install record.

The mirror itself is kept unless --purge is given. --purge also deletes the
state directory (~/.docmirror) and refuses to delete a mirror with local
changes unless --force is given.

Every step runs even if an earlier one fails; failures are listed at the end
and the command exits with status 6.`,
	Example: `  docmirror uninstall
  docmirror uninstall --purge --yes`,
	Args: cobra.NoArgs,
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&uninstallFlagPurge, "purge", false, "Also delete the mirror and the state directory")
	uninstallCmd.Flags().BoolVar(&uninstallFlagForce, "force", false, "With --purge, delete a mirror that has local changes")
	uninstallCmd.Flags().BoolVar(&uninstallFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()
	out := cmd.OutOrStdout()

	if !uninstallFlagYes {
		what := "the docmirror hook, command and helper"
		if uninstallFlagPurge {
			what += fmt.Sprintf(", the mirror at %s and %s", e.paths.InstallDir, e.paths.StateDir)
		}
		if !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Remove %s?", what)) {
			fmt.Fprintln(out, "Uninstall cancelled.")
			return nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}
	u := &installer.Uninstaller{
		Config:   e.cfg,
		Git:      e.git,
		Mirror:   e.mirror,
		Settings: e.settings,
		Home:     home,
		Log:      e.log,
	}
	// Backups live in the state directory, which --purge deletes. A broken
	// state database only costs the backup; the steps still run.
	if !uninstallFlagPurge {
		if st, err := e.openStore(); err != nil {
			e.log.Warn("settings backup skipped", zap.Error(err))
			fmt.Fprintln(out, output.Warn("settings.json will not be backed up: %v", err))
		} else {
			defer st.Close()
			u.Backups = e.backups(st)
		}
	}

	report, err := u.Run(cmd.Context(), installer.UninstallOptions{
		Purge: uninstallFlagPurge,
		Force: uninstallFlagForce,
	})
	if report != nil {
		fmt.Fprint(out, output.RenderSteps(installSteps(report.Steps)))
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, output.OK("docmirror removed."))
	if !uninstallFlagPurge {
		fmt.Fprintf(out, "The mirror at %s was kept; run 'docmirror uninstall --purge' to delete it too.\n", e.paths.InstallDir)
	}
	return nil
}

// confirm prompts on out and reads a y/yes answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
