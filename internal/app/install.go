package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/freshness"
	"github.com/blackwell-systems/docmirror/internal/installer"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/output"
	"github.com/blackwell-systems/docmirror/internal/snapshots"
)

var (
	installFlagDryRun bool
	installFlagBranch string
	installFlagRepo   string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install or update the mirror, the /docs command and the hook",
	Long: `Clones (or updates) the documentation mirror, installs the helper binary,
writes the /docs slash command and registers the auto-update hook in
settings.json.

Re-running install is safe: an up-to-date installation is left untouched.
settings.json is backed up before it is changed (see 'docmirror undo').
Older script-based installations found through the existing command file or
hooks are migrated: clean checkouts are removed, modified ones are kept.`,
	Example: `  docmirror install
  docmirror install --dry-run
  docmirror install --branch dev`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installFlagDryRun, "dry-run", false, "Show what would change without changing anything")
	installCmd.Flags().StringVar(&installFlagBranch, "branch", "", "Branch of the documentation repository to track")
	installCmd.Flags().StringVar(&installFlagRepo, "repo", "", "Documentation repository URL")

	RootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if installFlagBranch != "" {
		e.cfg.Branch = installFlagBranch
	}
	if installFlagRepo != "" {
		e.cfg.RepoURL = installFlagRepo
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	in := &installer.Installer{
		Config:   e.cfg,
		Git:      e.git,
		Mirror:   e.mirror,
		Settings: e.settings,
		Version:  Version,
		Home:     home,
		Log:      e.log,
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if installFlagDryRun {
		plan, err := in.Plan(ctx)
		if err != nil {
			return err
		}
		printPlan(out, plan)
		return nil
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	backups := e.backups(st)
	in.Backups = backups
	in.Events = st

	fmt.Fprintf(out, "Installing docmirror into %s\n\n", e.paths.InstallDir)
	var report *installer.Report
	runErr := output.Spin(out, "Syncing documentation", 0, func() error {
		var err error
		report, err = in.Run(ctx)
		return err
	})
	if report != nil {
		fmt.Fprint(out, output.RenderSteps(installSteps(report.Steps)))
	}
	if runErr != nil {
		return runErr
	}

	if n, err := backups.Prune(snapshots.DefaultKeep); err != nil {
		e.log.Warn("failed to prune settings backups", zap.Error(err))
	} else if n > 0 {
		e.log.Debug("pruned settings backups", zap.Int("count", n))
	}
	if res := report.Sync; res.Changed() || res.Outcome == mirror.UpToDate {
		if err := freshness.RecordSync(st, res, time.Now()); err != nil {
			e.log.Warn("failed to record freshness", zap.Error(err))
		}
	}
	if _, err := st.PruneSyncEvents(keepSyncEvents); err != nil {
		e.log.Warn("failed to prune sync history", zap.Error(err))
	}

	fmt.Fprintln(out)
	if report.Backup != nil {
		fmt.Fprintf(out, "settings.json backed up (id %d); 'docmirror undo latest' restores it.\n", report.Backup.ID)
	}
	for _, dir := range report.Preserved {
		fmt.Fprintln(out, output.Warn("older installation kept at %s; remove it yourself once you have saved your changes", dir))
	}
	fmt.Fprintf(out, "%s Type /%s in your assistant to read the documentation.\n",
		output.OK("Installed."), e.cfg.CommandName)
	return nil
}

func printPlan(out io.Writer, plan *installer.Plan) {
	fmt.Fprintln(out, output.Heading("Dry run: nothing will be changed."))
	fmt.Fprintln(out)
	for i, s := range plan.Steps {
		fmt.Fprintf(out, "  %d. %s\n", i+1, s)
	}
	if len(plan.Legacy) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Older installations found:")
		for _, dir := range plan.Legacy {
			fmt.Fprintf(out, "  - %s\n", dir)
		}
	}
	fmt.Fprintln(out)
	if plan.SettingsDiff == "" {
		fmt.Fprintln(out, "settings.json: no change")
	} else {
		fmt.Fprintln(out, "settings.json:")
		fmt.Fprint(out, plan.SettingsDiff)
	}
}

func installSteps(steps []installer.StepResult) []output.Step {
	out := make([]output.Step, len(steps))
	for i, s := range steps {
		out[i] = output.Step{Name: s.Name, Status: string(s.Status), Detail: s.Detail}
	}
	return out
}
