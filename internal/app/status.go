package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/docmirror/internal/background"
	"github.com/blackwell-systems/docmirror/internal/docs"
	"github.com/blackwell-systems/docmirror/internal/installer"
	"github.com/blackwell-systems/docmirror/internal/output"
	"github.com/blackwell-systems/docmirror/internal/store"
)

var statusFlagHistory int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mirror, hook and freshness state",
	Long: `Display the current state of the docmirror installation.

Shows:
  • Install record (version, location, install time)
  • Mirror HEAD, branch and local changes
  • Whether the hook and the /docs command are in place
  • Last freshness check and whether a background sync is running
  • Recent sync history

status only reads local state; it never contacts the remote.`,
	Example: `  docmirror status
  docmirror status --history 20`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusFlagHistory, "history", 5, "Number of recent syncs to show")

	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	rec, err := installer.ReadRecord(e.paths.RecordFile)
	if errors.Is(err, installer.ErrNotInstalled) {
		fmt.Fprintln(out, "docmirror is not installed. Run 'docmirror install' to get started.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, output.Heading("Installation"))
	row(out, "Version", rec.Version)
	row(out, "Installed", fmt.Sprintf("%s (%s)", rec.InstalledAt.Local().Format("2006-01-02 15:04"), output.FormatRelativeTime(rec.InstalledAt)))
	row(out, "Mirror", rec.InstallPath)
	row(out, "Remote", fmt.Sprintf("%s (%s)", e.cfg.RepoURL, e.cfg.Branch))

	fmt.Fprintln(out)
	fmt.Fprintln(out, output.Heading("Mirror"))
	state, err := e.mirror.Inspect(ctx, e.paths.InstallDir)
	switch {
	case err != nil:
		row(out, "State", output.Warn("%v", err))
	case !state.Present:
		row(out, "State", output.Fail("missing (run 'docmirror sync')"))
	case !state.WorkingCopy:
		row(out, "State", output.Fail("not a git working copy"))
	default:
		row(out, "HEAD", fmt.Sprintf("%s on %s", shortHash(state.Head), state.Branch))
		if state.Dirty() {
			row(out, "Working tree", output.Warn("%d local change(s); updates are paused", len(state.Modified)))
		} else {
			row(out, "Working tree", "clean")
		}
		lib := docs.New(e.paths.InstallDir, e.git)
		if topics, err := lib.Topics(); err == nil {
			row(out, "Topics", fmt.Sprintf("%d", len(topics)))
		}
		if updated, err := lib.LastUpdated(ctx); err == nil {
			row(out, "Docs updated", output.FormatRelativeTime(updated))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, output.Heading("Integration"))
	hooks, err := e.settings.Find(e.paths.SettingsFile, e.cfg.Marker)
	switch {
	case err != nil:
		row(out, "Hook", output.Fail("%v", err))
	case len(hooks) == 0:
		row(out, "Hook", output.Warn("not registered"))
	default:
		row(out, "Hook", fmt.Sprintf("%s on %q", hooks[0].Event, hooks[0].Matcher))
	}
	if _, err := os.Stat(e.paths.CommandFile); err == nil {
		row(out, "Command", fmt.Sprintf("/%s (%s)", e.cfg.CommandName, e.paths.CommandFile))
	} else {
		row(out, "Command", output.Warn("missing"))
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Fprintln(out)
	fmt.Fprintln(out, output.Heading("Freshness"))
	fs, err := st.GetFreshness()
	switch {
	case errors.Is(err, store.ErrNotFound):
		row(out, "Last check", "never")
	case err != nil:
		row(out, "Last check", output.Warn("%v", err))
	default:
		row(out, "Last check", fmt.Sprintf("%s (%s)", output.FormatRelativeTime(fs.LastChecked), fs.Outcome))
		row(out, "Behind by", fmt.Sprintf("%d commit(s)", fs.BehindBy))
		if fs.Error != "" {
			row(out, "Last error", fs.Error)
		}
	}
	row(out, "Check interval", e.cfg.CheckInterval.String())
	if running, pid, err := background.IsRunning(e.paths.SyncPIDFile); err == nil && running {
		row(out, "Background sync", fmt.Sprintf("running (PID %d)", pid))
	} else {
		row(out, "Background sync", "idle")
	}

	if statusFlagHistory > 0 {
		events, err := st.ListSyncEvents(statusFlagHistory)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, output.Heading("Recent syncs"))
		fmt.Fprint(out, output.RenderSyncEventTable(events))
	}
	return nil
}

func row(out io.Writer, label, value string) {
	fmt.Fprintf(out, "  %-16s %s\n", label+":", value)
}
