package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/docmirror/internal/background"
	"github.com/blackwell-systems/docmirror/internal/installer"
	"github.com/blackwell-systems/docmirror/internal/output"
	"github.com/blackwell-systems/docmirror/internal/vcs"
)

var doctorFlagOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues with the installation",
	Long: `Runs diagnostic checks on your docmirror installation.

Checks:
  • git is installed
  • The install record, mirror, command file and helper binary exist
  • The hook is registered exactly once and settings.json parses
  • The mirror is clean and not behind its remote
  • The state database opens

Exits non-zero when a critical check fails.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFlagOffline, "offline", false, "Skip the remote reachability check")

	RootCmd.AddCommand(doctorCmd)
}

// diagnosis counts issues while printing check lines.
type diagnosis struct {
	out      io.Writer
	critical int
	warnings int
}

func (d *diagnosis) ok(format string, args ...any) {
	fmt.Fprintln(d.out, output.OK(format, args...))
}

func (d *diagnosis) warn(action, format string, args ...any) {
	d.warnings++
	fmt.Fprintln(d.out, output.Warn(format, args...))
	if action != "" {
		fmt.Fprintf(d.out, "  Action: %s\n", action)
	}
}

func (d *diagnosis) fail(action, format string, args ...any) {
	d.critical++
	fmt.Fprintln(d.out, output.Fail(format, args...))
	if action != "" {
		fmt.Fprintf(d.out, "  Action: %s\n", action)
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running docmirror diagnostics...")
	fmt.Fprintln(out)

	e, err := loadEnv()
	if err != nil {
		fmt.Fprintln(out, output.Fail("Config: %v", err))
		return fmt.Errorf("diagnostics failed")
	}
	defer e.close()
	d := &diagnosis{out: out}
	ctx := cmd.Context()

	if path := e.cfg.Path(); path != "" {
		d.ok("Config loaded: %s", path)
	} else {
		d.ok("Config: defaults (no config file)")
	}

	if err := vcs.Preflight("git"); err != nil {
		d.fail("install git from https://git-scm.com/downloads", "git not found in PATH")
	} else if v, err := e.git.Version(ctx); err == nil {
		d.ok("%s", v)
	}

	if rec, err := installer.ReadRecord(e.paths.RecordFile); err != nil {
		d.fail("run 'docmirror install'", "Install record: %v", err)
	} else {
		d.ok("Installed version %s", rec.Version)
	}

	doctorMirror(ctx, d, e)
	doctorSettings(d, e)

	if data, err := os.ReadFile(e.paths.CommandFile); err != nil {
		d.fail("run 'docmirror install'", "Command file missing: %s", e.paths.CommandFile)
	} else if !strings.Contains(string(data), e.paths.HelperBin) {
		d.warn("run 'docmirror install' to rewrite it", "Command file does not call %s", e.paths.HelperBin)
	} else {
		d.ok("/%s command: %s", e.cfg.CommandName, e.paths.CommandFile)
	}

	if info, err := os.Stat(e.paths.HelperBin); err != nil {
		d.fail("run 'docmirror install'", "Helper binary missing: %s", e.paths.HelperBin)
	} else if info.Mode()&0o111 == 0 {
		d.fail("run 'docmirror install'", "Helper binary is not executable: %s", e.paths.HelperBin)
	} else {
		d.ok("Helper binary: %s", e.paths.HelperBin)
	}

	if st, err := e.openStore(); err != nil {
		d.fail("check permissions on "+e.paths.StateDir, "State database: %v", err)
	} else {
		st.Close()
		d.ok("State database: %s", e.paths.DBPath)
	}

	if running, pid, err := background.IsRunning(e.paths.SyncPIDFile); err == nil && running {
		d.ok("Background sync running (PID %d)", pid)
	}

	fmt.Fprintln(out)
	switch {
	case d.critical > 0:
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", d.critical, d.warnings)
		return fmt.Errorf("diagnostics failed")
	case d.warnings > 0:
		fmt.Fprintf(out, "Found %d warning(s). /%s works but may show stale docs.\n", d.warnings, e.cfg.CommandName)
	default:
		fmt.Fprintln(out, output.OK("All checks passed!"))
	}
	return nil
}

func doctorMirror(ctx context.Context, d *diagnosis, e *env) {
	state, err := e.mirror.Inspect(ctx, e.paths.InstallDir)
	switch {
	case err != nil:
		d.fail("", "Mirror: %v", err)
		return
	case !state.Present:
		d.fail("run 'docmirror sync'", "Mirror missing: %s", e.paths.InstallDir)
		return
	case !state.WorkingCopy:
		d.fail("move it aside and run 'docmirror install'", "Mirror is not a git working copy: %s", e.paths.InstallDir)
		return
	case state.Dirty():
		d.warn("commit, stash or discard the changes; updates are paused until then",
			"Mirror has %d local change(s)", len(state.Modified))
	default:
		d.ok("Mirror: %s at %s", e.paths.InstallDir, shortHash(state.Head))
	}

	if c := e.configured; c.Remote != e.cfg.RepoURL || c.Branch != e.cfg.Branch {
		d.warn(fmt.Sprintf("run 'docmirror install --repo %s --branch %s' to follow the config file", c.Remote, c.Branch),
			"Mirror tracks %s (%s) from the last install; the config file names %s (%s)",
			e.cfg.RepoURL, e.cfg.Branch, c.Remote, c.Branch)
	}

	if doctorFlagOffline {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, e.cfg.FreshnessTimeout)
	defer cancel()
	behind, err := e.mirror.Behind(tctx, e.target())
	switch {
	case err != nil:
		d.warn("check your network connection", "Remote not reachable: %v", err)
	case behind.Count > 0:
		d.warn("run 'docmirror sync'", "Mirror is %d commit(s) behind %s", behind.Count, e.cfg.Branch)
	default:
		d.ok("Mirror is up to date with %s", e.cfg.Branch)
	}
}

func doctorSettings(d *diagnosis, e *env) {
	hooks, err := e.settings.Find(e.paths.SettingsFile, e.cfg.Marker)
	if err != nil {
		d.fail("fix the JSON or run 'docmirror undo latest'", "settings.json: %v", err)
		return
	}
	switch len(hooks) {
	case 0:
		d.fail("run 'docmirror install'", "Hook not registered in %s", e.paths.SettingsFile)
	case 1:
		d.ok("Hook registered: %s on %q", hooks[0].Event, hooks[0].Matcher)
	default:
		d.warn("run 'docmirror install' to deduplicate", "Hook registered %d times", len(hooks))
	}

	if legacy, err := e.settings.Find(e.paths.SettingsFile, e.cfg.LegacyMarkers...); err == nil && len(legacy) > 0 {
		d.warn("run 'docmirror install' to migrate", "%d hook(s) from an older installation remain", len(legacy))
	}

	lock := e.paths.SettingsFile + ".lock"
	if _, err := os.Stat(lock); err == nil {
		d.warn("remove "+lock+" if no docmirror command is running", "settings.json lock file present")
	}
}
