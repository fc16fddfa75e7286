package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/config"
	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/helper"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/settings"
	"github.com/blackwell-systems/docmirror/internal/snapshots"
	"github.com/blackwell-systems/docmirror/internal/vcs"
)

// Uninstall step names.
const (
	StepRemoveHooks   = "remove hooks"
	StepRemoveCommand = "remove command"
	StepRemoveHelper  = "remove helper"
	StepRemoveRecord  = "remove record"
	StepPurgeMirror   = "purge mirror"
	StepPurgeLegacy   = "purge legacy"
	StepPurgeState    = "purge state"
)

// Inspector reads mirror state for the purge safety check.
type Inspector interface {
	Inspect(ctx context.Context, path string) (mirror.State, error)
}

// Uninstaller wires the uninstall workflow. Backups is optional; without
// Git, --purge leaves older installations alone.
type Uninstaller struct {
	Config   *config.Config
	Git      *vcs.Git
	Mirror   Inspector
	Settings *settings.Patcher
	Backups  *snapshots.Manager
	Home     string
	Log      *zap.Logger
}

// UninstallOptions select the optional purge step.
type UninstallOptions struct {
	Purge bool // also delete the mirror and the state directory
	Force bool // purge a mirror with local changes
}

// UninstallReport lists what each step did.
type UninstallReport struct {
	Steps        []StepResult
	HooksRemoved int
	Failed       []string
	Removed      []string // older installations deleted by --purge
	Preserved    []string // older installations kept because they have changes
}

func (r *UninstallReport) add(name string, status Status, format string, args ...any) {
	r.Steps = append(r.Steps, StepResult{Name: name, Status: status, Detail: fmt.Sprintf(format, args...)})
}

// Run removes the integration. Every step runs even when an earlier one
// failed; failures are combined into one KindPartialUninstall error.
func (u *Uninstaller) Run(ctx context.Context, opts UninstallOptions) (*UninstallReport, error) {
	log := u.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := u.Config.Paths()
	r := &UninstallReport{}
	var errs error

	fail := func(step string, err error) {
		log.Warn("uninstall step failed", zap.String("step", step), zap.Error(err))
		r.Failed = append(r.Failed, step)
		r.Steps = append(r.Steps, StepResult{Name: step, Status: StatusWarning, Detail: err.Error()})
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", step, err))
	}

	// The record names the mirror that was actually installed, which may
	// differ from install_dir if the config changed since.
	mirrorDir := u.Config.InstallDir
	if rec, err := ReadRecord(p.RecordFile); err == nil && rec.InstallPath != "" {
		mirrorDir = rec.InstallPath
	} else if err != nil && !errors.Is(err, ErrNotInstalled) {
		log.Warn("ignoring install record", zap.Error(err))
	}

	// Older installations are found through the hooks and the command file,
	// so look before either is removed.
	var legacy []string
	if opts.Purge && u.Git != nil {
		legacy = u.detectLegacy(mirrorDir, log)
	}

	// PatchSettingsRemove
	markers := append([]string{u.Config.Marker}, u.Config.LegacyMarkers...)
	if u.Backups != nil {
		if _, err := u.Backups.CreateBackup(p.SettingsFile, "uninstall"); err != nil {
			log.Warn("failed to back up settings", zap.Error(err))
		}
	}
	n, err := u.Settings.Remove(ctx, p.SettingsFile, markers...)
	if err != nil {
		fail(StepRemoveHooks, err)
	} else {
		r.HooksRemoved = n
		if n > 0 {
			r.add(StepRemoveHooks, StatusDone, "removed %d hook(s) from %s", n, p.SettingsFile)
		} else {
			r.add(StepRemoveHooks, StatusSkipped, "no hooks registered")
		}
	}

	// DeleteCommandDefinition
	if err := os.Remove(p.CommandFile); err == nil {
		r.add(StepRemoveCommand, StatusDone, "%s", p.CommandFile)
	} else if errors.Is(err, fs.ErrNotExist) {
		r.add(StepRemoveCommand, StatusSkipped, "not present")
	} else {
		fail(StepRemoveCommand, err)
	}

	// The helper binary lives in the state directory.
	if err := helper.Remove(p.HelperBin); err != nil {
		fail(StepRemoveHelper, err)
	} else {
		r.add(StepRemoveHelper, StatusDone, "%s", p.HelperBin)
	}

	// RemoveRecord
	if err := RemoveRecord(p.RecordFile); err != nil {
		fail(StepRemoveRecord, err)
	} else {
		r.add(StepRemoveRecord, StatusDone, "%s", p.RecordFile)
	}

	if opts.Purge {
		u.purgeMirror(ctx, mirrorDir, opts, r, fail)
		u.purgeLegacy(ctx, legacy, r, fail)

		if err := os.RemoveAll(p.StateDir); err != nil {
			fail(StepPurgeState, err)
		} else {
			r.add(StepPurgeState, StatusDone, "%s", p.StateDir)
		}
	}

	if errs != nil {
		return r, fault.New(fault.KindPartialUninstall, "uninstall", errs).
			WithRemedy("fix the problems above and run 'docmirror uninstall' again; completed steps are skipped")
	}
	log.Info("uninstall finished", zap.Int("hooks_removed", r.HooksRemoved), zap.Bool("purge", opts.Purge))
	return r, nil
}

func (u *Uninstaller) purgeMirror(ctx context.Context, dir string, opts UninstallOptions, r *UninstallReport, fail func(string, error)) {
	st, err := u.Mirror.Inspect(ctx, dir)
	if err != nil {
		fail(StepPurgeMirror, err)
		return
	}
	if !st.Present {
		r.add(StepPurgeMirror, StatusSkipped, "not present")
		return
	}
	if st.Dirty() && !opts.Force {
		fail(StepPurgeMirror, fault.Errorf(fault.KindDirtyWorkingTree, "purge mirror",
			"%s has local changes; use --force to delete it anyway", dir))
		return
	}
	if !st.WorkingCopy && !opts.Force {
		fail(StepPurgeMirror, fault.Errorf(fault.KindUnexpectedLayout, "purge mirror",
			"%s is not a git working copy; use --force to delete it anyway", dir))
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		fail(StepPurgeMirror, err)
		return
	}
	r.add(StepPurgeMirror, StatusDone, "%s", dir)
}

func (u *Uninstaller) detectLegacy(mirrorDir string, log *zap.Logger) []string {
	if len(u.Config.LegacyMarkers) == 0 {
		return nil
	}
	p := u.Config.Paths()
	hooks, err := u.Settings.Find(p.SettingsFile, u.Config.LegacyMarkers...)
	if err != nil {
		log.Warn("cannot look for older installations in settings", zap.Error(err))
	}
	commands := make([]string, 0, len(hooks))
	for _, h := range hooks {
		commands = append(commands, h.Command)
	}
	return DetectLegacy(mirrorDir, p.CommandFile, commands, u.Config.LegacyMarkers, u.Home)
}

// purgeLegacy deletes older installations that are clean checkouts. Ones
// with local changes are kept and reported, even with --force.
func (u *Uninstaller) purgeLegacy(ctx context.Context, dirs []string, r *UninstallReport, fail func(string, error)) {
	for _, dir := range dirs {
		if reason := removable(ctx, u.Git, dir); reason != "" {
			r.Preserved = append(r.Preserved, dir)
			r.add(StepPurgeLegacy, StatusWarning, "preserved %s (%s)", dir, reason)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			fail(StepPurgeLegacy, err)
			continue
		}
		r.Removed = append(r.Removed, dir)
		r.add(StepPurgeLegacy, StatusDone, "removed %s", dir)
	}
}
