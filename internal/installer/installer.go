// Package installer implements the install and uninstall workflows. Both
// are sequences of idempotent steps: there is no rollback, and re-running
// a workflow converges on the same end state.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/config"
	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/helper"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/settings"
	"github.com/blackwell-systems/docmirror/internal/snapshots"
	"github.com/blackwell-systems/docmirror/internal/store"
	"github.com/blackwell-systems/docmirror/internal/vcs"
)

// Step names, in execution order.
const (
	StepPreflight     = "preflight"
	StepResolveTarget = "resolve target"
	StepDetectLegacy  = "detect legacy"
	StepSync          = "sync repository"
	StepHelper        = "install helper"
	StepCommand       = "write command"
	StepSettings      = "patch settings"
	StepRecord        = "write record"
	StepCleanup       = "cleanup legacy"
)

// Status of a finished step.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusWarning Status = "warning"
)

// StepResult is one line of the install report.
type StepResult struct {
	Name   string
	Status Status
	Detail string
}

// Report summarizes an install run.
type Report struct {
	Steps           []StepResult
	Sync            mirror.Result
	Legacy          []string
	Removed         []string
	Preserved       []string
	SettingsChanged bool
	Backup          *store.Backup
	Record          *Record
}

// Warnings returns the steps that finished with a warning.
func (r *Report) Warnings() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status == StatusWarning {
			out = append(out, s)
		}
	}
	return out
}

func (r *Report) add(name string, status Status, format string, args ...any) {
	r.Steps = append(r.Steps, StepResult{Name: name, Status: status, Detail: fmt.Sprintf(format, args...)})
}

// Ensurer syncs the mirror.
type Ensurer interface {
	Ensure(ctx context.Context, t mirror.Target) (mirror.Result, error)
}

// EventRecorder stores sync events.
type EventRecorder interface {
	InsertSyncEvent(e *store.SyncEvent) error
}

// Installer wires the install workflow. Backups and Events are optional.
type Installer struct {
	Config   *config.Config
	Git      *vcs.Git
	Mirror   Ensurer
	Settings *settings.Patcher
	Backups  *snapshots.Manager
	Events   EventRecorder
	Version  string
	// HelperSource is the binary copied to the helper path; empty means
	// the running executable.
	HelperSource string
	Home         string
	Log          *zap.Logger
}

func (in *Installer) paths() config.Paths {
	return in.Config.Paths()
}

func (in *Installer) logger() *zap.Logger {
	if in.Log == nil {
		return zap.NewNop()
	}
	return in.Log
}

func (in *Installer) target() mirror.Target {
	return mirror.Target{Remote: in.Config.RepoURL, Branch: in.Config.Branch, Path: in.Config.InstallDir}
}

// HookSpec is the hook entry the installer writes.
func (in *Installer) HookSpec() settings.HookSpec {
	return settings.HookSpec{
		Event:         in.Config.HookEvent,
		Matcher:       in.Config.HookMatcher,
		Command:       `"` + in.paths().HelperBin + `" hook-check`,
		Marker:        in.Config.Marker,
		LegacyMarkers: in.Config.LegacyMarkers,
	}
}

func (in *Installer) commandContent() ([]byte, error) {
	p := in.paths()
	return RenderCommand(CommandData{
		Name:            in.Config.CommandName,
		InstallDir:      p.InstallDir,
		DocsDir:         p.DocsDir,
		RepoURL:         in.Config.RepoURL,
		OfficialDocsURL: in.Config.OfficialDocsURL,
		Helper:          p.HelperBin,
	})
}

func (in *Installer) detectLegacy() ([]string, error) {
	p := in.paths()
	hooks, err := in.Settings.Find(p.SettingsFile, in.Config.LegacyMarkers...)
	if err != nil {
		return nil, withSettingsRemedy(err, p.SettingsFile)
	}
	commands := make([]string, 0, len(hooks))
	for _, h := range hooks {
		commands = append(commands, h.Command)
	}
	return DetectLegacy(p.InstallDir, p.CommandFile, commands, in.Config.LegacyMarkers, in.Home), nil
}

// Run executes the install workflow. Fatal errors stop the run and are
// returned together with the partial report.
func (in *Installer) Run(ctx context.Context) (*Report, error) {
	log := in.logger()
	p := in.paths()
	r := &Report{}

	// Preflight
	if err := vcs.Preflight("git"); err != nil {
		return r, err
	}
	r.add(StepPreflight, StatusDone, "git found")

	// ResolveTargetDir: the directory itself is left for clone.
	if err := os.MkdirAll(filepath.Dir(p.InstallDir), 0o755); err != nil {
		return r, fault.FromFS("resolve install directory", err)
	}
	r.add(StepResolveTarget, StatusDone, "%s", p.InstallDir)

	// DetectLegacy
	legacy, err := in.detectLegacy()
	if err != nil {
		return r, err
	}
	r.Legacy = legacy
	if len(legacy) > 0 {
		r.add(StepDetectLegacy, StatusDone, "found %d older installation(s)", len(legacy))
	} else {
		r.add(StepDetectLegacy, StatusSkipped, "none found")
	}

	// SyncRepository
	if err := in.sync(ctx, r); err != nil {
		return r, err
	}

	// InstallHelper
	changed, err := helper.Install(in.HelperSource, p.HelperBin)
	if err != nil {
		return r, fault.FromFS("install helper", err)
	}
	if changed {
		r.add(StepHelper, StatusDone, "%s", p.HelperBin)
	} else {
		r.add(StepHelper, StatusSkipped, "%s is current", p.HelperBin)
	}

	// WriteCommandDefinition
	content, err := in.commandContent()
	if err != nil {
		return r, err
	}
	if err := os.MkdirAll(p.CommandsDir, 0o755); err != nil {
		return r, fault.FromFS("write command file", err)
	}
	if changed, err = writeCommand(p.CommandFile, content); err != nil {
		return r, fault.FromFS("write command file", err)
	}
	if changed {
		r.add(StepCommand, StatusDone, "/%s -> %s", in.Config.CommandName, p.CommandFile)
	} else {
		r.add(StepCommand, StatusSkipped, "%s is current", p.CommandFile)
	}

	// PatchSettings
	if err := in.patchSettings(ctx, r); err != nil {
		return r, err
	}

	// WriteRecord
	rec, err := WriteRecord(p.RecordFile, Record{
		InstallPath: p.InstallDir,
		Remote:      in.Config.RepoURL,
		Branch:      in.Config.Branch,
		Version:     in.Version,
	})
	if err != nil {
		return r, fault.FromFS("write record", err)
	}
	r.Record = rec
	r.add(StepRecord, StatusDone, "%s", p.RecordFile)

	// CleanupLegacy
	in.cleanupLegacy(ctx, r)

	log.Info("install finished",
		zap.String("install_dir", p.InstallDir),
		zap.String("sync", string(r.Sync.Outcome)),
		zap.Int("warnings", len(r.Warnings())))
	return r, nil
}

func (in *Installer) sync(ctx context.Context, r *Report) error {
	log := in.logger()
	p := in.paths()
	started := time.Now()

	res, err := in.Mirror.Ensure(ctx, in.target())
	r.Sync = res
	if in.Events != nil {
		if recErr := in.Events.InsertSyncEvent(mirror.Event(uuid.NewString(), store.TriggerInstall, started, res, err)); recErr != nil {
			log.Warn("failed to record sync event", zap.Error(recErr))
		}
	}

	switch {
	case err == nil:
		r.add(StepSync, StatusDone, "%s (%s)", res.Outcome, short(res.After))
		return nil
	case fault.Is(err, fault.KindDirtyWorkingTree):
		log.Warn("existing install has local changes", zap.Error(err))
		r.add(StepSync, StatusWarning, "existing install has local changes; left as is")
		return nil
	case fault.Is(err, fault.KindNetwork) && in.Git.IsWorkingCopy(ctx, p.InstallDir):
		log.Warn("could not update existing install", zap.Error(err))
		r.add(StepSync, StatusWarning, "could not reach the remote; keeping the existing copy")
		return nil
	default:
		return err
	}
}

func (in *Installer) patchSettings(ctx context.Context, r *Report) error {
	log := in.logger()
	p := in.paths()
	spec := in.HookSpec()

	diff, err := in.Settings.Preview(p.SettingsFile, spec)
	if err != nil {
		return withSettingsRemedy(err, p.SettingsFile)
	}
	if diff == "" {
		r.add(StepSettings, StatusSkipped, "hook already registered")
		return nil
	}

	if in.Backups != nil {
		b, err := in.Backups.CreateBackup(p.SettingsFile, "install")
		if err != nil {
			log.Warn("failed to back up settings", zap.Error(err))
		}
		r.Backup = b
	}

	changed, err := in.Settings.Apply(ctx, p.SettingsFile, spec)
	if err != nil {
		return withSettingsRemedy(err, p.SettingsFile)
	}
	r.SettingsChanged = changed
	r.add(StepSettings, StatusDone, "%s hook on %q in %s", spec.Event, spec.Matcher, p.SettingsFile)
	return nil
}

func (in *Installer) cleanupLegacy(ctx context.Context, r *Report) {
	log := in.logger()
	if len(r.Legacy) == 0 {
		return
	}
	for _, dir := range r.Legacy {
		switch reason := removable(ctx, in.Git, dir); reason {
		case "":
			if err := os.RemoveAll(dir); err != nil {
				log.Warn("failed to remove legacy install", zap.String("dir", dir), zap.Error(err))
				r.Preserved = append(r.Preserved, dir)
				r.add(StepCleanup, StatusWarning, "could not remove %s: %v", dir, err)
				continue
			}
			r.Removed = append(r.Removed, dir)
			r.add(StepCleanup, StatusDone, "removed %s", dir)
		default:
			r.Preserved = append(r.Preserved, dir)
			r.add(StepCleanup, StatusWarning, "preserved %s (%s)", dir, reason)
		}
	}
}

// removable returns "" when dir is a clean working copy, untracked files
// included, or why it is not.
func removable(ctx context.Context, git *vcs.Git, dir string) string {
	if !git.IsWorkingCopy(ctx, dir) {
		return "not a git repository"
	}
	status, err := git.StatusAll(ctx, dir)
	if err != nil {
		return "status unknown"
	}
	if len(status) > 0 {
		return "has uncommitted changes"
	}
	return ""
}

// Plan describes what Run would do, without side effects.
type Plan struct {
	Steps        []string
	Legacy       []string
	SettingsDiff string
	Command      []byte
}

// Plan inspects the current state and returns the planned actions.
func (in *Installer) Plan(ctx context.Context) (*Plan, error) {
	p := in.paths()
	plan := &Plan{}

	if err := vcs.Preflight("git"); err != nil {
		return nil, err
	}

	legacy, err := in.detectLegacy()
	if err != nil {
		return nil, err
	}
	plan.Legacy = legacy

	empty, _ := vcs.DirEmpty(p.InstallDir)
	switch {
	case empty:
		plan.Steps = append(plan.Steps, fmt.Sprintf("clone %s (%s) into %s", in.Config.RepoURL, in.Config.Branch, p.InstallDir))
	case in.Git.IsWorkingCopy(ctx, p.InstallDir):
		plan.Steps = append(plan.Steps, fmt.Sprintf("update %s from %s", p.InstallDir, in.Config.Branch))
	default:
		return nil, fault.Errorf(fault.KindUnexpectedLayout, "inspect install directory",
			"%s exists but is not a git working copy", p.InstallDir).
			WithRemedy("move it aside or set install_dir in the config file to another location")
	}

	plan.Steps = append(plan.Steps, fmt.Sprintf("install helper binary at %s", p.HelperBin))

	if plan.Command, err = in.commandContent(); err != nil {
		return nil, err
	}
	plan.Steps = append(plan.Steps, fmt.Sprintf("write /%s command to %s", in.Config.CommandName, p.CommandFile))

	diff, err := in.Settings.Preview(p.SettingsFile, in.HookSpec())
	if err != nil {
		return nil, withSettingsRemedy(err, p.SettingsFile)
	}
	plan.SettingsDiff = diff
	if diff != "" {
		plan.Steps = append(plan.Steps, fmt.Sprintf("back up and patch %s", p.SettingsFile))
	}

	plan.Steps = append(plan.Steps, fmt.Sprintf("write install record %s", p.RecordFile))
	for _, dir := range legacy {
		plan.Steps = append(plan.Steps, fmt.Sprintf("remove %s if it is a clean git checkout", dir))
	}
	return plan, nil
}

func withSettingsRemedy(err error, path string) error {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Kind == fault.KindParse && fe.Remedy == "" {
		fe.Remedy = fmt.Sprintf("fix the JSON in %s (or restore a backup with 'docmirror undo') and re-run", path)
	}
	return err
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
