package app

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/background"
	"github.com/blackwell-systems/docmirror/internal/config"
	"github.com/blackwell-systems/docmirror/internal/freshness"
	"github.com/blackwell-systems/docmirror/internal/installer"
	"github.com/blackwell-systems/docmirror/internal/logging"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/output"
	"github.com/blackwell-systems/docmirror/internal/settings"
	"github.com/blackwell-systems/docmirror/internal/snapshots"
	"github.com/blackwell-systems/docmirror/internal/store"
	"github.com/blackwell-systems/docmirror/internal/vcs"
)

// keepSyncEvents bounds the sync history table.
const keepSyncEvents = 200

// env is what every command needs: config, derived paths, logger and the
// git-backed services built on them.
type env struct {
	cfg      *config.Config
	paths    config.Paths
	log      *zap.Logger
	git      *vcs.Git
	mirror   *mirror.Syncer
	settings *settings.Patcher

	// configured is the remote and branch from the config file, before the
	// install record overrides them.
	configured mirror.Target
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	p := cfg.Paths()

	log, logErr := logging.New(logging.Options{File: p.LogFile, Verbose: verbose})
	if logErr != nil && verbose {
		fmt.Fprintln(os.Stderr, output.Warn("file logging disabled: %v", logErr))
	}

	configured := mirror.Target{Remote: cfg.RepoURL, Branch: cfg.Branch, Path: cfg.InstallDir}
	rec, err := installer.ReadRecord(p.RecordFile)
	switch {
	case err == nil:
		if rec.Remote != "" {
			cfg.RepoURL = rec.Remote
		}
		if rec.Branch != "" {
			cfg.Branch = rec.Branch
		}
	case !errors.Is(err, installer.ErrNotInstalled):
		log.Warn("ignoring install record", zap.Error(err))
	}

	git := vcs.New(nil, log)
	return &env{
		cfg:        cfg,
		configured: configured,
		paths:      p,
		log:        log,
		git:        git,
		mirror:     mirror.New(git, log),
		settings:   settings.New(log),
	}, nil
}

func (e *env) close() {
	_ = e.log.Sync()
}

func (e *env) target() mirror.Target {
	return mirror.Target{Remote: e.cfg.RepoURL, Branch: e.cfg.Branch, Path: e.cfg.InstallDir}
}

func (e *env) openStore() (*store.Store, error) {
	st, err := store.Open(e.paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return st, nil
}

func (e *env) backups(st *store.Store) *snapshots.Manager {
	return snapshots.New(st, e.paths.BackupDir, e.settings)
}

// spawner starts "docmirror sync --detached" children with the same config.
func (e *env) spawner() *background.Spawner {
	var args []string
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return &background.Spawner{
		Args:    args,
		PIDFile: e.paths.SyncPIDFile,
		LogFile: e.paths.SyncLogFile,
		Log:     e.log,
	}
}

func (e *env) checker(st *store.Store) *freshness.Checker {
	return &freshness.Checker{
		Target: e.target(),
		Prober: e.mirror,
		Syncer: &background.DetachedSyncer{
			Spawner: e.spawner(),
			Events:  st,
			Trigger: store.TriggerFreshness,
		},
		State:    st,
		Interval: e.cfg.CheckInterval,
		Timeout:  e.cfg.FreshnessTimeout,
		Log:      e.log,
	}
}
