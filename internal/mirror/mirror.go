// Package mirror keeps a local git working copy in step with a remote
// branch. It clones when nothing is there, fast-forwards a clean copy, and
// refuses to touch a copy with local modifications.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/vcs"
)

// Outcome is the result of one Ensure call.
type Outcome string

const (
	Cloned   Outcome = "cloned"
	Pulled   Outcome = "pulled"
	UpToDate Outcome = "up-to-date"
	Conflict Outcome = "conflict"
)

// Target identifies the mirror: where it lives and what it tracks.
type Target struct {
	Remote string
	Branch string
	Path   string
}

// Result describes what Ensure did. Before is empty for a fresh clone.
type Result struct {
	Outcome Outcome
	Before  string
	After   string
}

// Changed reports whether HEAD moved.
func (r Result) Changed() bool {
	return r.Outcome == Cloned || r.Outcome == Pulled
}

// Syncer performs mirror operations with git.
type Syncer struct {
	git *vcs.Git
	log *zap.Logger
}

// New creates a Syncer. A nil logger is replaced with a no-op logger.
func New(git *vcs.Git, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{git: git, log: log}
}

// Ensure brings t.Path up to date with t.Remote at t.Branch.
//
// A missing or empty directory is cloned. A non-empty directory that is not
// a working copy fails with KindUnexpectedLayout and is left alone. A
// working copy with modified tracked files, or one whose history cannot be
// fast-forwarded, yields Conflict with KindDirtyWorkingTree. Switching to
// another branch counts as Pulled when HEAD moves.
func (s *Syncer) Ensure(ctx context.Context, t Target) (Result, error) {
	log := s.log.With(zap.String("path", t.Path), zap.String("branch", t.Branch))

	if info, err := os.Stat(t.Path); err == nil && !info.IsDir() {
		return Result{}, unexpectedLayout(t.Path, "it is a file")
	}

	empty, err := vcs.DirEmpty(t.Path)
	if err != nil {
		return Result{}, fault.FromFS("inspect install directory", err)
	}
	if empty {
		return s.clone(ctx, t, log)
	}

	if !s.git.IsWorkingCopy(ctx, t.Path) {
		return Result{}, unexpectedLayout(t.Path, "it is not empty and not a git working copy")
	}

	before, err := s.git.Head(ctx, t.Path)
	if err != nil {
		return Result{}, classified("read HEAD", err)
	}

	dirty, err := s.git.Status(ctx, t.Path)
	if err != nil {
		return Result{}, classified("check working tree", err)
	}
	if len(dirty) > 0 {
		log.Warn("mirror has local modifications", zap.Strings("status", dirty))
		return Result{Outcome: Conflict, Before: before, After: before}, dirtyTree(t.Path, dirty)
	}

	branch, err := s.git.CurrentBranch(ctx, t.Path)
	if err != nil {
		return Result{}, classified("read current branch", err)
	}
	if branch != t.Branch {
		log.Info("switching mirror branch", zap.String("from", branch))
		if err := s.git.Checkout(ctx, t.Path, t.Branch); err != nil {
			return s.pullFailure(before, "switch branch", err)
		}
	}

	if err := s.git.Pull(ctx, t.Path, t.Branch); err != nil {
		return s.pullFailure(before, "pull", err)
	}

	after, err := s.git.Head(ctx, t.Path)
	if err != nil {
		return Result{}, classified("read HEAD", err)
	}

	res := Result{Outcome: UpToDate, Before: before, After: after}
	if after != before {
		res.Outcome = Pulled
	}
	log.Info("mirror synced", zap.String("outcome", string(res.Outcome)), zap.String("head", after))
	return res, nil
}

func (s *Syncer) clone(ctx context.Context, t Target, log *zap.Logger) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return Result{}, fault.FromFS("create install directory", err)
	}
	log.Info("cloning mirror", zap.String("remote", t.Remote))
	if err := s.git.Clone(ctx, t.Remote, t.Branch, t.Path); err != nil {
		return Result{}, classified("clone", err)
	}
	head, err := s.git.Head(ctx, t.Path)
	if err != nil {
		return Result{}, classified("read HEAD", err)
	}
	return Result{Outcome: Cloned, After: head}, nil
}

func (s *Syncer) pullFailure(before, step string, err error) (Result, error) {
	wrapped := classified(step, err)
	if fault.Is(wrapped, fault.KindDirtyWorkingTree) {
		return Result{Outcome: Conflict, Before: before, After: before}, wrapped
	}
	return Result{Before: before, After: before}, wrapped
}

// Behind describes how far the mirror trails its remote branch.
type Behind struct {
	Count      int
	LocalHead  string
	RemoteHead string
}

// Behind fetches t.Branch and counts the commits HEAD is missing.
func (s *Syncer) Behind(ctx context.Context, t Target) (Behind, error) {
	if !s.git.IsWorkingCopy(ctx, t.Path) {
		return Behind{}, unexpectedLayout(t.Path, "it is not a git working copy")
	}
	local, err := s.git.Head(ctx, t.Path)
	if err != nil {
		return Behind{}, classified("read HEAD", err)
	}
	if err := s.git.Fetch(ctx, t.Path, t.Branch); err != nil {
		return Behind{LocalHead: local}, classified("fetch", err)
	}
	tracking := vcs.RemoteName + "/" + t.Branch
	remote, err := s.git.RevParse(ctx, t.Path, tracking)
	if err != nil {
		return Behind{LocalHead: local}, classified("resolve "+tracking, err)
	}
	n, err := s.git.CountBetween(ctx, t.Path, "HEAD", tracking)
	if err != nil {
		return Behind{LocalHead: local, RemoteHead: remote}, classified("count commits", err)
	}
	return Behind{Count: n, LocalHead: local, RemoteHead: remote}, nil
}

// State is the observable state of a mirror on disk.
type State struct {
	Present     bool     // directory exists
	WorkingCopy bool     // directory is a git working copy
	Head        string   // HEAD commit, empty when not a working copy
	Branch      string   // checked-out branch
	Modified    []string // porcelain status of modified tracked files
}

// Dirty reports whether tracked files are modified.
func (st State) Dirty() bool {
	return len(st.Modified) > 0
}

// Inspect reads the mirror state without changing anything.
func (s *Syncer) Inspect(ctx context.Context, path string) (State, error) {
	st := State{Present: vcs.DirExists(path)}
	if !st.Present {
		return st, nil
	}
	if st.WorkingCopy = s.git.IsWorkingCopy(ctx, path); !st.WorkingCopy {
		return st, nil
	}

	var err error
	if st.Head, err = s.git.Head(ctx, path); err != nil {
		return st, classified("read HEAD", err)
	}
	if st.Branch, err = s.git.CurrentBranch(ctx, path); err != nil {
		return st, classified("read current branch", err)
	}
	if st.Modified, err = s.git.Status(ctx, path); err != nil {
		return st, classified("check working tree", err)
	}
	return st, nil
}

func unexpectedLayout(path, why string) error {
	return fault.Errorf(fault.KindUnexpectedLayout, "inspect install directory",
		"%s exists but %s", path, why).
		WithRemedy("move it aside or set install_dir in the config file to another location")
}

func dirtyTree(path string, status []string) error {
	shown := status
	if len(shown) > 5 {
		shown = append(shown[:5:5], fmt.Sprintf("... and %d more", len(status)-5))
	}
	return fault.Errorf(fault.KindDirtyWorkingTree, "check working tree",
		"%s has local changes:\n  %s", path, strings.Join(shown, "\n  ")).
		WithRemedy(fmt.Sprintf("commit or discard them (git -C %q stash) and re-run", path))
}

// classified wraps a git error with the fault kind its output indicates.
func classified(step string, err error) error {
	kind := vcs.Classify(err)
	if kind == fault.KindUnknown {
		return fmt.Errorf("%s: %w", step, err)
	}
	e := fault.New(kind, step, err)
	switch kind {
	case fault.KindNetwork:
		e = e.WithRemedy("check your network connection and that the repository URL is reachable")
	case fault.KindDirtyWorkingTree:
		e = e.WithRemedy("resolve the state of the mirror with git (stash changes, remove a stale index.lock) and re-run")
	case fault.KindPermission:
		e = e.WithRemedy("check the ownership and permissions of the install directory")
	case fault.KindPrerequisiteMissing:
		e = e.WithRemedy("install git from https://git-scm.com/downloads and re-run")
	}
	return e
}
