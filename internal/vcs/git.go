package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/fault"
)

// RemoteName is the remote every mirror is cloned with.
const RemoteName = "origin"

// Git runs git subcommands through a Runner.
type Git struct {
	runner Runner
	bin    string
	log    *zap.Logger
}

// New returns a Git that runs the "git" executable found on PATH.
// A nil runner uses ExecRunner with interactive prompts disabled.
func New(runner Runner, log *zap.Logger) *Git {
	if runner == nil {
		runner = ExecRunner{Env: []string{"GIT_TERMINAL_PROMPT=0", "LC_ALL=C"}}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Git{runner: runner, bin: "git", log: log}
}

// Preflight checks that all binaries are available on PATH.
func Preflight(bins ...string) error {
	var missing []string
	for _, bin := range bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return fault.Errorf(fault.KindPrerequisiteMissing, "preflight",
			"required binaries not found in PATH: %s", strings.Join(missing, ", ")).
			WithRemedy("install git from https://git-scm.com/downloads and re-run")
	}
	return nil
}

// run executes git and converts a non-zero exit into a *CommandError.
func (g *Git) run(ctx context.Context, dir string, args ...string) (Result, error) {
	start := time.Now()
	res, err := g.runner.Run(ctx, dir, g.bin, args...)
	g.log.Debug("git",
		zap.Strings("args", args),
		zap.String("dir", dir),
		zap.Int("exit", res.ExitCode),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return res, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	if res.ExitCode != 0 {
		return res, &CommandError{Args: append([]string{g.bin}, args...), Result: res}
	}
	return res, nil
}

// Version returns the output of git --version.
func (g *Git) Version(ctx context.Context) (string, error) {
	res, err := g.run(ctx, "", "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Clone clones branch of remote into dir.
func (g *Git) Clone(ctx context.Context, remote, branch, dir string) error {
	args := []string{"clone", "--quiet"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, remote, dir)
	_, err := g.run(ctx, "", args...)
	return err
}

// IsWorkingCopy reports whether dir is the top level of a git working copy.
// A directory nested inside some other repository does not count.
func (g *Git) IsWorkingCopy(ctx context.Context, dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return false
	}
	res, err := g.run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return false
	}
	return samePath(strings.TrimSpace(res.Stdout), dir)
}

// Status returns porcelain status lines for tracked files. Untracked files
// are ignored: they never block a fast-forward unless they collide, and a
// collision is reported by the pull itself.
func (g *Git) Status(ctx context.Context, dir string) ([]string, error) {
	res, err := g.run(ctx, dir, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return nil, err
	}
	return nonEmptyLines(res.Stdout), nil
}

// StatusAll is Status including untracked files.
func (g *Git) StatusAll(ctx context.Context, dir string) ([]string, error) {
	res, err := g.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return nonEmptyLines(res.Stdout), nil
}

// Head returns the commit hash HEAD points to.
func (g *Git) Head(ctx context.Context, dir string) (string, error) {
	return g.RevParse(ctx, dir, "HEAD")
}

// RevParse resolves rev to a commit hash.
func (g *Git) RevParse(ctx context.Context, dir, rev string) (string, error) {
	res, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CurrentBranch returns the checked-out branch name ("HEAD" when detached).
func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	res, err := g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Checkout switches dir to branch, creating a tracking branch when needed.
func (g *Git) Checkout(ctx context.Context, dir, branch string) error {
	if _, err := g.run(ctx, dir, "checkout", "--quiet", branch); err == nil {
		return nil
	}
	if _, err := g.run(ctx, dir, "fetch", "--quiet", RemoteName, branch); err != nil {
		return err
	}
	_, err := g.run(ctx, dir, "checkout", "--quiet", "-b", branch, "--track", RemoteName+"/"+branch)
	return err
}

// Fetch fetches branch from the origin remote.
func (g *Git) Fetch(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "fetch", "--quiet", RemoteName, branch)
	return err
}

// Pull fast-forwards the current branch to origin/branch. It never merges
// or rebases: diverged history is reported as an error.
func (g *Git) Pull(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "pull", "--quiet", "--ff-only", RemoteName, branch)
	return err
}

// CountBetween returns the number of commits reachable from to but not from.
func (g *Git) CountBetween(ctx context.Context, dir, from, to string) (int, error) {
	res, err := g.run(ctx, dir, "rev-list", "--count", from+".."+to)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", res.Stdout, err)
	}
	return n, nil
}

// Commit is one entry of git log.
type Commit struct {
	Hash    string
	Time    time.Time
	Subject string
}

// ShortHash returns the first seven characters of the hash.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// Log returns up to limit commits touching paths, newest first.
func (g *Git) Log(ctx context.Context, dir string, limit int, paths ...string) ([]Commit, error) {
	args := []string{"log", "--pretty=format:%H|%ct|%s", fmt.Sprintf("-%d", limit)}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	res, err := g.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, line := range nonEmptyLines(res.Stdout) {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 3 {
			continue
		}
		ts, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Time: time.Unix(ts, 0), Subject: parts[2]})
	}
	return commits, nil
}

// LastCommitTime returns the commit time of the newest commit touching path.
// The zero time is returned when no commit touches it.
func (g *Git) LastCommitTime(ctx context.Context, dir, path string) (time.Time, error) {
	commits, err := g.Log(ctx, dir, 1, path)
	if err != nil || len(commits) == 0 {
		return time.Time{}, err
	}
	return commits[0].Time, nil
}

// Change is a file touched by a commit.
type Change struct {
	Status string // A, M, D, R...
	Path   string
}

// ChangedFiles lists files changed by commit, limited to paths.
func (g *Git) ChangedFiles(ctx context.Context, dir, commit string, paths ...string) ([]Change, error) {
	args := []string{"diff-tree", "--no-commit-id", "--name-status", "-r", "--root", commit}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	res, err := g.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, line := range nonEmptyLines(res.Stdout) {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		changes = append(changes, Change{Status: fields[0][:1], Path: fields[len(fields)-1]})
	}
	return changes, nil
}

// Show returns the content of path at rev. A path that does not exist at
// rev yields "" and no error.
func (g *Git) Show(ctx context.Context, dir, rev, path string) (string, error) {
	res, err := g.run(ctx, dir, "show", rev+":"+filepath.ToSlash(path))
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return "", nil
		}
		return "", err
	}
	return res.Stdout, nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimRight(line, "\r"))
		}
	}
	return out
}

func samePath(a, b string) bool {
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return filepath.Clean(ra) == filepath.Clean(rb)
}

// DirExists reports whether path is an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// DirEmpty reports whether path is an existing directory with no entries.
func DirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
