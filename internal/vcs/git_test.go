package vcs

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/gittest"
)

// fakeRunner records invocations and replays canned results.
type fakeRunner struct {
	calls   [][]string
	results []Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) (Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return Result{}, f.err
	}
	if len(f.results) == 0 {
		return Result{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func TestPullUsesFastForwardOnly(t *testing.T) {
	fr := &fakeRunner{}
	g := New(fr, nil)

	require.NoError(t, g.Pull(context.Background(), "/tmp/x", "main"))
	require.Len(t, fr.calls, 1)
	assert.Equal(t, []string{"git", "pull", "--quiet", "--ff-only", "origin", "main"}, fr.calls[0])
}

func TestCloneCommandStructure(t *testing.T) {
	fr := &fakeRunner{}
	g := New(fr, nil)

	require.NoError(t, g.Clone(context.Background(), "https://example.com/r.git", "main", "/tmp/dst"))
	assert.Equal(t, []string{"git", "clone", "--quiet", "-b", "main", "https://example.com/r.git", "/tmp/dst"}, fr.calls[0])
}

func TestNonZeroExitBecomesCommandError(t *testing.T) {
	fr := &fakeRunner{results: []Result{{ExitCode: 128, Stderr: "fatal: unable to access 'https://x/': Could not resolve host: x\n"}}}
	g := New(fr, nil)

	err := g.Fetch(context.Background(), "/tmp/x", "main")
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 128, cmdErr.Result.ExitCode)
	assert.Contains(t, err.Error(), "exit 128")
	assert.Equal(t, fault.KindNetwork, Classify(err))
}

func TestClassify(t *testing.T) {
	cmdErr := func(stderr string) error {
		return &CommandError{Args: []string{"git", "pull"}, Result: Result{ExitCode: 1, Stderr: stderr}}
	}

	tests := []struct {
		name string
		err  error
		want fault.Kind
	}{
		{"nil", nil, fault.KindUnknown},
		{"not found", &exec.Error{Name: "git", Err: exec.ErrNotFound}, fault.KindPrerequisiteMissing},
		{"timeout", context.DeadlineExceeded, fault.KindNetwork},
		{"dns", cmdErr("fatal: unable to access 'https://github.com/': Could not resolve host: github.com"), fault.KindNetwork},
		{"ssh auth", cmdErr("git@github.com: Permission denied (publickey)."), fault.KindNetwork},
		{"auth", cmdErr("remote: Invalid username or password.\nfatal: Authentication failed for 'https://x'"), fault.KindNetwork},
		{"overwrite", cmdErr("error: Your local changes to the following files would be overwritten by merge"), fault.KindDirtyWorkingTree},
		{"diverged", cmdErr("fatal: Not possible to fast-forward, aborting."), fault.KindDirtyWorkingTree},
		{"lock", cmdErr("fatal: Unable to create '/x/.git/index.lock': File exists."), fault.KindDirtyWorkingTree},
		{"permission", cmdErr("error: could not write: Permission denied"), fault.KindPermission},
		{"other", cmdErr("fatal: something odd"), fault.KindUnknown},
		{"plain", errors.New("x"), fault.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPreflightMissingBinary(t *testing.T) {
	err := Preflight("definitely-not-a-real-binary-xyz")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindPrerequisiteMissing))
	assert.NotEmpty(t, fault.RemedyOf(err))
}

func TestResultOutputPrefersStderr(t *testing.T) {
	assert.Equal(t, "err", Result{Stdout: "out", Stderr: " err\n"}.Output())
	assert.Equal(t, "out", Result{Stdout: "out\n"}.Output())
}

func TestGitAgainstRealRepository(t *testing.T) {
	remote := gittest.NewRemote(t, map[string]string{
		"docs/hooks.md":  "# Hooks\n",
		"docs/memory.md": "# Memory\n",
	})
	second := remote.Commit(t, map[string]string{"docs/hooks.md": "# Hooks\n\nUpdated.\n"}, "Updated: hooks.md")

	dir := filepath.Join(t.TempDir(), "mirror")
	ctx := context.Background()
	g := New(nil, nil)

	require.NoError(t, g.Clone(ctx, remote.URL, "main", dir))
	assert.True(t, g.IsWorkingCopy(ctx, dir))
	assert.False(t, g.IsWorkingCopy(ctx, filepath.Join(dir, "docs")), "nested dir is not a working copy top level")

	head, err := g.Head(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, second, head)

	branch, err := g.CurrentBranch(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	status, err := g.Status(ctx, dir)
	require.NoError(t, err)
	assert.Empty(t, status)

	commits, err := g.Log(ctx, dir, 5, "docs/")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "Updated: hooks.md", commits[0].Subject)
	assert.Len(t, commits[0].ShortHash(), 7)

	changes, err := g.ChangedFiles(ctx, dir, commits[0].Hash, "docs/")
	require.NoError(t, err)
	assert.Equal(t, []Change{{Status: "M", Path: "docs/hooks.md"}}, changes)

	old, err := g.Show(ctx, dir, commits[0].Hash+"^", "docs/hooks.md")
	require.NoError(t, err)
	assert.Equal(t, "# Hooks\n", old)

	missing, err := g.Show(ctx, dir, "HEAD", "docs/nope.md")
	require.NoError(t, err)
	assert.Empty(t, missing)

	n, err := g.CountBetween(ctx, dir, commits[1].Hash, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	version, err := g.Version(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(version, "git version"))
}
