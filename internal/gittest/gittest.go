// Package gittest builds throwaway git repositories for tests. Every
// repository lives under t.TempDir() and commits with a fixed identity, so
// tests never depend on the developer's git configuration.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RequireGit skips the test when git is not on PATH.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// Git runs git in dir and fails the test on a non-zero exit.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	full := append([]string{
		"-c", "user.name=docmirror-test",
		"-c", "user.email=test@example.com",
		"-c", "commit.gpgsign=false",
		"-c", "init.defaultBranch=main",
	}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// Remote is a bare repository plus the working copy used to push to it.
type Remote struct {
	URL  string // path of the bare repository, usable as a clone URL
	Seed string // working copy that pushes to URL
}

// NewRemote creates a bare repository whose main branch holds files.
func NewRemote(t testing.TB, files map[string]string) *Remote {
	t.Helper()
	RequireGit(t)

	root := t.TempDir()
	bare := filepath.Join(root, "remote.git")
	seed := filepath.Join(root, "seed")

	Git(t, root, "init", "--quiet", "--bare", bare)
	Git(t, bare, "symbolic-ref", "HEAD", "refs/heads/main")
	Git(t, root, "init", "--quiet", seed)
	Git(t, seed, "symbolic-ref", "HEAD", "refs/heads/main")
	Git(t, seed, "remote", "add", "origin", bare)

	r := &Remote{URL: bare, Seed: seed}
	r.Commit(t, files, "initial import")
	return r
}

// Commit writes files into the seed working copy, commits them and pushes
// to the bare repository. It returns the new commit hash.
func (r *Remote) Commit(t testing.TB, files map[string]string, msg string) string {
	t.Helper()
	WriteFiles(t, r.Seed, files)
	Git(t, r.Seed, "add", "-A")
	Git(t, r.Seed, "commit", "--quiet", "-m", msg)
	Git(t, r.Seed, "push", "--quiet", "origin", "main")
	return Git(t, r.Seed, "rev-parse", "HEAD")
}

// Head returns the hash of the remote's main branch.
func (r *Remote) Head(t testing.TB) string {
	t.Helper()
	return Git(t, r.URL, "rev-parse", "refs/heads/main")
}

// Clone clones the remote into dir.
func (r *Remote) Clone(t testing.TB, dir string) {
	t.Helper()
	Git(t, filepath.Dir(dir), "clone", "--quiet", "-b", "main", r.URL, dir)
}

// WriteFiles writes each relative path under dir, creating parents.
func WriteFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// Snapshot returns the content of every file under dir except .git, keyed
// by slash-separated relative path.
func Snapshot(t testing.TB, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}
