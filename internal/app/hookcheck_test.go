package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/docmirror/internal/store"
)

func TestHookTarget(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"file_path", `{"tool_input": {"file_path": "/a/b.md"}}`, "/a/b.md", false},
		{"path", `{"tool_input": {"path": "/a"}}`, "/a", false},
		{"relative", `{"cwd": "/work", "tool_input": {"file_path": "docs/x.md"}}`, "/work/docs/x.md", false},
		{"no tool input", `{"cwd": "/work"}`, "", false},
		{"garbage", `not json`, "", true},
		{"empty", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hookTarget(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("hookTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("hookTarget() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithin(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want bool
	}{
		{dir, true},
		{filepath.Join(dir, "docs", "hooks.md"), true},
		{filepath.Join(dir, "..", "other"), false},
		{dir + "-sibling", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := within(dir, tt.path); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", dir, tt.path, got, tt.want)
		}
	}
}

func TestHookCheck_IgnoresOtherPaths(t *testing.T) {
	te := newTestEnv(t, "")
	mustRun(t, "", "install")

	out := mustRun(t, `{"tool_input": {"file_path": "/etc/hosts"}}`, "hook-check")
	if out != "" {
		t.Errorf("hook-check should be silent, got %q", out)
	}
	assertNoFreshnessRecord(t, te)
}

func TestHookCheck_BadPayload(t *testing.T) {
	newTestEnv(t, "")

	if out, err := run(t, "{{{", "hook-check"); err != nil || out != "" {
		t.Errorf("hook-check must never fail: out=%q err=%v", out, err)
	}
}

func TestHookCheck_ChecksMirrorReads(t *testing.T) {
	te := newTestEnv(t, "")
	mustRun(t, "", "install")

	payload := `{"tool_input": {"file_path": "` + filepath.ToSlash(filepath.Join(te.paths.DocsDir, "hooks.md")) + `"}}`
	mustRun(t, payload, "hook-check")

	st, err := store.Open(te.paths.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	fs, err := st.GetFreshness()
	if err != nil {
		t.Fatalf("expected a recorded freshness check: %v", err)
	}
	if fs.BehindBy != 0 {
		t.Errorf("BehindBy = %d, want 0", fs.BehindBy)
	}
}

func TestHookCheck_ConfigErrorIsSwallowed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := filepath.Join(home, "bad.yaml")
	if err := os.WriteFile(cfg, []byte("check_interval: [nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCMIRROR_CONFIG", cfg)

	if _, err := run(t, "{}", "hook-check"); err != nil {
		t.Errorf("hook-check returned %v, want nil", err)
	}
}

func assertNoFreshnessRecord(t *testing.T, te *testEnv) {
	t.Helper()
	st, err := store.Open(te.paths.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, err := st.GetFreshness(); err == nil {
		t.Error("expected no freshness check to be recorded")
	}
}
