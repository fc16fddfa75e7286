package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blackwell-systems/docmirror/internal/config"
	"github.com/blackwell-systems/docmirror/internal/gittest"
)

var seedDocs = map[string]string{
	"docs/overview.md": "# Overview\n\nStart here.\n",
	"docs/hooks.md":    "# Hooks\n\nHooks run shell commands.\n",
	"docs/mcp.md":      "# MCP\n",
}

// testEnv is an isolated HOME with a config file pointing at a local remote.
type testEnv struct {
	home   string
	remote *gittest.Remote
	paths  config.Paths
}

func newTestEnv(t *testing.T, extraConfig string) *testEnv {
	t.Helper()
	remote := gittest.NewRemote(t, seedDocs)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NO_COLOR", "1")

	cfgFile := filepath.Join(home, "docmirror.yaml")
	content := "repo_url: " + remote.URL + "\nbranch: main\n" + extraConfig
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCMIRROR_CONFIG", cfgFile)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		t.Fatalf("config.Load() failed: %v", err)
	}
	return &testEnv{home: home, remote: remote, paths: cfg.Paths()}
}

// run executes the root command with args and returns what it printed.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(RootCmd)

	var out bytes.Buffer
	RootCmd.SetArgs(args)
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetIn(strings.NewReader(stdin))
	defer func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetIn(nil)
	}()

	err := RootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores every flag to its default; cobra keeps values
// between executions of the same command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("docmirror %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
