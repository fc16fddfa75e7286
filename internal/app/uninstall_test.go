package app

import (
	"os"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
		{"maybe\n", false},
	}

	for _, tt := range tests {
		var out strings.Builder
		if got := confirm(strings.NewReader(tt.input), &out, "Proceed?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Proceed? [y/N]") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}

func TestUninstall_Cancelled(t *testing.T) {
	te := newTestEnv(t, "")
	mustRun(t, "", "install")

	out := mustRun(t, "n\n", "uninstall")
	assertContains(t, out, "Uninstall cancelled.")
	if _, err := os.Stat(te.paths.CommandFile); err != nil {
		t.Errorf("command file removed despite cancel: %v", err)
	}
}

func TestUninstall_KeepsMirror(t *testing.T) {
	te := newTestEnv(t, "")
	writeSettings(t, te.paths.SettingsFile, `{"model": "opus"}`)
	mustRun(t, "", "install")

	out := mustRun(t, "", "uninstall", "--yes")
	assertContains(t, out, "docmirror removed.", "was kept")

	if _, err := os.Stat(te.paths.CommandFile); !os.IsNotExist(err) {
		t.Error("command file should be removed")
	}
	if _, err := os.Stat(te.paths.HelperBin); !os.IsNotExist(err) {
		t.Error("helper should be removed")
	}
	if _, err := os.Stat(te.paths.DocsDir); err != nil {
		t.Errorf("mirror should be kept: %v", err)
	}
	data, _ := os.ReadFile(te.paths.SettingsFile)
	if strings.Contains(string(data), "hook-check") {
		t.Errorf("hook left in settings.json:\n%s", data)
	}
	assertContains(t, string(data), `"model"`)
}

func TestUninstall_Purge(t *testing.T) {
	te := newTestEnv(t, "")
	mustRun(t, "", "install")

	mustRun(t, "", "uninstall", "--purge", "--yes")

	for _, p := range []string{te.paths.InstallDir, te.paths.StateDir, te.paths.CommandFile} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should be removed by --purge", p)
		}
	}
}

func TestUninstall_CorruptStateDatabase(t *testing.T) {
	te := newTestEnv(t, "")
	writeSettings(t, te.paths.SettingsFile, `{"model": "opus"}`)
	mustRun(t, "", "install")

	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(te.paths.DBPath + suffix)
	}
	if err := os.WriteFile(te.paths.DBPath, []byte("this is not a database, just some garbage bytes\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "uninstall", "--yes")
	if err != nil {
		t.Fatalf("uninstall failed: %v\n%s", err, out)
	}
	assertContains(t, out, "will not be backed up", "docmirror removed.")

	if _, err := os.Stat(te.paths.CommandFile); !os.IsNotExist(err) {
		t.Error("command file should be removed")
	}
	data, _ := os.ReadFile(te.paths.SettingsFile)
	if strings.Contains(string(data), "hook-check") {
		t.Errorf("hook left in settings.json:\n%s", data)
	}
}
