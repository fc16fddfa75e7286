package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/mirror"
)

func installed(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.writeSettings(t, `{"theme": "dark"}`)
	_, err := f.installer().Run(context.Background())
	require.NoError(t, err)
	return f
}

func TestUninstall_KeepsMirror(t *testing.T) {
	f := installed(t)

	r, err := f.uninstaller().Run(context.Background(), UninstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.HooksRemoved)
	assert.Empty(t, r.Failed)

	assert.JSONEq(t, `{"theme": "dark"}`, readFile(t, f.paths.SettingsFile))
	assert.NoFileExists(t, f.paths.CommandFile)
	assert.NoFileExists(t, f.paths.HelperBin)
	assert.NoFileExists(t, f.paths.RecordFile)
	assert.DirExists(t, f.paths.InstallDir)
}

func TestUninstall_Purge(t *testing.T) {
	f := installed(t)

	_, err := f.uninstaller().Run(context.Background(), UninstallOptions{Purge: true})
	require.NoError(t, err)
	assert.NoDirExists(t, f.paths.InstallDir)
	assert.NoDirExists(t, f.paths.StateDir)
	assert.DirExists(t, f.paths.HostDir)
}

func TestUninstall_PurgeDirtyMirror(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		wantErr   bool
		wantExist bool
	}{
		{name: "refused without force", wantErr: true, wantExist: true},
		{name: "forced", force: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := installed(t)
			require.NoError(t, os.WriteFile(filepath.Join(f.paths.DocsDir, "hooks.md"), []byte("edited\n"), 0o644))

			r, err := f.uninstaller().Run(context.Background(), UninstallOptions{Purge: true, Force: tt.force})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, fault.Is(err, fault.KindPartialUninstall))
				assert.Equal(t, []string{StepPurgeMirror}, r.Failed)
			} else {
				require.NoError(t, err)
			}
			if tt.wantExist {
				assert.DirExists(t, f.paths.InstallDir)
			} else {
				assert.NoDirExists(t, f.paths.InstallDir)
			}
			assert.NoFileExists(t, f.paths.RecordFile)
		})
	}
}

func TestUninstall_PartialFailure(t *testing.T) {
	f := installed(t)

	// A non-empty directory where the command file should be cannot be
	// removed with os.Remove, even by root.
	require.NoError(t, os.Remove(f.paths.CommandFile))
	require.NoError(t, os.MkdirAll(filepath.Join(f.paths.CommandFile, "keep"), 0o755))

	r, err := f.uninstaller().Run(context.Background(), UninstallOptions{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindPartialUninstall))
	assert.Equal(t, fault.ExitPartialUninstall, fault.ExitCode(err))
	assert.NotEmpty(t, fault.RemedyOf(err))
	assert.Equal(t, []string{StepRemoveCommand}, r.Failed)

	// Later steps still ran.
	assert.Equal(t, 1, r.HooksRemoved)
	assert.NoFileExists(t, f.paths.HelperBin)
	assert.NoFileExists(t, f.paths.RecordFile)
}

func TestUninstall_NothingInstalled(t *testing.T) {
	f := newFixture(t)

	r, err := f.uninstaller().Run(context.Background(), UninstallOptions{Purge: true})
	require.NoError(t, err)
	assert.Equal(t, 0, r.HooksRemoved)
	assert.Equal(t, StatusSkipped, stepStatus(r.Steps, StepRemoveHooks))
	assert.Equal(t, StatusSkipped, stepStatus(r.Steps, StepRemoveCommand))
	assert.Equal(t, StatusSkipped, stepStatus(r.Steps, StepPurgeMirror))
	assert.NoFileExists(t, f.paths.SettingsFile)
}

func TestUninstall_ThenInstallAgain(t *testing.T) {
	f := installed(t)
	ctx := context.Background()

	_, err := f.uninstaller().Run(ctx, UninstallOptions{})
	require.NoError(t, err)

	r, err := f.installer().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, mirror.UpToDate, r.Sync.Outcome)
	assert.Equal(t, []string{`"` + f.paths.HelperBin + `" hook-check`}, hookCommands(t, f.paths.SettingsFile))
}

func TestUninstall_PurgeUsesRecordedPath(t *testing.T) {
	f := installed(t)
	mirrorDir := f.paths.InstallDir

	// install_dir changed after the install.
	other := filepath.Join(f.home, "elsewhere")
	require.NoError(t, os.MkdirAll(other, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(other, "notes.txt"), []byte("mine\n"), 0o644))
	f.cfg.InstallDir = other

	r, err := f.uninstaller().Run(context.Background(), UninstallOptions{Purge: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, stepStatus(r.Steps, StepPurgeMirror))
	assert.NoDirExists(t, mirrorDir)
	assert.FileExists(t, filepath.Join(other, "notes.txt"))
}

func legacyCheckouts(t *testing.T, f *fixture) (clean, dirty string) {
	t.Helper()
	clean = filepath.Join(f.home, "old", "claude-code-docs")
	require.NoError(t, os.MkdirAll(filepath.Dir(clean), 0o755))
	f.remote.Clone(t, clean)

	dirty = filepath.Join(f.home, "older", "claude-code-docs")
	require.NoError(t, os.MkdirAll(filepath.Dir(dirty), 0o755))
	f.remote.Clone(t, dirty)
	require.NoError(t, os.WriteFile(filepath.Join(dirty, "docs", "hooks.md"), []byte("edited\n"), 0o644))

	f.writeSettings(t, `{
  "hooks": {
    "PreToolUse": [
      {
        "matcher": "Read",
        "hooks": [
          {"type": "command", "command": "`+clean+`/claude-code-docs-helper.sh hook-check"}
        ]
      }
    ]
  }
}`)
	require.NoError(t, os.WriteFile(f.paths.CommandFile, []byte("LOCAL DOCS AT: "+dirty+"/docs/\n"), 0o644))
	return clean, dirty
}

func TestUninstall_PurgeLegacy(t *testing.T) {
	f := installed(t)
	clean, dirty := legacyCheckouts(t, f)

	r, err := f.uninstaller().Run(context.Background(), UninstallOptions{Purge: true})
	require.NoError(t, err)
	assert.Equal(t, []string{clean}, r.Removed)
	assert.Equal(t, []string{dirty}, r.Preserved)
	assert.NoDirExists(t, clean)
	assert.DirExists(t, dirty)
	assert.NoDirExists(t, f.paths.InstallDir)
	assert.Equal(t, 1, r.HooksRemoved)
}

func TestUninstall_LegacyKeptWithoutPurge(t *testing.T) {
	f := installed(t)
	clean, _ := legacyCheckouts(t, f)

	r, err := f.uninstaller().Run(context.Background(), UninstallOptions{})
	require.NoError(t, err)
	assert.Empty(t, r.Removed)
	assert.DirExists(t, clean)
}
