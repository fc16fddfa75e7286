package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_RespectsXDG(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "docmirror"), dir)
}

func TestDir_DefaultsToHomeConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "docmirror"), dir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultRepoURL, cfg.RepoURL)
	assert.Equal(t, DefaultBranch, cfg.Branch)
	assert.Equal(t, filepath.Join(home, ".claude-code-docs"), cfg.InstallDir)
	assert.Equal(t, filepath.Join(home, ".claude"), cfg.HostDir)
	assert.Equal(t, DefaultCheckInterval, cfg.CheckInterval)
	assert.Equal(t, DefaultLegacyMarkers, cfg.LegacyMarkers)
	assert.Empty(t, cfg.Path())
}

func TestLoad_ParsesYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "config.yaml")
	content := `repo_url: https://example.com/docs.git
branch: stable
install_dir: ~/mirrors/docs
check_interval: 30m
freshness_timeout: 2s
legacy_markers: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/docs.git", cfg.RepoURL)
	assert.Equal(t, "stable", cfg.Branch)
	assert.Equal(t, filepath.Join(home, "mirrors", "docs"), cfg.InstallDir)
	assert.Equal(t, 30*time.Minute, cfg.CheckInterval)
	assert.Equal(t, 2*time.Second, cfg.FreshnessTimeout)
	assert.Empty(t, cfg.LegacyMarkers, "explicit empty list disables legacy markers")
	assert.Equal(t, path, cfg.Path())
}

func TestLoad_EnvOverridePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("branch: dev\n"), 0644))
	t.Setenv("DOCMIRROR_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Branch)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name    string
		content string
	}{
		{"negative interval", "check_interval: -1h\n"},
		{"huge timeout", "freshness_timeout: 10m\n"},
		{"command with slash", "command_name: a/b\n"},
		{"relative install dir", "install_dir: relative/docs\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(home, "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidValue), "got %v", err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("branch: [unterminated\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Default()
	require.NoError(t, err)
	p := cfg.Paths()

	assert.Equal(t, filepath.Join(home, ".claude", "commands", "docs.md"), p.CommandFile)
	assert.Equal(t, filepath.Join(home, ".claude", "settings.json"), p.SettingsFile)
	assert.Equal(t, filepath.Join(home, ".claude-code-docs", "docs"), p.DocsDir)
	assert.Equal(t, filepath.Join(home, ".docmirror", "install.json"), p.RecordFile)
	assert.Equal(t, filepath.Join(home, ".docmirror", "bin"), filepath.Dir(p.HelperBin))
}
