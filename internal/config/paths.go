package config

import "path/filepath"

// Paths are the filesystem locations docmirror reads and writes, derived
// from a Config.
type Paths struct {
	InstallDir   string // the mirror working copy
	DocsDir      string // {InstallDir}/docs
	HostDir      string // host application profile, e.g. ~/.claude
	CommandsDir  string // {HostDir}/commands
	CommandFile  string // {CommandsDir}/{CommandName}.md
	SettingsFile string // {HostDir}/settings.json
	StateDir     string // ~/.docmirror
	BinDir       string // {StateDir}/bin
	HelperBin    string // {BinDir}/docmirror
	RecordFile   string // {StateDir}/install.json
	DBPath       string // {StateDir}/docmirror.db
	LogFile      string // {StateDir}/docmirror.log
	SyncPIDFile  string // {StateDir}/sync.pid
	SyncLogFile  string // {StateDir}/sync.log
	BackupDir    string // {StateDir}/backups
}

// Paths derives all locations from the config.
func (c *Config) Paths() Paths {
	commands := filepath.Join(c.HostDir, "commands")
	bin := filepath.Join(c.StateDir, "bin")
	return Paths{
		InstallDir:   c.InstallDir,
		DocsDir:      filepath.Join(c.InstallDir, "docs"),
		HostDir:      c.HostDir,
		CommandsDir:  commands,
		CommandFile:  filepath.Join(commands, c.CommandName+".md"),
		SettingsFile: filepath.Join(c.HostDir, "settings.json"),
		StateDir:     c.StateDir,
		BinDir:       bin,
		HelperBin:    filepath.Join(bin, helperName()),
		RecordFile:   filepath.Join(c.StateDir, "install.json"),
		DBPath:       filepath.Join(c.StateDir, "docmirror.db"),
		LogFile:      filepath.Join(c.StateDir, "docmirror.log"),
		SyncPIDFile:  filepath.Join(c.StateDir, "sync.pid"),
		SyncLogFile:  filepath.Join(c.StateDir, "sync.log"),
		BackupDir:    filepath.Join(c.StateDir, "backups"),
	}
}
