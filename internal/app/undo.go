package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/docmirror/internal/output"
	"github.com/blackwell-systems/docmirror/internal/snapshots"
	"github.com/blackwell-systems/docmirror/internal/store"
)

var (
	undoFlagList bool
	undoFlagYes  bool
)

var undoCmd = &cobra.Command{
	Use:   "undo [backup-id | latest]",
	Short: "Restore settings.json from a backup",
	Long: `Restore settings.json from a backup.

A backup is taken automatically before install, uninstall or undo changes
settings.json, so an undo can itself be undone.

Arguments:
  backup-id  The numeric ID of the backup to restore
  latest     Restore the most recent backup`,
	Example: `  docmirror undo --list           # List all backups
  docmirror undo latest           # Restore latest backup
  docmirror undo 42               # Restore backup ID 42
  docmirror undo 42 --yes         # Restore without confirmation`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUndo,
}

func init() {
	undoCmd.Flags().BoolVar(&undoFlagList, "list", false, "List available backups")
	undoCmd.Flags().BoolVar(&undoFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()
	out := cmd.OutOrStdout()

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	backups := e.backups(st)

	if undoFlagList {
		list, err := backups.ListBackups()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No settings backups available.")
			fmt.Fprintln(out, "\nBackups are created automatically whenever docmirror changes settings.json.")
			return nil
		}
		fmt.Fprintf(out, "\nAvailable backups:\n\n")
		fmt.Fprint(out, output.RenderBackupTable(list))
		fmt.Fprintf(out, "\nRestore with: docmirror undo <id>\n")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("backup ID or 'latest' required\n\nUsage: docmirror undo [backup-id | latest]\n\nUse 'docmirror undo --list' to see available backups")
	}

	var b *store.Backup
	if strings.ToLower(args[0]) == "latest" {
		b, err = st.LatestBackup()
		if errors.Is(err, store.ErrNotFound) {
			return snapshots.ErrNoBackups
		}
	} else {
		id, parseErr := strconv.ParseInt(args[0], 10, 64)
		if parseErr != nil {
			return fmt.Errorf("invalid backup ID: %s (must be a number or 'latest')", args[0])
		}
		b, err = st.GetBackup(id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("backup %d not found\n\nRun 'docmirror undo --list' to see available backups", id)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to get backup: %w", err)
	}

	fmt.Fprintf(out, "\nBackup Details:\n")
	fmt.Fprintf(out, "  ID: %d\n", b.ID)
	fmt.Fprintf(out, "  Created: %s\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Reason: %s\n", b.Reason)
	fmt.Fprintf(out, "  Restores: %s\n\n", b.SourcePath)

	if !undoFlagYes && !confirm(cmd.InOrStdin(), out, "Restore this backup?") {
		fmt.Fprintln(out, "Restoration cancelled.")
		return nil
	}

	if _, err := backups.RestoreBackup(cmd.Context(), b.ID); err != nil {
		return err
	}
	fmt.Fprintln(out, output.OK("Restored %s from backup %d", b.SourcePath, b.ID))
	fmt.Fprintln(out, "The previous content was backed up; 'docmirror undo latest' reverts this restore.")
	return nil
}
