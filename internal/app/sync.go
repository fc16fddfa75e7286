package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/background"
	"github.com/blackwell-systems/docmirror/internal/freshness"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/output"
	"github.com/blackwell-systems/docmirror/internal/store"
)

var (
	syncFlagDetached bool
	syncFlagTrigger  string
	syncFlagEventID  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update the mirror from its remote now",
	Long: `Fast-forwards the mirror to the tracked branch of the remote, or clones it
when it is missing. A mirror with local changes is left untouched and sync
exits with status 7.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFlagDetached, "detached", false, "Run as a background child")
	syncCmd.Flags().StringVar(&syncFlagTrigger, "trigger", store.TriggerManual, "Trigger recorded with the sync event")
	syncCmd.Flags().StringVar(&syncFlagEventID, "event-id", "", "ID recorded with the sync event")
	syncCmd.Flags().MarkHidden("detached")
	syncCmd.Flags().MarkHidden("trigger")
	syncCmd.Flags().MarkHidden("event-id")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	id := syncFlagEventID
	if id == "" {
		id = uuid.NewString()
	}

	if syncFlagDetached {
		// The child outlives the caller; its only output is the sync log.
		return background.RunChild(e.paths.SyncPIDFile, func() error {
			_, err := ensureAndRecord(context.Background(), e, st, id, syncFlagTrigger)
			return err
		})
	}

	out := cmd.OutOrStdout()
	var res mirror.Result
	err = output.Spin(out, "Syncing documentation", 0, func() error {
		var err error
		res, err = ensureAndRecord(ctx, e, st, id, syncFlagTrigger)
		return err
	})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case mirror.UpToDate:
		fmt.Fprintln(out, output.OK("Already up to date (%s)", shortHash(res.After)))
	case mirror.Cloned:
		fmt.Fprintln(out, output.OK("Cloned %s into %s", e.cfg.RepoURL, e.paths.InstallDir))
	default:
		fmt.Fprintln(out, output.OK("Updated %s..%s", shortHash(res.Before), shortHash(res.After)))
	}
	return nil
}

// ensureAndRecord syncs the mirror and stores the outcome as a sync event.
func ensureAndRecord(ctx context.Context, e *env, st *store.Store, id, trigger string) (mirror.Result, error) {
	started := time.Now()
	res, err := e.mirror.Ensure(ctx, e.target())
	if recErr := st.InsertSyncEvent(mirror.Event(id, trigger, started, res, err)); recErr != nil {
		e.log.Warn("failed to record sync event", zap.Error(recErr))
	}
	if _, pruneErr := st.PruneSyncEvents(keepSyncEvents); pruneErr != nil {
		e.log.Warn("failed to prune sync history", zap.Error(pruneErr))
	}
	if err != nil {
		e.log.Warn("sync failed", zap.String("trigger", trigger), zap.Error(err))
	} else {
		if recErr := freshness.RecordSync(st, res, time.Now()); recErr != nil {
			e.log.Warn("failed to record freshness", zap.Error(recErr))
		}
		e.log.Info("sync finished",
			zap.String("trigger", trigger),
			zap.String("outcome", string(res.Outcome)),
			zap.String("head", res.After))
	}
	return res, err
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
