package background

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/store"
)

// EventStore is where the child records the outcome of its sync.
type EventStore interface {
	GetSyncEvent(id string) (*store.SyncEvent, error)
	LastSyncEvent() (*store.SyncEvent, error)
}

// DetachedSyncer syncs the mirror in a detached "sync --detached" child, so
// the sync finishes even when the caller stops waiting.
type DetachedSyncer struct {
	Spawner *Spawner
	Events  EventStore
	Trigger string
}

// Sync starts the child, or joins one already running, and waits for it
// within ctx. The result is read back from the event the child recorded.
func (d *DetachedSyncer) Sync(ctx context.Context) (mirror.Result, error) {
	id := uuid.NewString()
	child, err := d.Spawner.Start("sync", "--detached", "--trigger", d.Trigger, "--event-id", id)
	if errors.Is(err, ErrAlreadyRunning) {
		if err := d.Spawner.WaitForExit(ctx); err != nil {
			return mirror.Result{}, err
		}
		ev, err := d.Events.LastSyncEvent()
		if err != nil {
			return mirror.Result{}, fmt.Errorf("failed to read sync result: %w", err)
		}
		return resultOf(ev)
	}
	if err != nil {
		return mirror.Result{}, err
	}

	waitErr := child.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return mirror.Result{}, ctxErr
	}

	ev, err := d.Events.GetSyncEvent(id)
	if err != nil {
		if waitErr != nil {
			return mirror.Result{}, fmt.Errorf("background sync failed: %w", waitErr)
		}
		return mirror.Result{}, fmt.Errorf("failed to read sync result: %w", err)
	}
	return resultOf(ev)
}

func resultOf(ev *store.SyncEvent) (mirror.Result, error) {
	res := mirror.Result{
		Outcome: mirror.Outcome(ev.Outcome),
		Before:  ev.HeadBefore,
		After:   ev.HeadAfter,
	}
	if ev.Error != "" {
		return res, errors.New(ev.Error)
	}
	return res, nil
}
