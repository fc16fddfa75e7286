package mirror

import (
	"time"

	"github.com/blackwell-systems/docmirror/internal/store"
)

// Event converts the result of an Ensure call into a sync event for the
// state store. A failed call without an outcome is recorded as "failed".
func Event(id, trigger string, started time.Time, res Result, err error) *store.SyncEvent {
	e := &store.SyncEvent{
		ID:         id,
		Trigger:    trigger,
		Outcome:    string(res.Outcome),
		HeadBefore: res.Before,
		HeadAfter:  res.After,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
		if e.Outcome == "" {
			e.Outcome = "failed"
		}
	}
	return e
}
