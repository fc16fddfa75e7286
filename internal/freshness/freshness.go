// Package freshness decides whether the mirror needs updating and, when it
// does, triggers a sync without ever blocking the caller for longer than a
// fixed timeout.
package freshness

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/store"
)

const (
	DefaultInterval = 3 * time.Hour
	DefaultTimeout  = 5 * time.Second
)

// Prober reports how far the mirror trails its remote.
type Prober interface {
	Behind(ctx context.Context, t mirror.Target) (mirror.Behind, error)
}

// Syncer brings the mirror up to date.
type Syncer interface {
	Sync(ctx context.Context) (mirror.Result, error)
}

// StateStore persists the outcome of the last check.
type StateStore interface {
	GetFreshness() (*store.FreshnessState, error)
	SaveFreshness(st *store.FreshnessState) error
}

// Checker runs rate-limited freshness checks.
type Checker struct {
	Target   mirror.Target
	Prober   Prober
	Syncer   Syncer
	State    StateStore
	Interval time.Duration
	Timeout  time.Duration
	Now      func() time.Time
	Log      *zap.Logger
}

// Options tune a single check.
type Options struct {
	Force bool // ignore the rate limit
}

// Status is what a check found.
type Status struct {
	Current     bool
	BehindBy    int
	LastChecked time.Time
	Skipped     bool           // rate limited; fields come from the previous check
	Outcome     mirror.Outcome // set when a sync ran to completion
	Syncing     bool           // a sync is still running past the timeout
	Err         error          // soft failure; the mirror is usable but may be stale
}

// Check compares the mirror with its remote and syncs it when behind. Network
// trouble, timeouts and local changes are reported in Status.Err. Only a
// broken install (no working copy, no git) is returned as an error.
func (c *Checker) Check(ctx context.Context, opts Options) (Status, error) {
	log := c.logger()
	now := c.now()

	prev, err := c.State.GetFreshness()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("failed to read freshness state", zap.Error(err))
		}
		prev = nil
	}

	if !opts.Force && prev != nil && now.Sub(prev.LastChecked) < c.interval() {
		log.Debug("freshness check skipped", zap.Time("last_checked", prev.LastChecked))
		return Status{
			Current:     prev.BehindBy == 0 && prev.Error == "",
			BehindBy:    prev.BehindBy,
			LastChecked: prev.LastChecked,
			Skipped:     true,
			Outcome:     mirror.Outcome(prev.Outcome),
		}, nil
	}

	// Record the attempt first so a failing remote is not retried on every read.
	next := &store.FreshnessState{LastChecked: now}
	if prev != nil {
		next.BehindBy, next.LocalHead, next.RemoteHead = prev.BehindBy, prev.LocalHead, prev.RemoteHead
	}
	next.Outcome = "checking"
	c.save(next)

	tctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	st := Status{LastChecked: now}
	behind, err := c.Prober.Behind(tctx, c.Target)
	if err != nil {
		if hard(err) {
			next.Outcome, next.Error = "failed", err.Error()
			c.save(next)
			return st, err
		}
		log.Warn("freshness check failed", zap.Error(err))
		st.Err = softened(err)
		st.BehindBy = next.BehindBy
		next.Outcome, next.Error = "failed", st.Err.Error()
		c.save(next)
		return st, nil
	}

	next.BehindBy = behind.Count
	next.LocalHead = behind.LocalHead
	next.RemoteHead = behind.RemoteHead
	st.BehindBy = behind.Count

	if behind.Count == 0 {
		st.Current = true
		st.Outcome = mirror.UpToDate
		next.Outcome = string(mirror.UpToDate)
		c.save(next)
		return st, nil
	}

	log.Info("mirror is behind, syncing", zap.Int("behind", behind.Count))
	res, done, err := c.syncWithin(tctx)
	switch {
	case !done:
		st.Syncing = true
		next.Outcome = "syncing"
	case err != nil:
		log.Warn("sync failed", zap.Error(err))
		st.Err = softened(err)
		st.Outcome = res.Outcome
		next.Outcome = "failed"
		if res.Outcome == mirror.Conflict {
			next.Outcome = string(mirror.Conflict)
		}
		next.Error = st.Err.Error()
	default:
		st.Current = true
		st.BehindBy = 0
		st.Outcome = res.Outcome
		next.BehindBy = 0
		next.LocalHead = res.After
		next.Outcome = string(res.Outcome)
	}
	c.save(next)
	return st, nil
}

// RecordSync stores a completed sync as the freshness state, so rate-limited
// checks stop reporting the mirror as behind once a sync outside Check (a
// detached child, a manual sync, an install) has caught it up. The time of
// the last remote check is kept.
func RecordSync(state StateStore, res mirror.Result, now time.Time) error {
	next := &store.FreshnessState{
		LastChecked: now,
		LocalHead:   res.After,
		RemoteHead:  res.After,
		Outcome:     string(res.Outcome),
	}
	prev, err := state.GetFreshness()
	switch {
	case err == nil:
		next.LastChecked = prev.LastChecked
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	return state.SaveFreshness(next)
}

// syncWithin runs the syncer in a goroutine and waits until ctx is done.
// done is false when the wait timed out.
func (c *Checker) syncWithin(ctx context.Context) (mirror.Result, bool, error) {
	type result struct {
		res mirror.Result
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := c.Syncer.Sync(ctx)
		ch <- result{res, err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, context.DeadlineExceeded) || errors.Is(r.err, context.Canceled) {
			return r.res, false, r.err
		}
		return r.res, true, r.err
	case <-ctx.Done():
		return mirror.Result{}, false, ctx.Err()
	}
}

func (c *Checker) save(st *store.FreshnessState) {
	if err := c.State.SaveFreshness(st); err != nil {
		c.logger().Warn("failed to save freshness state", zap.Error(err))
	}
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checker) interval() time.Duration {
	if c.Interval < 0 {
		return 0
	}
	if c.Interval == 0 {
		return DefaultInterval
	}
	return c.Interval
}

func (c *Checker) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Checker) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// hard reports errors that mean the install itself is broken.
func hard(err error) bool {
	switch fault.KindOf(err) {
	case fault.KindUnexpectedLayout, fault.KindPrerequisiteMissing:
		return true
	}
	return false
}

// softened gives a timeout a network kind so callers can treat it alike.
func softened(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && fault.KindOf(err) == fault.KindUnknown {
		return fault.New(fault.KindNetwork, "freshness check", err)
	}
	return err
}
