package freshness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProber struct {
	mu     sync.Mutex
	calls  int
	behind mirror.Behind
	err    error
	block  bool
	onCall func()
}

func (f *fakeProber) Behind(ctx context.Context, _ mirror.Target) (mirror.Behind, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall()
	}
	if f.block {
		<-ctx.Done()
		return mirror.Behind{}, ctx.Err()
	}
	return f.behind, f.err
}

type fakeSyncer struct {
	res   mirror.Result
	err   error
	block bool
	calls int
}

func (f *fakeSyncer) Sync(ctx context.Context) (mirror.Result, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return mirror.Result{}, ctx.Err()
	}
	return f.res, f.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newChecker(t *testing.T, p *fakeProber, s *fakeSyncer) (*Checker, *store.Store, *clock) {
	t.Helper()
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateSchema())

	clk := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	return &Checker{
		Target:   mirror.Target{Path: "/mirror", Branch: "main"},
		Prober:   p,
		Syncer:   s,
		State:    db,
		Interval: 3 * time.Hour,
		Timeout:  200 * time.Millisecond,
		Now:      clk.now,
	}, db, clk
}

func TestCheck_UpToDate(t *testing.T) {
	p := &fakeProber{behind: mirror.Behind{LocalHead: "abc", RemoteHead: "abc"}}
	s := &fakeSyncer{}
	c, db, clk := newChecker(t, p, s)

	st, err := c.Check(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, st.Current)
	assert.False(t, st.Skipped)
	assert.Equal(t, mirror.UpToDate, st.Outcome)
	assert.Zero(t, s.calls)

	saved, err := db.GetFreshness()
	require.NoError(t, err)
	assert.True(t, saved.LastChecked.Equal(clk.t))
	assert.Equal(t, "abc", saved.RemoteHead)
	assert.Equal(t, string(mirror.UpToDate), saved.Outcome)
}

func TestCheck_RateLimited(t *testing.T) {
	p := &fakeProber{}
	c, _, clk := newChecker(t, p, &fakeSyncer{})
	ctx := context.Background()

	_, err := c.Check(ctx, Options{})
	require.NoError(t, err)
	first := clk.t

	clk.t = clk.t.Add(time.Hour)
	st, err := c.Check(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, st.Skipped)
	assert.True(t, st.Current)
	assert.True(t, st.LastChecked.Equal(first))
	assert.Equal(t, 1, p.calls)

	st, err = c.Check(ctx, Options{Force: true})
	require.NoError(t, err)
	assert.False(t, st.Skipped)
	assert.Equal(t, 2, p.calls)

	clk.t = clk.t.Add(3*time.Hour + time.Second)
	st, err = c.Check(ctx, Options{})
	require.NoError(t, err)
	assert.False(t, st.Skipped)
	assert.Equal(t, 3, p.calls)
}

func TestCheck_RecordsAttemptBeforeContactingRemote(t *testing.T) {
	p := &fakeProber{}
	c, db, clk := newChecker(t, p, &fakeSyncer{})

	var during *store.FreshnessState
	p.onCall = func() {
		during, _ = db.GetFreshness()
	}

	_, err := c.Check(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, during)
	assert.True(t, during.LastChecked.Equal(clk.t))
	assert.Equal(t, "checking", during.Outcome)
}

func TestCheck_BehindTriggersSync(t *testing.T) {
	p := &fakeProber{behind: mirror.Behind{Count: 3, LocalHead: "old", RemoteHead: "new"}}
	s := &fakeSyncer{res: mirror.Result{Outcome: mirror.Pulled, Before: "old", After: "new"}}
	c, db, _ := newChecker(t, p, s)

	st, err := c.Check(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.calls)
	assert.True(t, st.Current)
	assert.Zero(t, st.BehindBy)
	assert.Equal(t, mirror.Pulled, st.Outcome)
	assert.NoError(t, st.Err)

	saved, err := db.GetFreshness()
	require.NoError(t, err)
	assert.Equal(t, "new", saved.LocalHead)
	assert.Zero(t, saved.BehindBy)
	assert.Equal(t, string(mirror.Pulled), saved.Outcome)
}

func TestCheck_SlowSyncIsBounded(t *testing.T) {
	p := &fakeProber{behind: mirror.Behind{Count: 2}}
	s := &fakeSyncer{block: true}
	c, db, _ := newChecker(t, p, s)

	start := time.Now()
	st, err := c.Check(context.Background(), Options{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, st.Syncing)
	assert.False(t, st.Current)
	assert.Equal(t, 2, st.BehindBy)
	assert.Less(t, elapsed, 2*time.Second)

	saved, err := db.GetFreshness()
	require.NoError(t, err)
	assert.Equal(t, "syncing", saved.Outcome)
	assert.Equal(t, 2, saved.BehindBy)
}

func TestCheck_NetworkFailureIsSoft(t *testing.T) {
	netErr := fault.New(fault.KindNetwork, "fetch", errors.New("could not resolve host"))
	p := &fakeProber{err: netErr}
	c, db, clk := newChecker(t, p, &fakeSyncer{})

	st, err := c.Check(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, fault.Is(st.Err, fault.KindNetwork))
	assert.False(t, st.Current)

	saved, err := db.GetFreshness()
	require.NoError(t, err)
	assert.True(t, saved.LastChecked.Equal(clk.t))
	assert.Equal(t, "failed", saved.Outcome)
	assert.Contains(t, saved.Error, "could not resolve host")

	// The failed attempt still counts for the rate limit.
	clk.t = clk.t.Add(time.Minute)
	st, err = c.Check(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, st.Skipped)
	assert.False(t, st.Current)
}

func TestCheck_SlowRemoteTimesOut(t *testing.T) {
	p := &fakeProber{block: true}
	c, _, _ := newChecker(t, p, &fakeSyncer{})

	st, err := c.Check(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, fault.KindNetwork, fault.KindOf(st.Err))
	assert.ErrorIs(t, st.Err, context.DeadlineExceeded)
}

func TestCheck_ConflictIsSoft(t *testing.T) {
	p := &fakeProber{behind: mirror.Behind{Count: 1}}
	dirty := fault.Errorf(fault.KindDirtyWorkingTree, "check working tree", "local changes")
	s := &fakeSyncer{res: mirror.Result{Outcome: mirror.Conflict}, err: dirty}
	c, db, _ := newChecker(t, p, s)

	st, err := c.Check(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, mirror.Conflict, st.Outcome)
	assert.True(t, fault.Is(st.Err, fault.KindDirtyWorkingTree))
	assert.Equal(t, 1, st.BehindBy)

	saved, err := db.GetFreshness()
	require.NoError(t, err)
	assert.Equal(t, string(mirror.Conflict), saved.Outcome)
}

func TestCheck_BrokenInstallIsHard(t *testing.T) {
	layout := fault.Errorf(fault.KindUnexpectedLayout, "inspect install directory", "not a working copy")
	c, _, _ := newChecker(t, &fakeProber{err: layout}, &fakeSyncer{})

	_, err := c.Check(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, fault.KindUnexpectedLayout, fault.KindOf(err))
}

func TestRecordSync_ClearsBehindAfterDetachedSync(t *testing.T) {
	p := &fakeProber{behind: mirror.Behind{Count: 3, LocalHead: "old", RemoteHead: "new"}}
	c, db, clk := newChecker(t, p, &fakeSyncer{block: true})
	ctx := context.Background()

	st, err := c.Check(ctx, Options{})
	require.NoError(t, err)
	require.True(t, st.Syncing)
	checked := clk.t

	// The background sync finishes after the check gave up waiting.
	clk.t = clk.t.Add(10 * time.Minute)
	require.NoError(t, RecordSync(db, mirror.Result{Outcome: mirror.Pulled, Before: "old", After: "new"}, clk.t))

	st, err = c.Check(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, st.Skipped)
	assert.True(t, st.Current)
	assert.Zero(t, st.BehindBy)
	assert.Equal(t, mirror.Pulled, st.Outcome)
	assert.True(t, st.LastChecked.Equal(checked), "rate limit window must not move")
	assert.Equal(t, 1, p.calls)

	saved, err := db.GetFreshness()
	require.NoError(t, err)
	assert.Equal(t, "new", saved.LocalHead)
	assert.Empty(t, saved.Error)
}

func TestRecordSync_NoPreviousCheck(t *testing.T) {
	_, db, clk := newChecker(t, &fakeProber{}, &fakeSyncer{})

	require.NoError(t, RecordSync(db, mirror.Result{Outcome: mirror.Cloned, After: "abc"}, clk.t))

	saved, err := db.GetFreshness()
	require.NoError(t, err)
	assert.True(t, saved.LastChecked.Equal(clk.t))
	assert.Zero(t, saved.BehindBy)
	assert.Equal(t, string(mirror.Cloned), saved.Outcome)
}
