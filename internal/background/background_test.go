package background

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/store"
)

// TestHelperProcess is not a real test. It is the detached child started
// by the Spawner tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("DOCMIRROR_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}

	err := RunChild(os.Getenv("DOCMIRROR_HELPER_PID"), func() error {
		switch os.Getenv("DOCMIRROR_HELPER_MODE") {
		case "touch":
			return os.WriteFile(os.Getenv("DOCMIRROR_HELPER_OUT"), []byte("done"), 0o644)
		case "sleep":
			time.Sleep(1500 * time.Millisecond)
		case "sync":
			db, err := store.Open(os.Getenv("DOCMIRROR_HELPER_DB"))
			if err != nil {
				return err
			}
			defer db.Close()
			id := ""
			for i := 0; i+1 < len(args); i++ {
				if args[i] == "--event-id" {
					id = args[i+1]
				}
			}
			now := time.Now()
			return db.InsertSyncEvent(&store.SyncEvent{
				ID: id, Trigger: store.TriggerFreshness, Outcome: "pulled",
				HeadBefore: "aaa", HeadAfter: "bbb", StartedAt: now, FinishedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func helperSpawner(t *testing.T, mode string, env ...string) *Spawner {
	t.Helper()
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "sync.pid")
	return &Spawner{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestHelperProcess$", "--"},
		Env: append([]string{
			"DOCMIRROR_HELPER_PROCESS=1",
			"DOCMIRROR_HELPER_MODE=" + mode,
			"DOCMIRROR_HELPER_PID=" + pidFile,
		}, env...),
		PIDFile: pidFile,
		LogFile: filepath.Join(dir, "sync.log"),
	}
}

func TestIsRunning_NotRunning(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")

	running, pid, err := IsRunning(pidFile)
	if err != nil {
		t.Errorf("IsRunning() error = %v, want nil", err)
	}
	if running || pid != 0 {
		t.Error("IsRunning() = true, want false for non-existent PID file")
	}
}

func TestIsRunning_WithCurrentProcess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")

	pid := os.Getpid()
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	running, got, err := IsRunning(pidFile)
	if err != nil {
		t.Errorf("IsRunning() error = %v, want nil", err)
	}
	if !running || got != pid {
		t.Errorf("IsRunning() = %v, %d; want true, %d", running, got, pid)
	}
}

func TestIsRunning_WithDeadProcess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")

	// A PID far above typical pid_max.
	if err := os.WriteFile(pidFile, []byte("99999999\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	running, _, err := IsRunning(pidFile)
	if err != nil {
		t.Errorf("IsRunning() error = %v, want nil", err)
	}
	if running {
		t.Error("IsRunning() = true, want false for dead process")
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("stale PID file should be removed")
	}
}

func TestIsRunning_InvalidPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")
	if err := os.WriteFile(pidFile, []byte("not-a-pid"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	running, _, err := IsRunning(pidFile)
	if err != nil || running {
		t.Errorf("IsRunning() = %v, %v; want false, nil", running, err)
	}
}

func TestRunChild_RemovesOwnPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "sub", "child.pid")

	called := false
	err := RunChild(pidFile, func() error {
		called = true
		pid, err := ReadPID(pidFile)
		if err != nil || pid != os.Getpid() {
			t.Errorf("PID file holds %d (%v), want %d", pid, err, os.Getpid())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunChild() error = %v", err)
	}
	if !called {
		t.Fatal("RunChild() did not call fn")
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file should be removed after fn returns")
	}
}

func TestRunChild_KeepsForeignPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	wantErr := errors.New("boom")
	err := RunChild(pidFile, func() error {
		// Another child took over the file.
		return errors.Join(wantErr, os.WriteFile(pidFile, []byte("1\n"), 0644))
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("RunChild() error = %v, want %v", err, wantErr)
	}
	if pid, _ := ReadPID(pidFile); pid != 1 {
		t.Errorf("foreign PID file was removed or changed: %d", pid)
	}
}

func TestSpawner_StartAndWait(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	s := helperSpawner(t, "touch", "DOCMIRROR_HELPER_OUT="+out)

	child, err := s.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if child.PID <= 0 {
		t.Errorf("child PID = %d", child.PID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := child.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil || string(data) != "done" {
		t.Errorf("child output = %q, %v", data, err)
	}
	if running, _, _ := IsRunning(s.PIDFile); running {
		t.Error("PID file should not name a live process after exit")
	}
}

func TestSpawner_RefusesSecondChild(t *testing.T) {
	s := helperSpawner(t, "sleep")

	child, err := s.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	// A short wait gives up without stopping the child.
	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := child.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}

	long, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := s.WaitForExit(long); err != nil {
		t.Fatalf("WaitForExit() error = %v", err)
	}
	if err := child.Wait(long); err != nil {
		t.Errorf("child exited with %v", err)
	}
}

func TestDetachedSyncer(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer db.Close()

	d := &DetachedSyncer{
		Spawner: helperSpawner(t, "sync", "DOCMIRROR_HELPER_DB="+dbPath),
		Events:  db,
		Trigger: store.TriggerFreshness,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := d.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	want := mirror.Result{Outcome: mirror.Pulled, Before: "aaa", After: "bbb"}
	if res != want {
		t.Errorf("Sync() = %+v, want %+v", res, want)
	}
}

func TestResultOf_Error(t *testing.T) {
	res, err := resultOf(&store.SyncEvent{Outcome: "conflict", HeadBefore: "a", HeadAfter: "a", Error: "local changes"})
	if err == nil || err.Error() != "local changes" {
		t.Errorf("resultOf() error = %v", err)
	}
	if res.Outcome != mirror.Conflict {
		t.Errorf("resultOf() outcome = %s", res.Outcome)
	}
}
