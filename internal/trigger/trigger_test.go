package trigger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerialize_NoOverlap(t *testing.T) {
	var inFlight, maxInFlight, calls atomic.Int32
	run := Serialize(func(ctx context.Context, reason string) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = run(context.Background(), "test")
		}()
	}
	wg.Wait()

	if calls.Load() != 8 {
		t.Fatalf("calls = %d, want 8", calls.Load())
	}
	if maxInFlight.Load() != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", maxInFlight.Load())
	}
}

func TestSerialize_PassesError(t *testing.T) {
	boom := errors.New("boom")
	run := Serialize(func(context.Context, string) error { return boom })
	if err := run(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestWatch_RunsOnMatchingChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, 10*time.Millisecond,
			func(name string) bool { return strings.HasSuffix(name, ".csv") },
			func(_ context.Context, reason string) error {
				runs <- reason
				return nil
			})
	}()

	// non-matching files never trigger
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case r := <-runs:
		t.Fatalf("unexpected run %q for a non-matching file", r)
	default:
	}

	// the watcher may not be registered yet, so keep writing until a run
	deadline = time.Now().Add(3 * time.Second)
	var got string
	for got == "" && time.Now().Before(deadline) {
		_ = os.WriteFile(filepath.Join(dir, "a.csv"), []byte("a\n1\n"), 0o644)
		select {
		case got = <-runs:
		case <-time.After(50 * time.Millisecond):
		}
	}
	if got != "watch" {
		t.Fatalf("reason = %q, want watch", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Millisecond, nil,
		func(context.Context, string) error { return nil })
	if err == nil {
		t.Fatal("expected error for a missing directory")
	}
}

func TestSchedule_InvalidSpec(t *testing.T) {
	err := Schedule(context.Background(), "every day", func(context.Context, string) error { return nil })
	if err == nil {
		t.Fatal("expected error for an invalid spec")
	}
}

func TestSchedule_Runs(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Schedule(ctx, "@every 1s", func(_ context.Context, reason string) error {
			runs <- reason
			return nil
		})
	}()

	select {
	case r := <-runs:
		if r != "schedule" {
			t.Fatalf("reason = %q, want schedule", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no scheduled run within 3s")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Schedule() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule did not return after cancel")
	}
}
