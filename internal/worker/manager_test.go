package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := NewManager(context.Background(), cfg)
	t.Cleanup(m.Close)
	return m
}

func waitQueued(t *testing.T, m *Manager, sessionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		w := m.workers[sessionID]
		queued := 0
		if w != nil {
			queued = len(w.taskCh)
		}
		m.mu.Unlock()
		if queued == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue for %s never reached %d", sessionID, n)
}

func TestSubmitReturnsTaskResult(t *testing.T) {
	m := newTestManager(t, Config{})
	want := errors.New("boom")
	if err := m.Submit(context.Background(), "s1", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected task error, got %v", err)
	}
	if err := m.Submit(context.Background(), "s1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSameSessionTasksRunInOrderWithoutOverlap(t *testing.T) {
	m := newTestManager(t, Config{QueueSize: 32})

	var (
		mu      sync.Mutex
		order   []int
		running int32
		overlap atomic.Bool
	)
	block := make(chan struct{})
	first := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.Submit(context.Background(), "s1", func(context.Context) error {
			close(first)
			<-block
			mu.Lock()
			order = append(order, 0)
			mu.Unlock()
			return nil
		})
	}()
	<-first

	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Submit(context.Background(), "s1", func(context.Context) error {
				if atomic.AddInt32(&running, 1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
		// enqueue one at a time so the expected order is known
		waitQueued(t, m, "s1", i)
	}
	close(block)
	wg.Wait()

	if overlap.Load() {
		t.Fatalf("tasks for one session overlapped")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("execution order = %v", order)
		}
	}
}

func TestDifferentSessionsRunConcurrently(t *testing.T) {
	m := newTestManager(t, Config{})
	block := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = m.Submit(context.Background(), "slow", func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started
	defer close(block)

	done := make(chan error, 1)
	go func() {
		done <- m.Submit(context.Background(), "fast", func(context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("fast session: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("fast session was blocked by slow session")
	}
}

func TestSubmitQueueFull(t *testing.T) {
	m := newTestManager(t, Config{QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{})
	defer close(block)

	go func() {
		_ = m.Submit(context.Background(), "s1", func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started
	go func() {
		_ = m.Submit(context.Background(), "s1", func(context.Context) error { return nil })
	}()
	waitQueued(t, m, "s1", 1)

	err := m.Submit(context.Background(), "s1", func(context.Context) error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestStopFailsQueuedTasks(t *testing.T) {
	m := newTestManager(t, Config{})
	block := make(chan struct{})
	started := make(chan struct{})
	firstDone := make(chan error, 1)
	queuedDone := make(chan error, 1)

	go func() {
		firstDone <- m.Submit(context.Background(), "s1", func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started
	go func() {
		queuedDone <- m.Submit(context.Background(), "s1", func(context.Context) error {
			t.Errorf("queued task must not run after stop")
			return nil
		})
	}()
	waitQueued(t, m, "s1", 1)

	m.Stop("s1")
	close(block)

	if err := <-firstDone; err != nil {
		t.Fatalf("running task should finish, got %v", err)
	}
	if err := <-queuedDone; !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if m.Active() != 0 {
		t.Fatalf("worker not removed")
	}
	// a later submit starts a fresh worker
	if err := m.Submit(context.Background(), "s1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit after stop: %v", err)
	}
}

func TestCancelledContextSkipsQueuedTask(t *testing.T) {
	m := newTestManager(t, Config{})
	block := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = m.Submit(context.Background(), "s1", func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- m.Submit(ctx, "s1", func(context.Context) error {
			ran.Store(true)
			return nil
		})
	}()
	waitQueued(t, m, "s1", 1)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(block)

	// the next task observes the skipped one
	if err := m.Submit(context.Background(), "s1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ran.Load() {
		t.Fatalf("cancelled task ran")
	}
}

func TestIdleWorkerExpires(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: 20 * time.Millisecond})
	if err := m.Submit(context.Background(), "s1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for m.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle worker did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPanicBecomesError(t *testing.T) {
	m := newTestManager(t, Config{})
	err := m.Submit(context.Background(), "s1", func(context.Context) error { panic("bad turn") })
	if err == nil {
		t.Fatalf("expected error from panicking task")
	}
	if err := m.Submit(context.Background(), "s1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("worker should survive a panic: %v", err)
	}
}

func TestClosedManagerRejects(t *testing.T) {
	m := NewManager(context.Background(), Config{})
	m.Close()
	if err := m.Submit(context.Background(), "s1", func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	// without redis EndSession is a local stop
	m.EndSession(context.Background(), "s1")
}
