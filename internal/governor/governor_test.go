package governor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestGovernor(t *testing.T) *Governor {
	t.Helper()
	return New(zerolog.Nop())
}

func TestDo_UnregisteredService(t *testing.T) {
	g := newTestGovernor(t)
	err := g.Do(context.Background(), "nope", 0, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for unregistered service")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := g.Register("llm", Config{}); err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestDo_RunsOperation(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{MaxConcurrent: 2}); err != nil {
		t.Fatal(err)
	}

	ran := false
	err := g.Do(context.Background(), "llm", 0, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("operation did not run")
	}
}

func TestDo_PropagatesOperationError(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{}); err != nil {
		t.Fatal(err)
	}

	want := errors.New("provider exploded")
	err := g.Do(context.Background(), "llm", 0, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}

	m, err := g.GetMetrics("llm")
	if err != nil {
		t.Fatal(err)
	}
	if m.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", m.FailedRequests)
	}
	if m.LastError != "provider exploded" {
		t.Errorf("unexpected LastError: %q", m.LastError)
	}
}

func TestDo_MaxConcurrentNeverExceeded(t *testing.T) {
	g := newTestGovernor(t)
	const maxConcurrent = 3
	if err := g.Register("llm", Config{MaxConcurrent: maxConcurrent}); err != nil {
		t.Fatal(err)
	}

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), "llm", 0, func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > maxConcurrent {
		t.Errorf("observed %d concurrent operations, limit is %d", p, maxConcurrent)
	}
}

func TestDo_MinIntervalSpacing(t *testing.T) {
	g := newTestGovernor(t)
	const interval = 30 * time.Millisecond
	if err := g.Register("llm", Config{MaxConcurrent: 5, MinInterval: interval}); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), "llm", 0, func(context.Context) error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < len(starts); i++ {
		// Small tolerance for scheduling jitter between admission and the
		// operation recording its own start time.
		if gap := starts[i].Sub(starts[i-1]); gap < interval-10*time.Millisecond {
			t.Errorf("starts %d and %d only %v apart, want ≥%v", i-1, i, gap, interval)
		}
	}
}

func TestDo_PriorityOrder(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{MaxConcurrent: 1}); err != nil {
		t.Fatal(err)
	}

	// Occupy the single slot so subsequent operations queue up.
	release := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), "llm", 0, func(context.Context) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	enqueue := func(priority int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), "llm", priority, func(context.Context) error {
				mu.Lock()
				order = append(order, priority)
				mu.Unlock()
				return nil
			})
		}()
	}

	enqueue(0)
	time.Sleep(10 * time.Millisecond)
	enqueue(5)
	time.Sleep(10 * time.Millisecond)
	enqueue(1)
	time.Sleep(10 * time.Millisecond)

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []int{5, 1, 0}
	for i, p := range want {
		if order[i] != p {
			t.Fatalf("dequeue order %v, want %v", order, want)
		}
	}
}

func TestDo_ReservoirExhaustionAndRefill(t *testing.T) {
	g := newTestGovernor(t)
	err := g.Register("llm", Config{
		MaxConcurrent:            10,
		Reservoir:                2,
		ReservoirRefreshAmount:   2,
		ReservoirRefreshInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	var done atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), "llm", 0, func(context.Context) error {
				done.Add(1)
				return nil
			})
		}()
	}

	// Only the initial two tokens should be consumable immediately.
	time.Sleep(25 * time.Millisecond)
	if n := done.Load(); n > 2 {
		t.Errorf("%d operations ran before refill, reservoir was 2", n)
	}

	wg.Wait()
	if done.Load() != 4 {
		t.Errorf("expected all 4 operations to finish, got %d", done.Load())
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("all operations finished in %v, refill cadence not respected", elapsed)
	}
}

func TestClearQueue_RejectsQueuedOnly(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{MaxConcurrent: 1}); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	blocked := make(chan struct{})
	inflightErr := make(chan error, 1)
	go func() {
		inflightErr <- g.Do(context.Background(), "llm", 0, func(context.Context) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	queuedErr := make(chan error, 1)
	go func() {
		queuedErr <- g.Do(context.Background(), "llm", 0, func(context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	if err := g.ClearQueue("llm"); err != nil {
		t.Fatal(err)
	}
	if err := <-queuedErr; !errors.Is(err, ErrQueueCleared) {
		t.Errorf("queued op: expected ErrQueueCleared, got %v", err)
	}

	close(release)
	if err := <-inflightErr; err != nil {
		t.Errorf("in-flight op should finish cleanly, got %v", err)
	}
}

func TestShutdown_RejectsNewAndQueued(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{MaxConcurrent: 1}); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	blocked := make(chan struct{})
	inflightDone := make(chan error, 1)
	go func() {
		inflightDone <- g.Do(context.Background(), "llm", 0, func(context.Context) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	queuedErr := make(chan error, 1)
	go func() {
		queuedErr <- g.Do(context.Background(), "llm", 0, func(context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	shutdownDone := make(chan struct{})
	go func() {
		g.Shutdown()
		close(shutdownDone)
	}()

	if err := <-queuedErr; !errors.Is(err, ErrShutdown) {
		t.Errorf("queued op: expected ErrShutdown, got %v", err)
	}

	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned before in-flight operation drained")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-shutdownDone

	if err := <-inflightDone; err != nil {
		t.Errorf("in-flight op should drain cleanly, got %v", err)
	}
	if err := g.Do(context.Background(), "llm", 0, func(context.Context) error { return nil }); !errors.Is(err, ErrShutdown) {
		t.Errorf("Do after Shutdown: expected ErrShutdown, got %v", err)
	}
}

func TestDo_ContextCancelledWhileQueued(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{MaxConcurrent: 1}); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), "llm", 0, func(context.Context) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Do(ctx, "llm", 0, func(context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	close(release)
}

func TestGetMetrics_SnapshotCounts(t *testing.T) {
	g := newTestGovernor(t)
	if err := g.Register("llm", Config{MaxConcurrent: 2}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		_ = g.Do(context.Background(), "llm", 0, func(context.Context) error { return nil })
	}

	m, err := g.GetMetrics("llm")
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalRequests != 3 {
		t.Errorf("expected 3 total requests, got %d", m.TotalRequests)
	}
	if m.QueuedRequests != 0 || m.RunningRequests != 0 {
		t.Errorf("expected idle queue, got queued=%d running=%d", m.QueuedRequests, m.RunningRequests)
	}
	if m.LastRequestTime.IsZero() {
		t.Error("expected LastRequestTime to be set")
	}
}
