// Package governor provides per-service admission control for outbound API
// calls. Each registered service owns an independent queue enforcing a
// maximum number of concurrent in-flight calls, a minimum spacing between
// call starts, and a refillable token-bucket budget (the reservoir). Queued
// operations are released highest-priority first; ties keep enqueue order.
package governor

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrShutdown is returned by Do and Register after Shutdown, and
	// delivered to operations still queued when Shutdown runs.
	ErrShutdown = errors.New("governor is shut down")

	// ErrQueueCleared is delivered to operations rejected by ClearQueue.
	ErrQueueCleared = errors.New("queue cleared")
)

// Config holds the admission limits for one named service. Zero values
// disable the corresponding dimension.
type Config struct {
	// MaxConcurrent is the upper bound on simultaneous in-flight calls.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MinInterval is the minimum spacing between call starts.
	MinInterval time.Duration `mapstructure:"min_interval"`
	// Reservoir is the initial token-bucket budget; one token is consumed
	// per call start. It is also the cap the refill never exceeds.
	Reservoir int `mapstructure:"reservoir"`
	// ReservoirRefreshAmount tokens are added every ReservoirRefreshInterval.
	ReservoirRefreshAmount   int           `mapstructure:"reservoir_refresh_amount"`
	ReservoirRefreshInterval time.Duration `mapstructure:"reservoir_refresh_interval"`
}

// Metrics is a point-in-time snapshot of one service queue. Each read
// returns an independent copy, never a live reference.
type Metrics struct {
	TotalRequests   uint64
	FailedRequests  uint64
	QueuedRequests  int
	RunningRequests int
	LastError       string
	LastRequestTime time.Time
}

const (
	stateQueued = iota
	stateAdmitted
	stateCancelled
	stateRejected
)

type waiter struct {
	priority int
	seq      uint64
	state    int
	// ready receives nil on admission or a rejection error. Buffered so the
	// dispatcher never blocks on an abandoned waiter.
	ready chan error
}

// waiterHeap orders by priority descending, then enqueue sequence ascending.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *waiterHeap) Push(x any)        { *h = append(*h, x.(*waiter)) }
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

type service struct {
	name      string
	cfg       Config
	queue     waiterHeap
	running   int
	reservoir int
	hasBucket bool
	lastStart time.Time
	metrics   Metrics
	// timerSet marks a pending MinInterval re-dispatch so only one
	// time.AfterFunc is outstanding per service.
	timerSet   bool
	refillStop chan struct{}
}

// Governor multiplexes named service queues. All shared state (queues,
// reservoirs, counters) is guarded by a single mutex, so exactly one
// dispatch decision happens at a time for any service.
type Governor struct {
	mu       sync.Mutex
	services map[string]*service
	closed   bool
	seq      uint64
	inflight sync.WaitGroup
	log      zerolog.Logger
}

// New creates an empty governor logging through log.
func New(log zerolog.Logger) *Governor {
	return &Governor{
		services: make(map[string]*service),
		log:      log.With().Str("component", "governor").Logger(),
	}
}

// Register adds a named queue. Registering a name twice or registering
// after Shutdown is an error.
func (g *Governor) Register(name string, cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrShutdown
	}
	if _, ok := g.services[name]; ok {
		return fmt.Errorf("service %q already registered", name)
	}

	s := &service{
		name:      name,
		cfg:       cfg,
		reservoir: cfg.Reservoir,
		hasBucket: cfg.Reservoir > 0,
	}
	g.services[name] = s

	if s.hasBucket && cfg.ReservoirRefreshAmount > 0 && cfg.ReservoirRefreshInterval > 0 {
		s.refillStop = make(chan struct{})
		go g.refillLoop(s)
	}

	g.log.Debug().
		Str("service", name).
		Int("max_concurrent", cfg.MaxConcurrent).
		Dur("min_interval", cfg.MinInterval).
		Int("reservoir", cfg.Reservoir).
		Msg("registered service queue")
	return nil
}

// Do enqueues op against the named service's limits and runs it once
// admitted, returning op's own error. Higher priority values are released
// first; equal priorities keep FIFO order. Do blocks until the operation
// finishes, the queue rejects it, or ctx is cancelled while still queued.
func (g *Governor) Do(ctx context.Context, name string, priority int, op func(context.Context) error) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrShutdown
	}
	s, ok := g.services[name]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("service %q not registered", name)
	}

	g.seq++
	w := &waiter{priority: priority, seq: g.seq, ready: make(chan error, 1)}
	heap.Push(&s.queue, w)
	s.metrics.QueuedRequests++
	s.metrics.TotalRequests++
	g.dispatch(s)
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		g.mu.Lock()
		if w.state == stateQueued {
			// Still queued: abandon the slot; dispatch skips it lazily.
			w.state = stateCancelled
			s.metrics.QueuedRequests--
			g.mu.Unlock()
			return ctx.Err()
		}
		g.mu.Unlock()
		// Admitted between cancellation and lock acquisition; fall through
		// and honour the admission.
		if err := <-w.ready; err != nil {
			return err
		}
	case err := <-w.ready:
		if err != nil {
			return err
		}
	}

	opErr := op(ctx)

	g.mu.Lock()
	s.running--
	s.metrics.RunningRequests--
	if opErr != nil {
		s.metrics.FailedRequests++
		s.metrics.LastError = opErr.Error()
	}
	g.dispatch(s)
	g.mu.Unlock()
	g.inflight.Done()

	return opErr
}

// dispatch releases every currently eligible waiter for s. Callers must
// hold g.mu.
func (g *Governor) dispatch(s *service) {
	for s.queue.Len() > 0 {
		if s.cfg.MaxConcurrent > 0 && s.running >= s.cfg.MaxConcurrent {
			return
		}
		if s.hasBucket && s.reservoir < 1 {
			return
		}
		now := time.Now()
		if s.cfg.MinInterval > 0 && !s.lastStart.IsZero() {
			if wait := s.cfg.MinInterval - now.Sub(s.lastStart); wait > 0 {
				if !s.timerSet {
					s.timerSet = true
					time.AfterFunc(wait, func() {
						g.mu.Lock()
						s.timerSet = false
						g.dispatch(s)
						g.mu.Unlock()
					})
				}
				return
			}
		}

		w := heap.Pop(&s.queue).(*waiter)
		if w.state != stateQueued {
			continue // cancelled or rejected, already accounted for
		}

		w.state = stateAdmitted
		if s.hasBucket {
			s.reservoir--
		}
		s.running++
		s.lastStart = now
		s.metrics.QueuedRequests--
		s.metrics.RunningRequests++
		s.metrics.LastRequestTime = now
		g.inflight.Add(1)
		w.ready <- nil
	}
}

// refillLoop adds ReservoirRefreshAmount tokens every refresh interval,
// capped at the configured Reservoir, until the service is torn down.
func (g *Governor) refillLoop(s *service) {
	ticker := time.NewTicker(s.cfg.ReservoirRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.refillStop:
			return
		case <-ticker.C:
			g.mu.Lock()
			s.reservoir += s.cfg.ReservoirRefreshAmount
			if s.reservoir > s.cfg.Reservoir {
				s.reservoir = s.cfg.Reservoir
			}
			g.dispatch(s)
			g.mu.Unlock()
		}
	}
}

// ClearQueue rejects all queued (not yet started) operations for the named
// service with ErrQueueCleared. In-flight operations are unaffected.
func (g *Governor) ClearQueue(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.services[name]
	if !ok {
		return fmt.Errorf("service %q not registered", name)
	}
	cleared := g.rejectQueued(s, ErrQueueCleared)
	g.log.Info().Str("service", name).Int("cleared", cleared).Msg("queue cleared")
	return nil
}

// rejectQueued delivers err to every queued waiter of s and empties the
// heap. Callers must hold g.mu. Returns the number of waiters rejected.
func (g *Governor) rejectQueued(s *service, err error) int {
	cleared := 0
	for _, w := range s.queue {
		if w.state == stateQueued {
			w.state = stateRejected
			w.ready <- err
			cleared++
		}
	}
	s.queue = s.queue[:0]
	s.metrics.QueuedRequests = 0
	return cleared
}

// GetMetrics returns an independent snapshot of the named service's counters.
func (g *Governor) GetMetrics(name string) (Metrics, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.services[name]
	if !ok {
		return Metrics{}, fmt.Errorf("service %q not registered", name)
	}
	return s.metrics, nil
}

// Shutdown rejects all queued operations, stops accepting new ones, and
// waits for in-flight operations to drain.
func (g *Governor) Shutdown() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	for _, s := range g.services {
		g.rejectQueued(s, ErrShutdown)
		if s.refillStop != nil {
			close(s.refillStop)
		}
	}
	g.mu.Unlock()

	g.inflight.Wait()
	g.log.Info().Msg("governor drained")
}
