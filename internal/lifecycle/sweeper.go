package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"mcpbridge/internal/events"
	"mcpbridge/internal/instance"
	"mcpbridge/pkg/logging"
)

// sweepTimeout bounds one full sweep pass; a manager stuck terminating a
// process must not wedge the schedule forever.
const sweepTimeout = 5 * time.Minute

// Sweeper periodically runs every manager's cleanup pass. Ticks that arrive
// while a sweep is still in flight are skipped, so a slow pass never stacks
// up concurrent sweeps of the same pools.
type Sweeper struct {
	managers []instance.Manager
	interval time.Duration
	events   *events.Generator

	mu       sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
	sweeping atomic.Bool
}

// NewSweeper creates a sweeper over the given managers. The interval is the
// tick frequency; it is not started until Start is called.
func NewSweeper(managers []instance.Manager, interval time.Duration, eventGen *events.Generator) *Sweeper {
	return &Sweeper{
		managers: managers,
		interval: interval,
		events:   eventGen,
	}
}

// Start launches the periodic sweep. Calling Start on a running sweeper is a
// no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.wg.Add(1)

	stopCh := s.stopCh
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logging.Info("Cleanup", "Background sweep started (interval %s)", s.interval)
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop halts the periodic sweep and waits for an in-flight tick to finish.
// Calling Stop on a stopped sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info("Cleanup", "Background sweep stopped")
}

func (s *Sweeper) tick() {
	if !s.sweeping.CompareAndSwap(false, true) {
		logging.Warn("Cleanup", "Previous sweep still running, skipping this tick")
		return
	}
	defer s.sweeping.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if removed, err := s.sweep(ctx); err != nil {
		logging.Error("Cleanup", err, "Sweep finished with errors (%d instances removed)", removed)
	} else if removed > 0 {
		logging.Info("Cleanup", "Sweep removed %d instances", removed)
	}
}

// RunOnce performs a single sweep pass outside the schedule. It shares the
// in-flight guard with the timer: a pass already running is not doubled, the
// call reports zero removals instead.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		logging.Debug("Cleanup", "Sweep already in flight, skipping manual pass")
		return 0, nil
	}
	defer s.sweeping.Store(false)
	return s.sweep(ctx)
}

// sweep runs all managers' cleanup concurrently. One manager failing does
// not abort the others; the first error is returned after all finish.
func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	s.events.Emit(events.ReasonCleanupStarted, events.EventData{})

	var removed atomic.Int64
	var g errgroup.Group
	for _, m := range s.managers {
		g.Go(func() error {
			n, err := m.Cleanup(ctx)
			removed.Add(int64(n))
			if err != nil {
				s.events.Emit(events.ReasonCleanupError, events.EventData{
					Mode:  m.Mode(),
					Error: err.Error(),
				})
				logging.Error("Cleanup", err, "Cleanup failed for %s manager", m.Mode())
			}
			return err
		})
	}
	err := g.Wait()

	s.events.Emit(events.ReasonCleanupCompleted, events.EventData{
		RemovedCount: int(removed.Load()),
	})
	logging.Debug("Cleanup", "Sweep complete, removed %d", removed.Load())
	return int(removed.Load()), err
}
