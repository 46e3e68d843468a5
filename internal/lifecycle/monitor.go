package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"mcpbridge/internal/api"
	"mcpbridge/internal/instance"
	"mcpbridge/internal/metrics"
	"mcpbridge/pkg/logging"
)

// DefaultMonitorInterval is how often instances are probed and sampled.
const DefaultMonitorInterval = 30 * time.Second

// pingTimeout bounds a single liveness probe.
const pingTimeout = 5 * time.Second

// Monitor periodically probes running instances for liveness and samples
// their memory usage into the metrics recorder. A failed probe is logged but
// not acted on: the exit watcher owns crash detection, the sweeper owns
// eviction.
type Monitor struct {
	managers []instance.Manager
	recorder *metrics.Recorder
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor over the given managers. Not started until
// Start is called.
func NewMonitor(managers []instance.Manager, recorder *metrics.Recorder, interval time.Duration) *Monitor {
	return &Monitor{
		managers: managers,
		recorder: recorder,
		interval: interval,
	}
}

// Start launches the periodic probe loop. No-op when already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.wg.Add(1)

	stopCh := m.stopCh
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		logging.Info("Monitor", "Instance monitoring started (interval %s)", m.interval)
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
}

// Stop halts the probe loop. No-op when already stopped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopCh == nil {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.stopCh = nil
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info("Monitor", "Instance monitoring stopped")
}

func (m *Monitor) tick() {
	for _, mgr := range m.managers {
		for _, inst := range mgr.ListInstances(nil) {
			if inst.Status() != api.StatusRunning {
				continue
			}
			m.probe(inst)
		}
	}
}

func (m *Monitor) probe(inst *instance.Instance) {
	if c := inst.Client(); c != nil {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			logging.Warn("Monitor", "Liveness probe failed for instance %s (%s): %v", inst.ID(), inst.Key().String(), err)
		}
	}

	if pid := inst.PID(); pid > 0 {
		if memMB, err := residentMemoryMB(pid); err == nil {
			m.recorder.RecordMemory(inst.ID(), memMB)
		}
	}
}

// residentMemoryMB reads a process's resident set size from /proc. On
// platforms without procfs the sample is simply skipped.
func residentMemoryMB(pid int) (float64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("unexpected statm format")
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(pages) * float64(os.Getpagesize()) / (1024 * 1024), nil
}
