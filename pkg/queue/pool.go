package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/deepsoc/pkg/config"
)

// WorkerPool manages a fixed-size pool of workers for a single role,
// plus that role's orphan detection loop when one is configured.
type WorkerPool struct {
	role     string
	podID    string
	config   config.QueueConfig
	executor RoleExecutor
	orphans  OrphanScanner

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	scanState struct {
		mu        sync.Mutex
		lastScan  time.Time
		recovered int
	}
}

// NewWorkerPool creates a worker pool for the given role. orphans may be
// nil when the role has no orphan-recovery story.
func NewWorkerPool(role, podID string, cfg config.QueueConfig, executor RoleExecutor, orphans OrphanScanner) *WorkerPool {
	return &WorkerPool{
		role:     role,
		podID:    podID,
		config:   cfg,
		executor: executor,
		orphans:  orphans,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the worker goroutines and, if configured, the orphan scan
// loop. Safe to call only once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started", "role", p.role, "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("starting worker pool", "role", p.role, "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		id := fmt.Sprintf("%s-%s-%d", p.role, p.podID, i)
		w := newWorker(id, p.podID, p.config, p.executor)
		p.workers = append(p.workers, w)
		w.start(ctx)
	}

	if p.orphans != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runOrphanDetection(ctx)
		}()
	}
}

// Stop signals every worker (and the orphan scanner) to stop and waits
// for in-flight work to finish.
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool", "role", p.role, "pod_id", p.podID)

	for _, w := range p.workers {
		w.stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("worker pool stopped", "role", p.role, "pod_id", p.podID)
}

// Health reports the current pool health for the HTTP health endpoint.
func (p *WorkerPool) Health() PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.health()
		stats[i] = h
		if h.Status == string(workerStatusWorking) {
			active++
		}
	}

	p.scanState.mu.Lock()
	recovered := p.scanState.recovered
	lastScan := p.scanState.lastScan
	p.scanState.mu.Unlock()

	return PoolHealth{
		PodID:            p.podID,
		Role:             p.role,
		ActiveWorkers:    active,
		TotalWorkers:     len(p.workers),
		WorkerStats:      stats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}
