package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/deepsoc/pkg/config"
)

type workerStatus string

const (
	workerStatusIdle    workerStatus = "idle"
	workerStatusWorking workerStatus = "working"
)

// Worker polls a RoleExecutor for claimable rows and drives each one
// through claim, heartbeat, and process.
type Worker struct {
	id       string
	podID    string
	config   config.QueueConfig
	executor RoleExecutor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        workerStatus
	currentRowID  string
	rowsProcessed int
	lastActivity  time.Time
}

func newWorker(id, podID string, cfg config.QueueConfig, executor RoleExecutor) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		config:       cfg,
		executor:     executor,
		stopCh:       make(chan struct{}),
		status:       workerStatusIdle,
		lastActivity: time.Now(),
	}
}

func (w *Worker) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentRowID:  w.currentRowID,
		RowsProcessed: w.rowsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoWorkAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing row", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	id, err := w.executor.ClaimNext(ctx, w.podID)
	if err != nil {
		return err
	}

	log := slog.With("row_id", id, "worker_id", w.id)
	log.Info("row claimed")

	w.setStatus(workerStatusWorking, id)
	defer w.setStatus(workerStatusIdle, "")

	rowCtx, cancel := context.WithTimeout(ctx, w.config.ClaimTimeout)
	defer cancel()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(rowCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, id)

	err = w.executor.Process(rowCtx, id)
	cancelHeartbeat()

	w.mu.Lock()
	w.rowsProcessed++
	w.mu.Unlock()

	if err != nil {
		log.Error("row processing returned an error", "error", err)
		return err
	}

	log.Info("row processing complete")
	return nil
}

func (w *Worker) runHeartbeat(ctx context.Context, id string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.executor.Heartbeat(ctx, id); err != nil {
				slog.Warn("heartbeat failed", "row_id", id, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter, so horizontally
// scaled pods don't all poll in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status workerStatus, rowID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRowID = rowID
	w.lastActivity = time.Now()
}
