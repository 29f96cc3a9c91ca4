package queue

import (
	"context"
	"log/slog"
	"time"
)

// runOrphanDetection periodically asks the configured OrphanScanner to
// reclaim rows whose owning pod stopped heartbeating. Every pod in the
// deployment runs this independently; recovery is idempotent because it
// only touches rows already past the staleness threshold.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.scanOnce(ctx)
		}
	}
}

func (p *WorkerPool) scanOnce(ctx context.Context) {
	threshold := time.Now().Add(-p.config.OrphanThreshold)

	recovered, err := p.orphans.ScanAndRecover(ctx, threshold)
	if err != nil {
		slog.Error("orphan scan failed", "role", p.role, "error", err)
		return
	}

	if recovered > 0 {
		slog.Warn("recovered orphaned rows", "role", p.role, "count", recovered)
	}

	p.scanState.mu.Lock()
	p.scanState.lastScan = time.Now()
	p.scanState.recovered += recovered
	p.scanState.mu.Unlock()
}
