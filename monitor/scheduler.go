package monitor

import (
	"context"
	"log/slog"
	"time"
)

// RunScheduler starts a scan immediately and then on every interval until ctx ends.
func (m *Monitor) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.trigger()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			m.trigger()
		}
	}
}

func (m *Monitor) trigger() {
	status := m.StartScan(false)
	m.logger.Debug("scheduled scan triggered",
		slog.String("scan_id", status.ScanID),
		slog.String("status", string(status.Status)),
	)
}
