package workers

import (
	"comm-rendezvous/runtime"
	"context"
	"log/slog"
	"time"
)

// ReaperWorker drops workers that stopped sending heartbeats from the scheduler's live set.
type ReaperWorker struct {
	log        *slog.Logger
	membership *runtime.Membership
	interval   time.Duration
}

func NewReaperWorker(log *slog.Logger, membership *runtime.Membership, interval time.Duration) *ReaperWorker {
	return &ReaperWorker{log: log, membership: membership, interval: interval}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping membership reaper")
			return nil
		case <-ticker.C:
			for _, id := range w.membership.Reap() {
				w.log.Warn("Worker has left the party", "worker", id)
			}
		}
	}
}
