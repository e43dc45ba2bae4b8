package workers

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker keeps a worker in the scheduler's live set.
// Every tick it reports its own process stats; a scheduler that forgot the worker
// (restart, reaped after a pause) is answered with a fresh Join.
type HeartbeatWorker struct {
	log       *slog.Logger
	id        domain.Identity
	registrar contract.Registrar
	interval  time.Duration
	sessions  func() int
}

func NewHeartbeatWorker(log *slog.Logger, id domain.Identity, registrar contract.Registrar,
	interval time.Duration, sessions func() int) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:       log,
		id:        id,
		registrar: registrar,
		interval:  interval,
		sessions:  sessions,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "worker", w.id, "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.beat(ctx, selfStats(w.log, p, w.sessions()))
		}
	}
}

func (w *HeartbeatWorker) beat(ctx context.Context, stats domain.ProcessStats) {
	callCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	err := w.registrar.Heartbeat(callCtx, w.id, stats)
	if err == nil {
		return
	}
	if !stderrors.Is(err, errors.ErrUnknownWorker) {
		w.log.Warn("Scheduler unreachable for heartbeat", "error", err)
		return
	}
	w.log.Warn("Scheduler forgot this worker, joining again", "worker", w.id)
	if err := w.registrar.Join(callCtx, w.id); err != nil {
		w.log.Error("Rejoin failed", "worker", w.id, "error", err)
	}
}

// selfStats collects memory, CPU and OS status of the given process.
// Stats that cannot be read are left at their zero value.
func selfStats(log *slog.Logger, p *process.Process, sessions int) domain.ProcessStats {
	stats := domain.ProcessStats{
		PID:       int64(p.Pid),
		PIDStatus: domain.UNKNOWN,
		Sessions:  sessions,
	}
	if mem, err := p.MemoryInfo(); err == nil {
		stats.RAM = mem.RSS
	} else {
		log.Debug("Failed to collect memory stats", "error", err)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPU = cpu
	} else {
		log.Debug("Failed to collect cpu stats", "error", err)
	}
	if status, err := p.Status(); err == nil {
		stats.PIDStatus = domain.ToStatus(status)
	}
	return stats
}
