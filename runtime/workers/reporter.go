package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*ReporterWorker)(nil)

type Reporter interface {
	Report()
}

// ReporterWorker logs the relay counters periodically until context cancellation.
type ReporterWorker struct {
	log      *slog.Logger
	reporter Reporter
	interval time.Duration
}

func NewReporterWorker(log *slog.Logger, reporter Reporter, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, reporter: reporter, interval: interval}
}

func (w *ReporterWorker) GetName() contract.WorkerName { return "ReporterWorker" }

func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Reporter stopped")
			return ctx.Err()
		case <-ticker.C:
			w.reporter.Report()
		}
	}
}
