package workers

import (
	"chat-relay/contract"
	"context"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.Worker = (*JanitorWorker)(nil)

// Sweeper releases the resources left idle, it returns how many were released.
type Sweeper interface {
	Sweep() int
}

// JanitorWorker sweeps periodically until context cancellation.
type JanitorWorker struct {
	log      *slog.Logger
	sweeper  Sweeper
	interval time.Duration
}

func NewJanitorWorker(log *slog.Logger, sweeper Sweeper, interval time.Duration) *JanitorWorker {
	return &JanitorWorker{log: log, sweeper: sweeper, interval: interval}
}

func (w *JanitorWorker) GetName() contract.WorkerName { return "JanitorWorker" }

func (w *JanitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if swept := w.sweeper.Sweep(); swept > 0 {
				w.log.Debug(fmt.Sprintf("%d idle conversations released", swept))
			}
		}
	}
}
