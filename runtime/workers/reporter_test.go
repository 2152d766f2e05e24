package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	calls atomic.Int32
}

func (c *countingReporter) Report() { c.calls.Add(1) }

func TestReporterWorker_Reports_Until_Canceled(t *testing.T) {
	req := require.New(t)
	reporter := &countingReporter{}
	worker := NewReporterWorker(slog.Default(), reporter, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	req.Eventually(func() bool { return reporter.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	req.ErrorIs(<-done, context.Canceled)
}
