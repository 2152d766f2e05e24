package observability

import (
	"chat-relay/errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor(logs.GetLoggerFromLevel(slog.LevelError))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.MessageRelayed()
			monitor.Delivered(2)
		}()
	}
	wg.Wait()
	monitor.Delivered(0)
	monitor.DeliveryDropped()
	monitor.AppendFailed("c2", errors.ErrStoreUnavailable)
	monitor.ReadFailed("c2", errors.ErrStoreUnavailable)

	req.Equal(Stats{
		MessagesRelayed:  10,
		AppendFailures:   1,
		ReadFailures:     1,
		Deliveries:       20,
		DroppedDelivery:  1,
		OfflineRecipient: 1,
	}, monitor.Snapshot())
}
