package observability

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"log/slog"
	"sync/atomic"
)

var _ contract.IObserver = (*Monitor)(nil)

// Stats aggregates the relay counters
type Stats struct {
	MessagesRelayed  uint64 `json:"messages_relayed"`
	AppendFailures   uint64 `json:"append_failures"`
	ReadFailures     uint64 `json:"read_failures"`
	Deliveries       uint64 `json:"deliveries"`
	DroppedDelivery  uint64 `json:"dropped_deliveries"`
	OfflineRecipient uint64 `json:"offline_recipients"`
}

// Monitor collects what is never reported to protocol callers:
// store failures and deliveries skipped because of a slow or gone connection.
type Monitor struct {
	log *slog.Logger

	messagesRelayed  uint64
	appendFailures   uint64
	readFailures     uint64
	deliveries       uint64
	droppedDelivery  uint64
	offlineRecipient uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log}
}

func (m *Monitor) MessageRelayed() {
	atomic.AddUint64(&m.messagesRelayed, 1)
}

func (m *Monitor) AppendFailed(conversationID domain.ConversationID, err error) {
	atomic.AddUint64(&m.appendFailures, 1)
	m.log.Error("Message not persisted, broadcast skipped",
		"conversation_id", conversationID,
		"error", err)
}

func (m *Monitor) ReadFailed(conversationID domain.ConversationID, err error) {
	atomic.AddUint64(&m.readFailures, 1)
	m.log.Error("History not loaded, replying with an empty batch",
		"conversation_id", conversationID,
		"error", err)
}

// Delivered counts the connections reached by one broadcast.
// Zero means the recipient was offline.
func (m *Monitor) Delivered(count int) {
	if count == 0 {
		atomic.AddUint64(&m.offlineRecipient, 1)
		return
	}
	atomic.AddUint64(&m.deliveries, uint64(count))
}

func (m *Monitor) DeliveryDropped() {
	atomic.AddUint64(&m.droppedDelivery, 1)
}

func (m *Monitor) Snapshot() Stats {
	return Stats{
		MessagesRelayed:  atomic.LoadUint64(&m.messagesRelayed),
		AppendFailures:   atomic.LoadUint64(&m.appendFailures),
		ReadFailures:     atomic.LoadUint64(&m.readFailures),
		Deliveries:       atomic.LoadUint64(&m.deliveries),
		DroppedDelivery:  atomic.LoadUint64(&m.droppedDelivery),
		OfflineRecipient: atomic.LoadUint64(&m.offlineRecipient),
	}
}

// Report logs the current counters, used on shutdown.
func (m *Monitor) Report() {
	s := m.Snapshot()
	m.log.Info("Relay statistics",
		"messages_relayed", s.MessagesRelayed,
		"append_failures", s.AppendFailures,
		"read_failures", s.ReadFailures,
		"deliveries", s.Deliveries,
		"dropped_deliveries", s.DroppedDelivery,
		"offline_recipients", s.OfflineRecipient)
}
