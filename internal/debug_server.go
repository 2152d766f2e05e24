package internal

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"encoding/json"
	"net/http"
)

const DebugEndpoint = "/debug/stats"

// ConversationLister is implemented by stores able to enumerate their conversations.
type ConversationLister interface {
	Conversations() ([]domain.ConversationID, error)
}

type StatsProvider func() observability.Stats

type DebugPage struct {
	Stats         observability.Stats     `json:"stats"`
	Conversations []domain.ConversationID `json:"conversations,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// MountDebug adds the debug endpoint to mux.
// lister may be nil when the store cannot enumerate its conversations.
func MountDebug(mux *http.ServeMux, stats StatsProvider, lister ConversationLister) {
	mux.HandleFunc(DebugEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		page := DebugPage{Stats: stats()}
		if lister != nil {
			conversations, err := lister.Conversations()
			if err != nil {
				page.Error = err.Error()
			}
			page.Conversations = conversations
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	})
}
