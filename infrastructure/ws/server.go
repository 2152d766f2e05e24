// Package ws exposes the chat relay over websocket connections.
// Each frame is a JSON envelope naming an event and carrying its data.
package ws

import (
	"chat-relay/domain"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const defaultWriteWait = 10 * time.Second

type Server struct {
	log                  *slog.Logger
	chatService          services.IChatService
	upgrader             websocket.Upgrader
	connectionBufferSize int
	writeWait            time.Duration

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sessions map[domain.ConnectionID]*session
	wg       sync.WaitGroup
}

// NewServer accepts upgrades from the allowed origins only.
// A "*" entry allows every origin, a request without Origin header is always accepted.
func NewServer(log *slog.Logger, chatService services.IChatService,
	allowedOrigins []string, connectionBufferSize int) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		log:                  log,
		chatService:          chatService,
		connectionBufferSize: connectionBufferSize,
		writeWait:            defaultWriteWait,
		ctx:                  ctx,
		cancel:               cancel,
		sessions:             make(map[domain.ConnectionID]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowAll := lo.Contains(allowedOrigins, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowAll || lo.Contains(allowedOrigins, origin)
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.log.Warn("Websocket upgrade refused", "origin", r.Header.Get("Origin"), "error", err)
		return
	}

	id := domain.ConnectionID(uuid.NewString())
	sess := newSession(id, conn, s.chatService, s.connectionBufferSize, s.writeWait, s.log)

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[id] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug("New client connected", "connection_id", id, "remote", conn.RemoteAddr().String())
	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		s.wg.Done()
	}()
	sess.run(s.ctx)
}

// Handler routes the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	return mux
}

// Shutdown closes every live connection and waits for their cleanup.
// Hijacked connections are not closed by http.Server.Shutdown.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.cancel()
	for _, sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("All websocket connections closed")
}
