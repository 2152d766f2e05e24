package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// session is one live connection.
// The read loop owns the state, the write pump is the only writer of the socket.
type session struct {
	id          domain.ConnectionID
	conn        *websocket.Conn
	sink        *sink.ConnectionSink
	replies     chan event.DomainEvent
	pumpDone    chan struct{}
	chatService services.IChatService
	writeWait   time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	state    domain.SessionState
	identity domain.Identity
}

func newSession(id domain.ConnectionID, conn *websocket.Conn, chatService services.IChatService,
	bufferSize int, writeWait time.Duration, log *slog.Logger) *session {
	return &session{
		id:          id,
		conn:        conn,
		sink:        sink.NewConnectionSink(bufferSize),
		replies:     make(chan event.DomainEvent),
		pumpDone:    make(chan struct{}),
		chatService: chatService,
		writeWait:   writeWait,
		state:       domain.Unregistered,
		log:         log.With("connection_id", id),
	}
}

func (s *session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// run blocks until the client goes away, then releases everything bound to the connection.
func (s *session) run(ctx context.Context) {
	go s.writePump()
	s.readLoop(ctx)
	s.close()
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Connection lost", "error", err)
			}
			return
		}
		var frame envelope
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.log.Debug("Malformed frame dropped", "error", err)
			continue
		}
		if err := validate.Struct(frame); err != nil {
			s.log.Debug("Invalid frame dropped", "error", err)
			continue
		}
		if err := s.handle(ctx, frame); err != nil {
			s.log.Debug(fmt.Sprintf("Frame %s dropped", frame.Event), "error", err)
		}
	}
}

func (s *session) handle(ctx context.Context, frame envelope) error {
	switch frame.Event {
	case registerEvent:
		payload, err := decode[registerPayload](frame.Data)
		if err != nil {
			return err
		}
		s.register(domain.Identity(payload.UserID))
		return nil
	case getMessagesEvent:
		payload, err := decode[getMessagesPayload](frame.Data)
		if err != nil {
			return err
		}
		if !s.State().CanExchange() {
			return errors.ErrNotRegistered
		}
		conversationID := domain.ConversationID(payload.ChatID)
		messages := s.chatService.GetMessages(ctx, domain.GetMessagesCommand{ConversationID: conversationID})
		return s.reply(event.HistoryLoaded{ConversationID: conversationID, Messages: messages})
	case privateMessage:
		payload, err := decode[privateMessagePayload](frame.Data)
		if err != nil {
			return err
		}
		if !s.State().CanExchange() {
			return errors.ErrNotRegistered
		}
		return s.chatService.SendMessage(ctx, payload.toCommand(), s.sink)
	}
	return fmt.Errorf("%w: %s", errors.ErrUnknownEvent, frame.Event)
}

func (s *session) register(identity domain.Identity) {
	s.mu.Lock()
	next := s.state.Register()
	if next == domain.Closed {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.identity = identity
	s.mu.Unlock()

	s.chatService.Register(identity, s.id, s.sink)
	s.log.Info(fmt.Sprintf("Connection registered as %s", identity))
}

// reply hands an answer to the write pump, unless the pump already stopped.
func (s *session) reply(e event.DomainEvent) error {
	select {
	case s.replies <- e:
		return nil
	case <-s.pumpDone:
		return errors.ErrSinkClosed
	}
}

func (s *session) writePump() {
	defer close(s.pumpDone)
	for {
		var e event.DomainEvent
		select {
		case delivered, ok := <-s.sink.Events:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(s.writeWait))
				return
			}
			e = delivered
		case e = <-s.replies:
		}
		frame, ok := toFrame(e)
		if !ok {
			continue
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
		if err := s.conn.WriteJSON(frame); err != nil {
			s.log.Debug("Write failed, closing connection", "error", err)
			// Unblocks the read loop
			_ = s.conn.Close()
			return
		}
	}
}

// close moves the session to Closed and unbinds it from its identity.
// Nothing is delivered to the connection afterwards.
func (s *session) close() {
	s.mu.Lock()
	s.state = domain.Closed
	identity := s.identity
	s.mu.Unlock()

	s.chatService.Leave(s.id)
	s.sink.Close()
	<-s.pumpDone
	_ = s.conn.Close()
	if identity != "" {
		s.log.Info(fmt.Sprintf("Connection of %s closed", identity))
	} else {
		s.log.Info("Unregistered connection closed")
	}
}
