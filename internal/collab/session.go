package collab

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"mol-collab/internal/middleware"
	"mol-collab/internal/models"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // must be less than pongWait
	sendBuffer = 256
)

// Session is one live WebSocket connection inside a room.
//
// It holds the room id, not the room: the registry is the only path
// back to the actor, so rooms own sessions without a reference cycle.
type Session struct {
	*models.Session
	conn *websocket.Conn
	send chan []byte
	reg  *Registry
}

func newSession(model *models.Session, conn *websocket.Conn, reg *Registry) *Session {
	return &Session{
		Session: model,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		reg:     reg,
	}
}

// enqueue queues an outbound message without blocking. False means the
// buffer is full and the client is too slow to keep.
func (s *Session) enqueue(message []byte) bool {
	if message == nil {
		return true
	}
	select {
	case s.send <- message:
		return true
	default:
		return false
	}
}

func (s *Session) sendError(text string) {
	if !s.enqueue(marshal(ErrorMessage{Type: MsgError, Error: text})) {
		log.Printf("⚠️  Session %s send buffer full, dropping error notice", s.ID)
	}
}

// readPump reads client messages and routes them to the room actor.
// Learning: one reader goroutine per connection; gorilla requires all
// reads from a single goroutine.
func (s *Session) readPump() {
	defer func() {
		if room, ok := s.reg.Room(s.RoomID); ok {
			room.Leave(s.ID)
		}
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on session %s: %v", s.ID, err)
			}
			break
		}
		s.route(data)
	}
}

// route dispatches one client message. Parse failures are isolated to
// the message: log, tell the sender, keep the connection.
func (s *Session) route(data []byte) {
	ctx, span := middleware.StartSpan(context.Background(), "Collab.ProcessMessage",
		attribute.String("session.id", s.ID),
		attribute.String("room.id", s.RoomID),
		attribute.Int("message.size", len(data)),
	)
	defer span.End()

	msg, err := ParseClientMessage(data)
	if err != nil {
		log.Printf("⚠️  Session %s: %v", s.ID, err)
		middleware.AddSpanError(ctx, err)
		s.sendError("malformed message")
		return
	}
	span.SetAttributes(attribute.String("message.type", msg.Type))

	room, ok := s.reg.Room(s.RoomID)
	if !ok {
		// Room tore down under us; the close frame is on its way.
		return
	}

	switch msg.Type {
	case MsgCursorUpdate:
		var p CursorMessage
		if !s.decode(ctx, msg, &p) {
			return
		}
		room.UpdateCursor(s.ID, p.Cursor)

	case MsgSelectionUpdate:
		var p SelectionMessage
		if !s.decode(ctx, msg, &p) {
			return
		}
		room.UpdateSelection(s.ID, p.Selection)

	case MsgStateUpdate:
		var p StateUpdateMessage
		if !s.decode(ctx, msg, &p) {
			return
		}
		room.ApplyStateUpdate(s.ID, p.Update)

	case MsgChatMessage:
		var p ChatRequest
		if !s.decode(ctx, msg, &p) {
			return
		}
		room.SendChat(s.ID, p.Message)

	case MsgCameraUpdate:
		var p CameraMessage
		if !s.decode(ctx, msg, &p) {
			return
		}
		room.UpdateCamera(s.ID, p.Camera)

	case MsgAnnotationAdd:
		var p AnnotationRequest
		if !s.decode(ctx, msg, &p) {
			return
		}
		room.AddAnnotation(s.ID, p.Text, p.Atoms, p.Position)

	default:
		log.Printf("⚠️  Session %s: unknown message type %q", s.ID, msg.Type)
		s.sendError("unknown message type: " + msg.Type)
	}
}

func (s *Session) decode(ctx context.Context, msg ClientMessage, dst interface{}) bool {
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		log.Printf("⚠️  Session %s: bad %s payload: %v", s.ID, msg.Type, err)
		middleware.AddSpanError(ctx, err)
		s.sendError("bad " + msg.Type + " payload")
		return false
	}
	return true
}

// writePump flushes the send buffer to the connection and keeps the
// client alive with pings.
// Learning: one writer goroutine per connection prevents slow clients
// from blocking the room actor.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Room closed the channel
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush whatever else is queued, one frame per message so
			// clients can parse each JSON document on its own.
			n := len(s.send)
			for i := 0; i < n; i++ {
				if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
