package http

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Token auth, not cookies, so any origin is fine.
		return true
	},
}

// wsTransport closes the socket on behalf of the session.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (t wsTransport) Close(reason string) error {
	deadline := time.Now().Add(t.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	// WriteControl is safe next to the writer goroutine.
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}

// handleWebSocket authenticates before upgrading, so a rejected client gets a
// plain 401 and never becomes routable.
func (s *Server) handleWebSocket(c echo.Context) error {
	session, err := s.sessions.Begin(c.Request().Context(), auth.BearerToken(c.Request()))
	if err != nil {
		return errors.MapToHTTPError(err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		session.Close("upgrade failed")
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return nil
	}
	if err := session.Open(wsTransport{conn: conn, writeTimeout: s.opts.WriteTimeout}); err != nil {
		_ = conn.Close()
		return nil
	}

	go s.writePump(session, conn)
	s.readPump(session, conn)
	return nil
}

// readPump handles client frames until the socket fails or goes silent.
func (s *Server) readPump(session *runtime.Session, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		session.Close("read closed")
	}()

	if s.opts.MaxFrameSize > 0 {
		conn.SetReadLimit(s.opts.MaxFrameSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("WebSocket read failed", "connection_id", session.ConnectionID(), "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		s.handleFrame(ctx, session, data)
	}
}

func (s *Server) handleFrame(ctx context.Context, session *runtime.Session, data []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(ctx, session, ErrorCodeInvalidFrame, "invalid JSON frame")
		return
	}
	identity := session.Identity()

	switch frame.Type {
	case TypeMarkAsRead:
		var payload MarkAsReadPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			s.sendError(ctx, session, ErrorCodeInvalidFrame, "invalid markAsRead payload")
			return
		}
		if payload.ViewerID != "" && payload.ViewerID != identity.UserID {
			s.sendError(ctx, session, ErrorCodeForbidden, "viewer_id must be the authenticated user")
			return
		}
		_, err := s.chat.MarkRead(ctx, domain.MarkReadCommand{
			Viewer:        identity.UserID,
			CounterpartID: payload.CounterpartID,
		})
		s.reportFailure(ctx, session, err)
	case TypeAck:
		var payload AckPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			s.sendError(ctx, session, ErrorCodeInvalidFrame, "invalid ack payload")
			return
		}
		_, err := s.chat.Acknowledge(ctx, domain.AcknowledgeCommand{
			Receiver:   identity.UserID,
			SenderID:   payload.SenderID,
			MessageIDs: payload.MessageIDs,
		})
		s.reportFailure(ctx, session, err)
	default:
		s.sendError(ctx, session, ErrorCodeInvalidFrame, "unknown frame type: "+frame.Type)
	}
}

func (s *Server) reportFailure(ctx context.Context, session *runtime.Session, err error) {
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrInvalidMessage):
		s.sendError(ctx, session, ErrorCodeInvalidFrame, err.Error())
	default:
		s.log.Warn("Client frame failed", "connection_id", session.ConnectionID(), "error", err)
		s.sendError(ctx, session, ErrorCodeInternal, "internal error")
	}
}

func (s *Server) sendError(ctx context.Context, session *runtime.Session, code, message string) {
	pushCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	_ = session.Consume(pushCtx, ErrorEvent{Code: code, Message: message})
}

// writePump is the only goroutine writing data frames on the socket.
func (s *Server) writePump(session *runtime.Session, conn *websocket.Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.Done():
			return
		case e := <-session.Outgoing():
			data, err := json.Marshal(toFrame(e, time.Now()))
			if err != nil {
				s.log.Error("Event not encodable", "event", e.Kind(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				session.Close("write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.Close("ping failed")
				return
			}
		}
	}
}
