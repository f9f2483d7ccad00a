package http

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"encoding/json"
	"time"
)

// Frame types of the WebSocket protocol. Server frames reuse the event kinds.
const (
	TypeMarkAsRead = "markAsRead"
	TypeAck        = "ack"
	TypeError      = "error"
)

// Error codes carried by error frames.
const (
	ErrorCodeInvalidFrame = "invalid_frame"
	ErrorCodeForbidden    = "forbidden"
	ErrorCodeInternal     = "internal"
)

// InboundFrame is what a client sends, Payload depends on Type.
type InboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type MarkAsReadPayload struct {
	ViewerID      domain.UserID `json:"viewer_id,omitempty"`
	CounterpartID domain.UserID `json:"counterpart_id"`
}

type AckPayload struct {
	SenderID   domain.UserID `json:"sender_id"`
	MessageIDs []string      `json:"message_ids"`
}

// OutboundFrame is what the server writes, one per event.
type OutboundFrame struct {
	Type    string `json:"type"`
	Ts      int64  `json:"ts"`
	Payload any    `json:"payload"`
}

// ErrorEvent is queued like any other event so the single writer sends it.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorEvent) Kind() event.Kind { return TypeError }

func toFrame(e event.DomainEvent, now time.Time) OutboundFrame {
	return OutboundFrame{Type: string(e.Kind()), Ts: now.UnixMilli(), Payload: e}
}

// REST bodies.

type RegisterBody struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

type LoginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type SendMessageBody struct {
	ReceiverID      domain.UserID `json:"receiver_id"`
	Content         string        `json:"content"`
	Type            string        `json:"type"`
	AttachmentID    string        `json:"attachment_id"`
	ClientMessageID string        `json:"client_message_id"`
}

type MessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor *string          `json:"next_cursor"`
}

type ConversationsResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type AttachmentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
