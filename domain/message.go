// Package domain contains core concepts of the chat system.
// This file defines Message and its read-state.
// Messages are immutable once persisted, only their status moves forward.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return t, nil
	case "":
		return MessageTypeText, nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// Status is ordered: sent < delivered < read.
type Status int

const (
	StatusSent Status = iota
	StatusDelivered
	StatusRead
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "read":
		return StatusRead, nil
	default:
		return StatusSent, fmt.Errorf("unknown status %q", s)
	}
}

// Advance never regresses: a read message stays read.
func (s Status) Advance(next Status) Status {
	if next > s {
		return next
	}
	return s
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Message represents a persisted chat message.
type Message struct {
	ID              uuid.UUID   `json:"id"`
	ClientMessageID string      `json:"client_message_id,omitempty"`
	SenderID        UserID      `json:"sender_id"`
	ReceiverID      UserID      `json:"receiver_id"`
	Content         string      `json:"content"`
	AttachmentID    string      `json:"attachment_id,omitempty"`
	Type            MessageType `json:"type"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty"`
	ReadAt          *time.Time  `json:"read_at,omitempty"`
}

// Conversation is derived from the sender/receiver pair.
func (m Message) Conversation() ConversationKey {
	return NewConversationKey(m.SenderID, m.ReceiverID)
}

// Counterpart returns the other side of the message seen from viewer.
func (m Message) Counterpart(viewer UserID) UserID {
	if m.SenderID == viewer {
		return m.ReceiverID
	}
	return m.SenderID
}

// MarkDelivered advances the status and stamps the first delivery time.
func (m *Message) MarkDelivered(at time.Time) bool {
	if m.Status >= StatusDelivered {
		return false
	}
	m.Status = m.Status.Advance(StatusDelivered)
	m.DeliveredAt = &at
	return true
}

// MarkRead advances the status to read. A message never delivered
// explicitly gets its delivery time set to the read time.
func (m *Message) MarkRead(at time.Time) bool {
	if m.Status >= StatusRead {
		return false
	}
	if m.DeliveredAt == nil {
		m.DeliveredAt = &at
	}
	m.Status = m.Status.Advance(StatusRead)
	m.ReadAt = &at
	return true
}

// NewMessage is what a client submits before persistence assigns
// an identity and a timestamp.
type NewMessage struct {
	ClientMessageID string
	SenderID        UserID
	ReceiverID      UserID
	Content         string
	AttachmentID    string
	Type            MessageType
}
