// Package event defines what the core pushes to live connections.
package event

import (
	"chat-relay/domain"
	"time"
)

type Kind string

const (
	NewMessageKind       Kind = "newMessage"
	ConversationReadKind Kind = "conversationRead"
	MessageDeliveredKind Kind = "messageDelivered"
)

type DomainEvent interface {
	Kind() Kind
}

// NewMessage is pushed to the receiver's connections and echoed
// to every connection of the sender.
type NewMessage struct {
	Message domain.Message `json:"message"`
}

func (NewMessage) Kind() Kind { return NewMessageKind }

// ConversationRead tells the counterpart that Reader has read
// Count of their messages.
type ConversationRead struct {
	ReaderID      domain.UserID `json:"reader_id"`
	CounterpartID domain.UserID `json:"counterpart_id"`
	Count         int           `json:"count"`
	ReadAt        time.Time     `json:"read_at"`
}

func (ConversationRead) Kind() Kind { return ConversationReadKind }

// MessageDelivered tells a sender that some of its messages reached
// one of the receiver's devices.
type MessageDelivered struct {
	ReceiverID  domain.UserID `json:"receiver_id"`
	MessageIDs  []string      `json:"message_ids"`
	DeliveredAt time.Time     `json:"delivered_at"`
}

func (MessageDelivered) Kind() Kind { return MessageDeliveredKind }
