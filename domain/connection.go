package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionID uuid.UUID

func NewConnectionID() ConnectionID { return ConnectionID(uuid.New()) }

func (c ConnectionID) String() string { return uuid.UUID(c).String() }

// ConnectionState follows Connecting -> Open -> Closed, Closed is terminal.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection describes one live transport session.
type Connection struct {
	ID        ConnectionID
	Owner     Identity
	CreatedAt time.Time
}

// QueueDepth is a sample of one connection's outbound queue.
type QueueDepth struct {
	ConnectionID ConnectionID
	UserID       UserID
	Length       int
	Capacity     int
}

// Fill is the used share of the queue, between 0 and 1.
func (q QueueDepth) Fill() float64 {
	if q.Capacity == 0 {
		return 0
	}
	return float64(q.Length) / float64(q.Capacity)
}
