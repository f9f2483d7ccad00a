//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is a live, addressable sink owned by exactly one user.
type Connection interface {
	EventSink
	ConnectionID() domain.ConnectionID
}

// Transport is the network side of a connection, closed once by the session.
type Transport interface {
	Close(reason string) error
}

type IRegistry interface {
	Register(userID domain.UserID, conn Connection) error
	Unregister(connectionID domain.ConnectionID)
	ConnectionsFor(userID domain.UserID) []Connection
}

// PushRecorder observes the outcome of every push made by the router.
type PushRecorder interface {
	RecordPush(err error)
}

type IRouter interface {
	Deliver(ctx context.Context, message domain.Message)
	Notify(ctx context.Context, userID domain.UserID, e event.DomainEvent)
}

// Authenticator is the auth collaborator, called once per handshake.
type Authenticator interface {
	Validate(ctx context.Context, token string) (domain.Identity, error)
}

// UserDirectory resolves the role of a correspondent.
type UserDirectory interface {
	RoleOf(ctx context.Context, userID domain.UserID) (domain.Role, error)
}

// ConversationStore is the durable message log.
// Append returns only after the write is committed.
type ConversationStore interface {
	Append(ctx context.Context, message domain.NewMessage) (domain.Message, bool, error)
	ListConversationPartners(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error)
	ListMessages(ctx context.Context, userID, partnerID domain.UserID, page domain.Page) ([]domain.Message, *string, error)
	// MarkRead commits in batches. On failure it returns the count already
	// committed together with the error.
	MarkRead(ctx context.Context, viewerID, counterpartID domain.UserID) (int, error)
	MarkDelivered(ctx context.Context, receiverID, senderID domain.UserID, messageIDs []string) ([]domain.Message, error)
	UnreadCount(ctx context.Context, viewerID, counterpartID domain.UserID) (int, error)
}
