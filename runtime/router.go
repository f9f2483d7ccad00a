package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Router pushes events to the live connections of users.
//
// It provides best-effort fan-out with no retries, no buffering and no replay:
// a client that missed a push catches up by reading the conversation store.
// Each push is bounded by pushTimeout and isolated from the others.
//
// Router keeps no state and is safe for concurrent use.
type Router struct {
	log         *slog.Logger
	registry    contract.IRegistry
	pushTimeout time.Duration
	recorder    contract.PushRecorder
}

func NewRouter(log *slog.Logger, registry contract.IRegistry, pushTimeout time.Duration) *Router {
	return &Router{log: log, registry: registry, pushTimeout: pushTimeout}
}

// WithRecorder reports every push outcome to recorder.
func (r *Router) WithRecorder(recorder contract.PushRecorder) *Router {
	r.recorder = recorder
	return r
}

// Deliver is called once per newly persisted message.
// The receiver's connections get the message, and every connection of the
// sender (the originating one included) gets the same event as an echo.
// A receiver without connections is not an error: the message stays sent.
func (r *Router) Deliver(ctx context.Context, message domain.Message) {
	evt := event.NewMessage{Message: message}
	targets := r.registry.ConnectionsFor(message.ReceiverID)
	if message.SenderID != message.ReceiverID {
		targets = append(targets, r.registry.ConnectionsFor(message.SenderID)...)
	}
	if len(targets) == 0 {
		r.log.Debug("No live connection for message",
			"message_id", message.ID, "receiver_id", message.ReceiverID)
		return
	}
	r.fanout(ctx, targets, evt)
}

// Notify pushes any event to every live connection of one user.
func (r *Router) Notify(ctx context.Context, userID domain.UserID, e event.DomainEvent) {
	targets := r.registry.ConnectionsFor(userID)
	if len(targets) == 0 {
		return
	}
	r.fanout(ctx, targets, e)
}

// fanout pushes concurrently and waits until every push either succeeded,
// failed or timed out. Returning only then keeps the per-connection order equal
// to the order in which Deliver and Notify are called.
func (r *Router) fanout(ctx context.Context, targets []contract.Connection, e event.DomainEvent) {
	var wg sync.WaitGroup
	for _, conn := range targets {
		wg.Add(1)
		go func(conn contract.Connection) {
			defer wg.Done()
			pushCtx, cancel := context.WithTimeout(ctx, r.pushTimeout)
			defer cancel()
			err := conn.Consume(pushCtx, e)
			if r.recorder != nil {
				r.recorder.RecordPush(err)
			}
			if err != nil {
				r.log.Warn("Push to connection failed",
					"connection_id", conn.ConnectionID(),
					"event", e.Kind(),
					"error", err)
			}
		}(conn)
	}
	wg.Wait()
}
