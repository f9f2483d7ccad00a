package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// ReadStateSynchronizer applies read and delivery marks to the store and
// tells the live connections of both sides, so ticks and badges move
// without a refetch.
type ReadStateSynchronizer struct {
	log    *slog.Logger
	store  contract.ConversationStore
	router contract.IRouter
	locks  *ConversationLocks
	now    func() time.Time
}

func NewReadStateSynchronizer(log *slog.Logger, store contract.ConversationStore,
	router contract.IRouter, locks *ConversationLocks) *ReadStateSynchronizer {
	return &ReadStateSynchronizer{
		log:    log,
		store:  store,
		router: router,
		locks:  locks,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MarkRead marks every message counterpart sent to viewer as read.
// Calling it again with nothing new, or for a pair without history,
// returns 0 and notifies nobody.
func (s *ReadStateSynchronizer) MarkRead(ctx context.Context, viewerID, counterpartID domain.UserID) (int, error) {
	if viewerID == counterpartID {
		return 0, nil
	}
	unlock := s.locks.Lock(domain.NewConversationKey(viewerID, counterpartID))
	defer unlock()

	count, err := s.store.MarkRead(ctx, viewerID, counterpartID)
	if err != nil {
		err = fmt.Errorf("%w: mark read: %v", errors.ErrPersistence, err)
		s.log.Error("Mark read failed",
			"viewer_id", viewerID, "counterpart_id", counterpartID, "committed", count, "error", err)
	}
	if count == 0 {
		return 0, err
	}

	evt := event.ConversationRead{
		ReaderID:      viewerID,
		CounterpartID: counterpartID,
		Count:         count,
		ReadAt:        s.now(),
	}
	// The sender updates its read receipts, the reader's other devices clear their badge.
	// Committed batches are announced even when a later one failed.
	s.router.Notify(ctx, counterpartID, evt)
	s.router.Notify(ctx, viewerID, evt)

	s.log.Debug("Conversation marked read",
		"viewer_id", viewerID, "counterpart_id", counterpartID, "count", count)
	return count, err
}

// Acknowledge moves messages sent by sender to receiver from sent to delivered
// and notifies the sender. Messages already delivered or read are left as is.
func (s *ReadStateSynchronizer) Acknowledge(ctx context.Context, receiverID, senderID domain.UserID,
	messageIDs []string) (int, error) {
	if receiverID == senderID || len(messageIDs) == 0 {
		return 0, nil
	}
	unlock := s.locks.Lock(domain.NewConversationKey(receiverID, senderID))
	defer unlock()

	advanced, err := s.store.MarkDelivered(ctx, receiverID, senderID, lo.Uniq(messageIDs))
	if err != nil {
		return 0, fmt.Errorf("%w: mark delivered: %v", errors.ErrPersistence, err)
	}
	if len(advanced) == 0 {
		return 0, nil
	}

	s.router.Notify(ctx, senderID, event.MessageDelivered{
		ReceiverID: receiverID,
		MessageIDs: lo.Map(advanced, func(m domain.Message, _ int) string {
			return m.ID.String()
		}),
		DeliveredAt: s.now(),
	})
	return len(advanced), nil
}
