package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReadState_MarkRead_Self_Is_Noop(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	router := mocks.NewMockIRouter(ctrl)
	synchronizer := NewReadStateSynchronizer(slog.Default(), store, router, NewConversationLocks(4))

	count, err := synchronizer.MarkRead(context.Background(), "ana", "ana")

	req.NoError(err)
	req.Zero(count)
}

func TestReadState_MarkRead_Store_Failure_Notifies_Nobody(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	router := mocks.NewMockIRouter(ctrl)
	synchronizer := NewReadStateSynchronizer(slog.Default(), store, router, NewConversationLocks(4))

	store.EXPECT().MarkRead(gomock.Any(), domain.UserID("y"), domain.UserID("x")).Return(0, stderrors.New("io"))
	router.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := synchronizer.MarkRead(context.Background(), "y", "x")

	req.ErrorIs(err, errors.ErrPersistence)
}

func TestReadState_MarkRead_Partial_Failure_Notifies_Committed_Part(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	router := mocks.NewMockIRouter(ctrl)
	synchronizer := NewReadStateSynchronizer(slog.Default(), store, router, NewConversationLocks(4))

	// Given the store committed three messages before a batch failed
	store.EXPECT().MarkRead(gomock.Any(), domain.UserID("y"), domain.UserID("x")).Return(3, stderrors.New("io"))
	committed := func(target domain.UserID) {
		router.EXPECT().
			Notify(gomock.Any(), target, gomock.AssignableToTypeOf(event.ConversationRead{})).
			Do(func(_ context.Context, _ domain.UserID, e event.DomainEvent) {
				req.Equal(3, e.(event.ConversationRead).Count)
			})
	}
	committed("x")
	committed("y")

	// When
	count, err := synchronizer.MarkRead(context.Background(), "y", "x")

	// Then both sides hear about the committed part and the caller sees the failure
	req.ErrorIs(err, errors.ErrPersistence)
	req.Equal(3, count)
}

func TestReadState_Acknowledge_Deduplicates_And_Notifies_Sender(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	router := mocks.NewMockIRouter(ctrl)
	synchronizer := NewReadStateSynchronizer(slog.Default(), store, router, NewConversationLocks(4))
	id := uuid.Must(uuid.NewV7())

	store.EXPECT().
		MarkDelivered(gomock.Any(), domain.UserID("y"), domain.UserID("x"), []string{id.String()}).
		Return([]domain.Message{{ID: id, SenderID: "x", ReceiverID: "y", Status: domain.StatusDelivered}}, nil)
	router.EXPECT().
		Notify(gomock.Any(), domain.UserID("x"), gomock.AssignableToTypeOf(event.MessageDelivered{})).
		Do(func(_ context.Context, _ domain.UserID, e event.DomainEvent) {
			req.Equal([]string{id.String()}, e.(event.MessageDelivered).MessageIDs)
		})

	count, err := synchronizer.Acknowledge(context.Background(), "y", "x", []string{id.String(), id.String()})

	req.NoError(err)
	req.Equal(1, count)
}

func TestReadState_Acknowledge_Already_Delivered_Is_Silent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	router := mocks.NewMockIRouter(ctrl)
	synchronizer := NewReadStateSynchronizer(slog.Default(), store, router, NewConversationLocks(4))

	store.EXPECT().MarkDelivered(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	router.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	count, err := synchronizer.Acknowledge(context.Background(), "y", "x", []string{uuid.NewString()})

	req.NoError(err)
	req.Zero(count)
}

func TestConversationLocks_Same_Pair_Shares_A_Stripe(t *testing.T) {
	req := require.New(t)
	locks := NewConversationLocks(64)

	unlock := locks.Lock(domain.NewConversationKey("x", "y"))
	acquired := make(chan struct{})
	go func() {
		release := locks.Lock(domain.NewConversationKey("y", "x"))
		close(acquired)
		release()
	}()

	// Then the reversed pair stays blocked while the stripe is held
	select {
	case <-acquired:
		req.Fail("the reversed pair must wait for the same stripe")
	case <-time.After(50 * time.Millisecond):
	}

	// And gets it once released
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		req.Fail("the reversed pair never got the stripe")
	}
}
