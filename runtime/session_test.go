package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type nopTransport struct{}

func (nopTransport) Close(string) error { return nil }

func newManager(t *testing.T, registry *Registry, identity domain.Identity) *SessionManager {
	ctrl := gomock.NewController(t)
	authenticator := mocks.NewMockAuthenticator(ctrl)
	authenticator.EXPECT().Validate(gomock.Any(), "good").Return(identity, nil).AnyTimes()
	authenticator.EXPECT().Validate(gomock.Any(), gomock.Not("good")).
		Return(domain.Identity{}, stderrors.New("bad signature")).AnyTimes()
	return NewSessionManager(slog.Default(), authenticator, registry, 4)
}

func TestSession_Rejected_Handshake_Never_Touches_Registry(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	authenticator := mocks.NewMockAuthenticator(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	manager := NewSessionManager(slog.Default(), authenticator, registry, 4)

	authenticator.EXPECT().Validate(gomock.Any(), "forged").Return(domain.Identity{}, stderrors.New("bad signature"))
	registry.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

	session, err := manager.Begin(context.Background(), "forged")

	req.ErrorIs(err, errors.ErrUnauthenticated)
	req.Nil(session)
	req.Zero(manager.Len())
}

func TestSession_Lifecycle_Open_Then_Close(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	manager := newManager(t, registry, domain.Identity{UserID: "ana", Role: domain.RoleCandidate})

	// Given an accepted handshake
	session, err := manager.Begin(context.Background(), "good")
	req.NoError(err)
	req.Equal(domain.StateConnecting, session.State())
	req.False(registry.IsOnline("ana"))

	// When the transport is attached
	req.NoError(session.Open(nopTransport{}))

	// Then the connection is routable
	req.Equal(domain.StateOpen, session.State())
	req.True(registry.IsOnline("ana"))
	req.Equal(1, manager.Len())

	// When it closes
	session.Close("client gone")

	// Then it is gone from everywhere and stays closed
	req.Equal(domain.StateClosed, session.State())
	req.False(registry.IsOnline("ana"))
	req.Zero(manager.Len())
	req.Error(session.Open(nopTransport{}))
	req.ErrorIs(session.Consume(context.Background(), event.NewMessage{}), errors.ErrSessionClosed)
}

func TestSession_Close_Is_Idempotent_And_Closes_Transport_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry(4)
	manager := newManager(t, registry, domain.Identity{UserID: "ana", Role: domain.RoleCandidate})
	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().Close("read error").Return(nil).Times(1)

	session, err := manager.Begin(context.Background(), "good")
	req.NoError(err)
	req.NoError(session.Open(transport))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.Close("read error")
		}()
	}
	wg.Wait()

	select {
	case <-session.Done():
	default:
		req.Fail("done channel must be closed")
	}
}

func TestSession_Close_Before_Open_Never_Registers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	manager := newManager(t, registry, domain.Identity{UserID: "ana", Role: domain.RoleCandidate})

	session, err := manager.Begin(context.Background(), "good")
	req.NoError(err)
	session.Close("upgrade failed")

	req.Error(session.Open(nopTransport{}))
	req.False(registry.IsOnline("ana"))
}

func TestSession_Consume_Full_Queue_Times_Out(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	manager := newManager(t, registry, domain.Identity{UserID: "ana", Role: domain.RoleCandidate})
	session, err := manager.Begin(context.Background(), "good")
	req.NoError(err)
	req.NoError(session.Open(nopTransport{}))

	// Given nobody drains the queue
	for i := 0; i < 4; i++ {
		req.NoError(session.Consume(context.Background(), event.NewMessage{}))
	}

	// When one more event is pushed with a deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = session.Consume(ctx, event.NewMessage{})

	// Then the push gives up instead of blocking the router
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestSessionManager_Shutdown_Closes_Everything(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	manager := newManager(t, registry, domain.Identity{UserID: "ana", Role: domain.RoleCandidate})

	for i := 0; i < 3; i++ {
		session, err := manager.Begin(context.Background(), "good")
		req.NoError(err)
		req.NoError(session.Open(nopTransport{}))
	}
	_, conns := registry.Count()
	req.Equal(3, conns)

	manager.Shutdown()

	req.Zero(manager.Len())
	_, conns = registry.Count()
	req.Zero(conns)
}

func TestSessionManager_QueueDepths(t *testing.T) {
	req := require.New(t)
	manager := newManager(t, NewRegistry(4), domain.Identity{UserID: "ana", Role: domain.RoleCandidate})
	ctx := context.Background()

	session, err := manager.Begin(ctx, "good")
	req.NoError(err)
	req.NoError(session.Open(nopTransport{}))

	// Given two events waiting for a writer that never drains
	req.NoError(session.Consume(ctx, event.NewMessage{}))
	req.NoError(session.Consume(ctx, event.NewMessage{}))

	depths := manager.QueueDepths()
	req.Len(depths, 1)
	req.Equal(domain.UserID("ana"), depths[0].UserID)
	req.Equal(2, depths[0].Length)
	req.Equal(4, depths[0].Capacity)
	req.Equal(0.5, depths[0].Fill())
}
