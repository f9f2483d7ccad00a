package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one live connection of an authenticated user.
// It moves Connecting -> Open -> Closed and never comes back from Closed:
// a reconnecting client always gets a new Session.
type Session struct {
	conn     domain.Connection
	log      *slog.Logger
	registry contract.IRegistry
	onClose  func(*Session)

	mu        sync.Mutex
	transport contract.Transport

	state     atomic.Int32
	outgoing  chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Session) ConnectionID() domain.ConnectionID { return s.conn.ID }

func (s *Session) Identity() domain.Identity { return s.conn.Owner }

func (s *Session) Connection() domain.Connection { return s.conn }

func (s *Session) State() domain.ConnectionState {
	return domain.ConnectionState(s.state.Load())
}

// Outgoing is drained by the single writer of the transport.
func (s *Session) Outgoing() <-chan event.DomainEvent { return s.outgoing }

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Consume queues an event for the writer. It fails when the session is closed
// or when the queue stays full until ctx expires.
func (s *Session) Consume(ctx context.Context, e event.DomainEvent) error {
	if s.State() == domain.StateClosed {
		return errors.ErrSessionClosed
	}
	select {
	case s.outgoing <- e:
		return nil
	case <-s.done:
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open attaches the transport and joins the user's channel in the registry.
func (s *Session) Open(transport contract.Transport) error {
	if s.State() != domain.StateConnecting {
		return fmt.Errorf("%w: cannot open a %s session", errors.ErrSessionClosed, s.State())
	}
	s.mu.Lock()
	s.transport = transport
	s.mu.Unlock()
	if err := s.registry.Register(s.conn.Owner.UserID, s); err != nil {
		s.Close("registration failed")
		return err
	}
	if !s.state.CompareAndSwap(int32(domain.StateConnecting), int32(domain.StateOpen)) {
		// Closed while registering, undo the registration ourselves.
		s.registry.Unregister(s.conn.ID)
		return errors.ErrSessionClosed
	}
	s.log.Info("Connection opened",
		"user_id", s.conn.Owner.UserID,
		"role", s.conn.Owner.Role,
		"connection_id", s.conn.ID)
	return nil
}

// Close moves the session to Closed exactly once, whatever the number of
// callers (reader, writer, server shutdown). Only an opened session is
// unregistered.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		previous := domain.ConnectionState(s.state.Swap(int32(domain.StateClosed)))
		close(s.done)
		if previous == domain.StateOpen {
			s.registry.Unregister(s.conn.ID)
		}
		s.mu.Lock()
		transport := s.transport
		s.mu.Unlock()
		if transport != nil {
			if err := transport.Close(reason); err != nil {
				s.log.Debug("Transport close failed", "connection_id", s.conn.ID, "error", err)
			}
		}
		if s.onClose != nil {
			s.onClose(s)
		}
		s.log.Info("Connection closed",
			"user_id", s.conn.Owner.UserID,
			"connection_id", s.conn.ID,
			"reason", reason,
			"was", previous)
	})
}

// SessionManager owns the lifecycle of every connection of the process.
type SessionManager struct {
	log        *slog.Logger
	auth       contract.Authenticator
	registry   contract.IRegistry
	bufferSize int

	mu       sync.Mutex
	sessions map[domain.ConnectionID]*Session
}

func NewSessionManager(log *slog.Logger, auth contract.Authenticator,
	registry contract.IRegistry, bufferSize int) *SessionManager {
	return &SessionManager{
		log:        log,
		auth:       auth,
		registry:   registry,
		bufferSize: bufferSize,
		sessions:   make(map[domain.ConnectionID]*Session),
	}
}

// Begin validates the credential and returns a Connecting session.
// A rejected credential never touches the registry.
func (m *SessionManager) Begin(ctx context.Context, token string) (*Session, error) {
	identity, err := m.auth.Validate(ctx, token)
	if err != nil {
		m.log.Debug("Handshake rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	s := &Session{
		conn: domain.Connection{
			ID:        domain.NewConnectionID(),
			Owner:     identity,
			CreatedAt: time.Now().UTC(),
		},
		log:      m.log,
		registry: m.registry,
		onClose:  m.forget,
		outgoing: make(chan event.DomainEvent, m.bufferSize),
		done:     make(chan struct{}),
	}
	s.state.Store(int32(domain.StateConnecting))
	m.mu.Lock()
	m.sessions[s.conn.ID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *SessionManager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.conn.ID)
}

// Len returns the number of sessions not yet closed.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// QueueDepths samples the outbound queue of every session.
// len and cap on a channel don't block its writer.
func (m *SessionManager) QueueDepths() []domain.QueueDepth {
	m.mu.Lock()
	defer m.mu.Unlock()
	depths := make([]domain.QueueDepth, 0, len(m.sessions))
	for _, s := range m.sessions {
		depths = append(depths, domain.QueueDepth{
			ConnectionID: s.conn.ID,
			UserID:       s.conn.Owner.UserID,
			Length:       len(s.outgoing),
			Capacity:     cap(s.outgoing),
		})
	}
	return depths
}

// Shutdown closes every session, used when the server stops.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close("server shutdown")
	}
	m.log.Info("All sessions closed", "count", len(sessions))
}
