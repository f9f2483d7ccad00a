package services

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// recordingConn is a live connection that keeps what it was pushed.
type recordingConn struct {
	id     domain.ConnectionID
	mu     sync.Mutex
	events []event.DomainEvent
}

func newRecordingConn() *recordingConn {
	return &recordingConn{id: domain.NewConnectionID()}
}

func (c *recordingConn) ConnectionID() domain.ConnectionID { return c.id }

func (c *recordingConn) Consume(_ context.Context, e event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *recordingConn) received() []event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.DomainEvent(nil), c.events...)
}

type staticDirectory map[domain.UserID]domain.Role

func (d staticDirectory) RoleOf(_ context.Context, id domain.UserID) (domain.Role, error) {
	return d[id], nil
}

type chatWorld struct {
	registry *runtime.Registry
	store    *repositories.MessageRepository
	service  *ChatService
}

func newChatWorld(t *testing.T) chatWorld {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	registry := runtime.NewRegistry(4)
	router := runtime.NewRouter(log, registry, time.Second)
	locks := runtime.NewConversationLocks(16)
	store := repositories.NewMessageRepository(db, log, 50)
	readState := runtime.NewReadStateSynchronizer(log, store, router, locks)
	directory := staticDirectory{
		"x": domain.RoleCandidate,
		"y": domain.RoleInstructor,
	}
	return chatWorld{
		registry: registry,
		store:    store,
		service:  NewChatService(log, store, directory, fakeAttachments{}, router, readState, locks),
	}
}

var (
	userX = domain.Identity{UserID: "x", Role: domain.RoleCandidate}
	userY = domain.Identity{UserID: "y", Role: domain.RoleInstructor}
)

func TestScenario_Receiver_Online_Gets_Message_And_Sender_Gets_Echo(t *testing.T) {
	req := require.New(t)
	w := newChatWorld(t)
	ctx := context.Background()

	// Given Y has one live connection and X has another device open
	yConn, xOther := newRecordingConn(), newRecordingConn()
	req.NoError(w.registry.Register(userY.UserID, yConn))
	req.NoError(w.registry.Register(userX.UserID, xOther))

	// When X sends "Dobar dan" to Y
	_, _, err := w.service.SendMessage(ctx, domain.SendMessageCommand{
		Sender: userX, ReceiverID: userY.UserID, Content: "Dobar dan",
	})
	req.NoError(err)

	// Then both connections see the same newMessage event
	for _, conn := range []*recordingConn{yConn, xOther} {
		events := conn.received()
		req.Len(events, 1)
		req.Equal(event.NewMessageKind, events[0].Kind())
		req.Equal("Dobar dan", events[0].(event.NewMessage).Message.Content)
	}
}

func TestScenario_Receiver_Offline_Message_Persists_As_Sent(t *testing.T) {
	req := require.New(t)
	w := newChatWorld(t)
	ctx := context.Background()

	// Given Y has no live connection
	req.Empty(w.registry.ConnectionsFor(userY.UserID))

	// When X sends a message
	sent, created, err := w.service.SendMessage(ctx, domain.SendMessageCommand{
		Sender: userX, ReceiverID: userY.UserID, Content: "Are you there?",
	})

	// Then it is stored as sent and Y finds it later
	req.NoError(err)
	req.True(created)
	req.Equal(domain.StatusSent, sent.Status)

	req.NoError(w.registry.Register(userY.UserID, newRecordingConn()))
	messages, _, err := w.service.GetMessages(ctx, domain.GetMessagesCommand{
		Viewer: userY.UserID, PartnerID: userX.UserID,
	})
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(sent.ID, messages[0].ID)
}

func TestScenario_Mark_Read_Clears_Unread_And_Notifies_Sender(t *testing.T) {
	req := require.New(t)
	w := newChatWorld(t)
	ctx := context.Background()

	xConn := newRecordingConn()
	req.NoError(w.registry.Register(userX.UserID, xConn))
	for _, text := range []string{"one", "two"} {
		_, _, err := w.service.SendMessage(ctx, domain.SendMessageCommand{
			Sender: userX, ReceiverID: userY.UserID, Content: text,
		})
		req.NoError(err)
	}
	unread, err := w.store.UnreadCount(ctx, userY.UserID, userX.UserID)
	req.NoError(err)
	req.Equal(2, unread)

	// When Y marks the conversation with X as read
	count, err := w.service.MarkRead(ctx, domain.MarkReadCommand{
		Viewer: userY.UserID, CounterpartID: userX.UserID,
	})

	// Then the unread count drops to zero and X is told who read
	req.NoError(err)
	req.Equal(2, count)
	unread, err = w.store.UnreadCount(ctx, userY.UserID, userX.UserID)
	req.NoError(err)
	req.Zero(unread)

	events := xConn.received()
	last := events[len(events)-1]
	req.Equal(event.ConversationReadKind, last.Kind())
	req.Equal(userY.UserID, last.(event.ConversationRead).ReaderID)
}

func TestScenario_Every_Device_Of_Receiver_Gets_The_Message(t *testing.T) {
	req := require.New(t)
	w := newChatWorld(t)

	// Given X is online on phone and web
	phone, web := newRecordingConn(), newRecordingConn()
	req.NoError(w.registry.Register(userX.UserID, phone))
	req.NoError(w.registry.Register(userX.UserID, web))

	// When Y sends X a message
	_, _, err := w.service.SendMessage(context.Background(), domain.SendMessageCommand{
		Sender: userY, ReceiverID: userX.UserID, Content: "Welcome",
	})
	req.NoError(err)

	// Then both devices got it
	req.Len(phone.received(), 1)
	req.Len(web.received(), 1)
}

func TestScenario_Acknowledge_Notifies_Sender_Once(t *testing.T) {
	req := require.New(t)
	w := newChatWorld(t)
	ctx := context.Background()

	xConn := newRecordingConn()
	req.NoError(w.registry.Register(userX.UserID, xConn))
	sent, _, err := w.service.SendMessage(ctx, domain.SendMessageCommand{
		Sender: userX, ReceiverID: userY.UserID, Content: "ping",
	})
	req.NoError(err)

	cmd := domain.AcknowledgeCommand{
		Receiver: userY.UserID, SenderID: userX.UserID, MessageIDs: []string{sent.ID.String()},
	}
	count, err := w.service.Acknowledge(ctx, cmd)
	req.NoError(err)
	req.Equal(1, count)

	// A second ack changes nothing and pushes nothing
	count, err = w.service.Acknowledge(ctx, cmd)
	req.NoError(err)
	req.Zero(count)

	kinds := make([]event.Kind, 0)
	for _, e := range xConn.received() {
		kinds = append(kinds, e.Kind())
	}
	req.Equal([]event.Kind{event.NewMessageKind, event.MessageDeliveredKind}, kinds)
}

func TestScenario_MarkRead_During_Deliveries_Counts_Every_Message_Once(t *testing.T) {
	req := require.New(t)
	w := newChatWorld(t)
	ctx := context.Background()
	const rounds = 200

	// Given X keeps sending while Y keeps marking the conversation read
	var marked atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, _, err := w.service.SendMessage(ctx, domain.SendMessageCommand{
				Sender: userX, ReceiverID: userY.UserID, Content: "ping",
			}); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			count, err := w.service.MarkRead(ctx, domain.MarkReadCommand{
				Viewer: userY.UserID, CounterpartID: userX.UserID,
			})
			if err != nil {
				t.Error(err)
			}
			marked.Add(int64(count))
		}()
	}
	wg.Wait()

	// Then no message was skipped or counted twice
	unread, err := w.store.UnreadCount(ctx, userY.UserID, userX.UserID)
	req.NoError(err)
	req.Equal(rounds, int(marked.Load())+unread)

	// And one more mark-read takes exactly what is left
	count, err := w.service.MarkRead(ctx, domain.MarkReadCommand{Viewer: userY.UserID, CounterpartID: userX.UserID})
	req.NoError(err)
	req.Equal(unread, count)

	count, err = w.service.MarkRead(ctx, domain.MarkReadCommand{Viewer: userY.UserID, CounterpartID: userX.UserID})
	req.NoError(err)
	req.Zero(count)
}
