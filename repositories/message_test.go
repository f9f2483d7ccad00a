package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMessageRepository(t *testing.T, limit int) *MessageRepository {
	return NewMessageRepository(openTestDB(t), slog.Default(), limit)
}

func send(t *testing.T, r *MessageRepository, from, to domain.UserID, content string) domain.Message {
	m, created, err := r.Append(context.Background(), domain.NewMessage{
		SenderID: from, ReceiverID: to, Content: content,
	})
	require.NoError(t, err)
	require.True(t, created)
	return m
}

func TestMessageRepository_Append_Assigns_Id_Status_And_Type(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)

	m := send(t, r, "x", "y", "Dobar dan")

	req.NotEqual([16]byte{}, [16]byte(m.ID))
	req.Equal(domain.StatusSent, m.Status)
	req.Equal(domain.MessageTypeText, m.Type)
	req.Nil(m.DeliveredAt)

	got, err := r.GetMessage(context.Background(), m.ID.String())
	req.NoError(err)
	req.Equal(m.ID, got.ID)
	req.Equal("Dobar dan", got.Content)
	req.True(m.CreatedAt.Equal(got.CreatedAt))
}

func TestMessageRepository_Append_Deduplicates_Client_Id(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)
	ctx := context.Background()
	nm := domain.NewMessage{SenderID: "x", ReceiverID: "y", Content: "once", ClientMessageID: "c-42"}

	first, created, err := r.Append(ctx, nm)
	req.NoError(err)
	req.True(created)

	second, created, err := r.Append(ctx, nm)
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)

	messages, _, err := r.ListMessages(ctx, "y", "x", domain.Page{})
	req.NoError(err)
	req.Len(messages, 1)
}

func TestMessageRepository_Timestamps_Strictly_Increase_In_A_Conversation(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)
	frozen := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }

	a := send(t, r, "x", "y", "a")
	b := send(t, r, "y", "x", "b")
	c := send(t, r, "x", "y", "c")

	req.True(b.CreatedAt.After(a.CreatedAt))
	req.True(c.CreatedAt.After(b.CreatedAt))
}

func TestMessageRepository_ListMessages_Pages_Newest_First(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 2)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		send(t, r, "x", "y", fmt.Sprintf("m%d", i))
	}
	// Another conversation must not leak in
	send(t, r, "x", "z", "other")

	var contents []string
	var cursor *string
	pages := 0
	for {
		messages, next, err := r.ListMessages(ctx, "x", "y", domain.Page{Cursor: cursor})
		req.NoError(err)
		for _, m := range messages {
			contents = append(contents, m.Content)
		}
		pages++
		if next == nil {
			break
		}
		cursor = next
	}

	req.Equal([]string{"m5", "m4", "m3", "m2", "m1"}, contents)
	req.Equal(3, pages)
}

func TestMessageRepository_ListMessages_Is_Symmetric_And_Validates_Cursor(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)
	ctx := context.Background()
	send(t, r, "x", "y", "hello")

	fromX, _, err := r.ListMessages(ctx, "x", "y", domain.Page{})
	req.NoError(err)
	fromY, _, err := r.ListMessages(ctx, "y", "x", domain.Page{})
	req.NoError(err)
	req.Equal(fromX, fromY)

	empty, next, err := r.ListMessages(ctx, "x", "nobody", domain.Page{})
	req.NoError(err)
	req.Empty(empty)
	req.Nil(next)

	bad := "not-a-cursor"
	_, _, err = r.ListMessages(ctx, "x", "y", domain.Page{Cursor: &bad})
	req.ErrorIs(err, errors.ErrInvalidCursor)
}

func TestMessageRepository_MarkRead_Counts_Only_Incoming_And_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)
	ctx := context.Background()
	send(t, r, "x", "y", "1")
	send(t, r, "x", "y", "2")
	send(t, r, "y", "x", "reply")

	unread, err := r.UnreadCount(ctx, "y", "x")
	req.NoError(err)
	req.Equal(2, unread)

	// When y reads its conversation with x
	count, err := r.MarkRead(ctx, "y", "x")
	req.NoError(err)
	req.Equal(2, count)

	// Then nothing is left and a second call is a no-op
	unread, err = r.UnreadCount(ctx, "y", "x")
	req.NoError(err)
	req.Zero(unread)
	count, err = r.MarkRead(ctx, "y", "x")
	req.NoError(err)
	req.Zero(count)

	// x's own unread message from y is untouched
	unread, err = r.UnreadCount(ctx, "x", "y")
	req.NoError(err)
	req.Equal(1, unread)

	messages, _, err := r.ListMessages(ctx, "x", "y", domain.Page{})
	req.NoError(err)
	for _, m := range messages {
		if m.SenderID == "x" {
			req.Equal(domain.StatusRead, m.Status)
			req.NotNil(m.ReadAt)
			req.NotNil(m.DeliveredAt)
		} else {
			req.Equal(domain.StatusSent, m.Status)
		}
	}
}

func TestMessageRepository_MarkRead_Without_History(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)

	count, err := r.MarkRead(context.Background(), "y", "x")

	req.NoError(err)
	req.Zero(count)
}

func TestMessageRepository_MarkDelivered_Only_Moves_Forward(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)
	ctx := context.Background()
	m1 := send(t, r, "x", "y", "1")
	m2 := send(t, r, "x", "y", "2")
	foreign := send(t, r, "z", "y", "not from x")

	// m1 and m2 get read before m3 exists
	_, err := r.MarkRead(ctx, "y", "x")
	req.NoError(err)
	m3 := send(t, r, "x", "y", "3")

	advanced, err := r.MarkDelivered(ctx, "y", "x",
		[]string{m1.ID.String(), m2.ID.String(), m3.ID.String(), foreign.ID.String(), "0199e3a4-0000-7000-8000-000000000000"})
	req.NoError(err)

	// Only m3 was still sent
	req.Len(advanced, 1)
	req.Equal(m3.ID, advanced[0].ID)
	req.Equal(domain.StatusDelivered, advanced[0].Status)

	got, err := r.GetMessage(ctx, m1.ID.String())
	req.NoError(err)
	req.Equal(domain.StatusRead, got.Status)
	got, err = r.GetMessage(ctx, foreign.ID.String())
	req.NoError(err)
	req.Equal(domain.StatusSent, got.Status)
}

func TestMessageRepository_ListConversationPartners(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)
	ctx := context.Background()
	send(t, r, "instructor", "ana", "first")
	send(t, r, "ivan", "instructor", "hello")
	send(t, r, "ana", "instructor", "latest")

	summaries, err := r.ListConversationPartners(ctx, "instructor")
	req.NoError(err)
	req.Len(summaries, 2)

	req.Equal(domain.UserID("ana"), summaries[0].PartnerID)
	req.Equal("latest", summaries[0].LastMessage.Content)
	req.Equal(1, summaries[0].UnreadCount)
	req.Equal(domain.UserID("ivan"), summaries[1].PartnerID)
	req.Equal(1, summaries[1].UnreadCount)

	none, err := r.ListConversationPartners(ctx, "stranger")
	req.NoError(err)
	req.Empty(none)
}

func TestMessageRepository_Interleaved_Senders_Keep_Every_Message(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 0)
	ctx := context.Background()

	// Callers serialize writers of one conversation, as the chat service does.
	var conversation sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conversation.Lock()
			defer conversation.Unlock()
			from, to := domain.UserID("x"), domain.UserID("y")
			if i%2 == 0 {
				from, to = to, from
			}
			if _, _, err := r.Append(ctx, domain.NewMessage{SenderID: from, ReceiverID: to, Content: fmt.Sprint(i)}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	messages, next, err := r.ListMessages(ctx, "x", "y", domain.Page{})
	req.NoError(err)
	req.Nil(next)
	req.Len(messages, 40)
	for i := 1; i < len(messages); i++ {
		req.True(messages[i-1].CreatedAt.After(messages[i].CreatedAt))
	}
}

func TestMessageRepository_Append_Rejects_Missing_Parties(t *testing.T) {
	req := require.New(t)
	r := newTestMessageRepository(t, 10)

	_, _, err := r.Append(context.Background(), domain.NewMessage{SenderID: "x", Content: "?"})

	req.ErrorIs(err, errors.ErrInvalidMessage)
}
