package repositories

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	conflictRetries = 5
	markReadBatch   = 1000
)

var cursorPattern = regexp.MustCompile(`^\d{19}:[0-9a-f-]{36}$`)

// MessageRepository is the Badger implementation of the conversation store.
//
// Key layout:
//
//	msg:{a|b}:{unix_nano_019}:{id}          message record, a|b sorted pair
//	mid:{id}                                 -> msg key
//	dedup:{sender}:{client_message_id}       -> msg key
//	unr:{viewer}:{counterpart}:{nano}:{id}   -> msg key, one per unread message
//	last:{user}:{partner}                    -> msg key of the latest message
//
// The unread counter is the number of unr: keys of a pair, it can't drift
// below zero and is empty right after MarkRead commits.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
	now           func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages int) *MessageRepository {
	return &MessageRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func conversationPrefix(key domain.ConversationKey) []byte {
	return []byte(fmt.Sprintf("msg:%s:", key))
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Conversation(), m.CreatedAt.UnixNano(), m.ID))
}

func idKey(id string) []byte { return []byte("mid:" + id) }

func dedupKey(sender domain.UserID, clientID string) []byte {
	return []byte(fmt.Sprintf("dedup:%s:%s", sender, clientID))
}

func unreadPrefix(viewer, counterpart domain.UserID) []byte {
	return []byte(fmt.Sprintf("unr:%s:%s:", viewer, counterpart))
}

func unreadKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("unr:%s:%s:%019d:%s", m.ReceiverID, m.SenderID, m.CreatedAt.UnixNano(), m.ID))
}

func lastPrefix(user domain.UserID) []byte {
	return []byte(fmt.Sprintf("last:%s:", user))
}

func lastKey(user, partner domain.UserID) []byte {
	return []byte(fmt.Sprintf("last:%s:%s", user, partner))
}

// withRetry reruns fn when a concurrent transaction touched the same keys.
func (r *MessageRepository) withRetry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = r.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func getMessage(txn *badger.Txn, key []byte) (domain.Message, error) {
	item, err := txn.Get(key)
	if err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	err = item.Value(func(val []byte) error {
		m, err = decodeMessage(val)
		return err
	})
	return m, err
}

func getPointer(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Append persists a message and returns it once the transaction is committed.
// A message whose client id was already stored for the same sender is returned
// as is with created set to false.
func (r *MessageRepository) Append(ctx context.Context, nm domain.NewMessage) (domain.Message, bool, error) {
	if nm.SenderID == "" || nm.ReceiverID == "" {
		return domain.Message{}, false, fmt.Errorf("%w: sender and receiver are required", errors.ErrInvalidMessage)
	}
	var (
		stored  domain.Message
		created bool
	)
	err := r.withRetry(ctx, func(txn *badger.Txn) error {
		created = false
		if nm.ClientMessageID != "" {
			ptr, err := getPointer(txn, dedupKey(nm.SenderID, nm.ClientMessageID))
			switch {
			case err == nil:
				stored, err = getMessage(txn, ptr)
				return err
			case !stderrors.Is(err, badger.ErrKeyNotFound):
				return err
			}
		}

		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		at, err := r.nextTimestamp(txn, nm.SenderID, nm.ReceiverID)
		if err != nil {
			return err
		}
		m := domain.Message{
			ID:              id,
			ClientMessageID: nm.ClientMessageID,
			SenderID:        nm.SenderID,
			ReceiverID:      nm.ReceiverID,
			Content:         nm.Content,
			AttachmentID:    nm.AttachmentID,
			Type:            nm.Type,
			Status:          domain.StatusSent,
			CreatedAt:       at,
		}
		if m.Type == "" {
			m.Type = domain.MessageTypeText
		}
		key := messageKey(m)
		writes := []struct{ k, v []byte }{
			{key, encodeMessage(m)},
			{idKey(id.String()), key},
			{unreadKey(m), key},
			{lastKey(m.SenderID, m.ReceiverID), key},
			{lastKey(m.ReceiverID, m.SenderID), key},
		}
		if m.ClientMessageID != "" {
			writes = append(writes, struct{ k, v []byte }{dedupKey(m.SenderID, m.ClientMessageID), key})
		}
		for _, w := range writes {
			if err := txn.Set(w.k, w.v); err != nil {
				return err
			}
		}
		stored, created = m, true
		return nil
	})
	if err != nil {
		return domain.Message{}, false, err
	}
	return stored, created, nil
}

// nextTimestamp keeps timestamps strictly increasing inside a conversation,
// even if the wall clock steps back.
func (r *MessageRepository) nextTimestamp(txn *badger.Txn, a, b domain.UserID) (time.Time, error) {
	at := r.now()
	ptr, err := getPointer(txn, lastKey(a, b))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return at, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	parts := strings.Split(string(ptr), ":")
	if len(parts) != 4 {
		return at, nil
	}
	nanos, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return at, nil
	}
	if at.UnixNano() <= nanos {
		at = time.Unix(0, nanos+1).UTC()
	}
	return at, nil
}

// ListMessages retrieves a page of the conversation, newest first, using a
// reverse prefix scan. The cursor is the "{nano}:{id}" suffix of the last key
// returned, and is nil once the conversation is exhausted.
func (r *MessageRepository) ListMessages(ctx context.Context, userID, partnerID domain.UserID,
	page domain.Page) ([]domain.Message, *string, error) {
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	if page.Cursor != nil && !cursorPattern.MatchString(*page.Cursor) {
		return nil, nil, errors.ErrInvalidCursor
	}
	limit := page.Limit
	if limit <= 0 || (r.limitMessages > 0 && limit > r.limitMessages) {
		limit = r.limitMessages
	}

	var (
		messages []domain.Message
		lastSeen string
		more     bool
	)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := conversationPrefix(domain.NewConversationKey(userID, partnerID))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch page.Cursor {
		case nil:
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*page.Cursor)...)
		}
		it.Seek(seekKey)
		if page.Cursor != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				more = true
				break
			}
			item := it.Item()
			lastSeen = string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				m, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !more {
		return messages, nil, nil
	}
	return messages, &lastSeen, nil
}

// ListConversationPartners returns one summary per partner, latest activity first.
func (r *MessageRepository) ListConversationPartners(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var summaries []domain.ConversationSummary
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := lastPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			partner := domain.UserID(item.Key()[len(prefix):])
			ptr, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			last, err := getMessage(txn, ptr)
			if err != nil {
				return err
			}
			unread, err := countPrefix(txn, unreadPrefix(userID, partner))
			if err != nil {
				return err
			}
			summaries = append(summaries, domain.ConversationSummary{
				PartnerID:   partner,
				LastMessage: last,
				UnreadCount: unread,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})
	return summaries, nil
}

func countPrefix(txn *badger.Txn, prefix []byte) (int, error) {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()
	count := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count, nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, viewerID, counterpartID domain.UserID) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	var count int
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = countPrefix(txn, unreadPrefix(viewerID, counterpartID))
		return err
	})
	return count, err
}

// MarkRead marks read every message counterpart sent to viewer that is not read yet.
// Large backlogs are processed in batches so a transaction never grows too big.
func (r *MessageRepository) MarkRead(ctx context.Context, viewerID, counterpartID domain.UserID) (int, error) {
	total := 0
	for {
		marked, scanned := 0, 0
		err := r.withRetry(ctx, func(txn *badger.Txn) error {
			marked, scanned = 0, 0
			prefix := unreadPrefix(viewerID, counterpartID)
			options := badger.DefaultIteratorOptions
			options.Prefix = prefix
			it := txn.NewIterator(options)
			var keys, pointers [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix) && len(keys) < markReadBatch; it.Next() {
				item := it.Item()
				ptr, err := item.ValueCopy(nil)
				if err != nil {
					it.Close()
					return err
				}
				keys = append(keys, item.KeyCopy(nil))
				pointers = append(pointers, ptr)
			}
			it.Close()
			scanned = len(keys)

			at := r.now()
			for i, ptr := range pointers {
				m, err := getMessage(txn, ptr)
				if err != nil && !stderrors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				if err == nil && m.MarkRead(at) {
					if err := txn.Set(ptr, encodeMessage(m)); err != nil {
						return err
					}
					marked++
				}
				if err := txn.Delete(keys[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += marked
		if scanned < markReadBatch {
			return total, nil
		}
	}
}

// MarkDelivered advances to delivered the listed messages that sender sent to receiver.
// Unknown ids and messages of other conversations are skipped.
func (r *MessageRepository) MarkDelivered(ctx context.Context, receiverID, senderID domain.UserID,
	messageIDs []string) ([]domain.Message, error) {
	var advanced []domain.Message
	err := r.withRetry(ctx, func(txn *badger.Txn) error {
		advanced = advanced[:0]
		at := r.now()
		for _, id := range messageIDs {
			ptr, err := getPointer(txn, idKey(id))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			m, err := getMessage(txn, ptr)
			if err != nil {
				return err
			}
			if m.ReceiverID != receiverID || m.SenderID != senderID {
				continue
			}
			if !m.MarkDelivered(at) {
				continue
			}
			if err := txn.Set(ptr, encodeMessage(m)); err != nil {
				return err
			}
			advanced = append(advanced, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return advanced, nil
}

// GetMessage loads one message by id.
func (r *MessageRepository) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	if ctx.Err() != nil {
		return domain.Message{}, ctx.Err()
	}
	var m domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		ptr, err := getPointer(txn, idKey(id))
		if err != nil {
			return err
		}
		m, err = getMessage(txn, ptr)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	return m, err
}
