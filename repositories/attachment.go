package repositories

import (
	"chat-relay/domain"
	"chat-relay/domain/mimetypes"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Attachment is a file a user uploaded before referencing it in a message.
type Attachment struct {
	ID        string
	OwnerID   domain.UserID
	Name      string
	MimeType  string
	Size      int
	CreatedAt time.Time
	Data      []byte
}

// MessageType derives the message type from the sniffed content.
func (a Attachment) MessageType() domain.MessageType {
	if mimetypes.IsImage(a.MimeType) {
		return domain.MessageTypeImage
	}
	return domain.MessageTypeFile
}

const (
	attFieldID protowire.Number = iota + 1
	attFieldOwner
	attFieldName
	attFieldMime
	attFieldSize
	attFieldCreatedAt
	attFieldData
)

func attachmentKey(id string) []byte { return []byte("att:" + id) }

type AttachmentRepository struct {
	db      *badger.DB
	maxSize int
}

func NewAttachmentRepository(db *badger.DB, maxSize int) *AttachmentRepository {
	return &AttachmentRepository{db: db, maxSize: maxSize}
}

// Save sniffs the content type from the bytes themselves, never from the name.
func (r *AttachmentRepository) Save(ctx context.Context, owner domain.UserID, name string, data []byte) (Attachment, error) {
	if ctx.Err() != nil {
		return Attachment{}, ctx.Err()
	}
	if r.maxSize > 0 && len(data) > r.maxSize {
		return Attachment{}, errors.ErrAttachmentTooLarge
	}
	att := Attachment{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Name:      name,
		MimeType:  mimetype.Detect(data).String(),
		Size:      len(data),
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
	var b []byte
	b = appendString(b, attFieldID, att.ID)
	b = appendString(b, attFieldOwner, string(att.OwnerID))
	b = appendString(b, attFieldName, att.Name)
	b = appendString(b, attFieldMime, att.MimeType)
	b = appendVarint(b, attFieldSize, uint64(att.Size))
	b = appendTime(b, attFieldCreatedAt, &att.CreatedAt)
	b = appendBytes(b, attFieldData, att.Data)

	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(attachmentKey(att.ID), b)
	})
	if err != nil {
		return Attachment{}, err
	}
	return att, nil
}

func (r *AttachmentRepository) Get(ctx context.Context, id string) (Attachment, error) {
	if ctx.Err() != nil {
		return Attachment{}, ctx.Err()
	}
	var att Attachment
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(attachmentKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return walkFields(val, func(num protowire.Number, v uint64, raw []byte) error {
				switch num {
				case attFieldID:
					att.ID = string(raw)
				case attFieldOwner:
					att.OwnerID = domain.UserID(raw)
				case attFieldName:
					att.Name = string(raw)
				case attFieldMime:
					att.MimeType = string(raw)
				case attFieldSize:
					att.Size = int(v)
				case attFieldCreatedAt:
					att.CreatedAt = toTime(v)
				case attFieldData:
					att.Data = append([]byte(nil), raw...)
				}
				return nil
			})
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return Attachment{}, errors.ErrAttachmentNotFound
	}
	return att, err
}
