package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored with the protobuf wire format, written field by field.
// Unknown fields are skipped on read so that old records stay readable.

const (
	msgFieldID protowire.Number = iota + 1
	msgFieldClientID
	msgFieldSender
	msgFieldReceiver
	msgFieldContent
	msgFieldAttachment
	msgFieldType
	msgFieldStatus
	msgFieldCreatedAt
	msgFieldDeliveredAt
	msgFieldReadAt
)

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendTime(b []byte, num protowire.Number, t *time.Time) []byte {
	if t == nil || t.IsZero() {
		return b
	}
	return appendVarint(b, num, uint64(t.UnixNano()))
}

func toTime(v uint64) time.Time {
	return time.Unix(0, int64(v)).UTC()
}

// fieldVisitor receives each field of a record, either a varint or a byte slice.
type fieldVisitor func(num protowire.Number, varint uint64, raw []byte) error

func walkFields(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := visit(num, v, nil); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := visit(num, 0, v); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendBytes(b, msgFieldID, m.ID[:])
	b = appendString(b, msgFieldClientID, m.ClientMessageID)
	b = appendString(b, msgFieldSender, string(m.SenderID))
	b = appendString(b, msgFieldReceiver, string(m.ReceiverID))
	b = appendString(b, msgFieldContent, m.Content)
	b = appendString(b, msgFieldAttachment, m.AttachmentID)
	b = appendString(b, msgFieldType, string(m.Type))
	b = appendVarint(b, msgFieldStatus, uint64(m.Status))
	b = appendTime(b, msgFieldCreatedAt, &m.CreatedAt)
	b = appendTime(b, msgFieldDeliveredAt, m.DeliveredAt)
	b = appendTime(b, msgFieldReadAt, m.ReadAt)
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := walkFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case msgFieldID:
			id, err := uuid.FromBytes(raw)
			if err != nil {
				return fmt.Errorf("message id: %w", err)
			}
			m.ID = id
		case msgFieldClientID:
			m.ClientMessageID = string(raw)
		case msgFieldSender:
			m.SenderID = domain.UserID(raw)
		case msgFieldReceiver:
			m.ReceiverID = domain.UserID(raw)
		case msgFieldContent:
			m.Content = string(raw)
		case msgFieldAttachment:
			m.AttachmentID = string(raw)
		case msgFieldType:
			m.Type = domain.MessageType(raw)
		case msgFieldStatus:
			m.Status = domain.Status(v)
		case msgFieldCreatedAt:
			m.CreatedAt = toTime(v)
		case msgFieldDeliveredAt:
			t := toTime(v)
			m.DeliveredAt = &t
		case msgFieldReadAt:
			t := toTime(v)
			m.ReadAt = &t
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	if m.Type == "" {
		m.Type = domain.MessageTypeText
	}
	return m, nil
}
