package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
)

type IChatService interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, bool, error)
	ListConversations(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error)
	GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) ([]domain.Message, *string, error)
	MarkRead(ctx context.Context, cmd domain.MarkReadCommand) (int, error)
	Acknowledge(ctx context.Context, cmd domain.AcknowledgeCommand) (int, error)
}

// IAttachmentRepository is the part of the attachment store a sender needs.
type IAttachmentRepository interface {
	Get(ctx context.Context, id string) (repositories.Attachment, error)
}

// ChatService is the request/response side of the chat: it persists first,
// then hands the stored message to the router.
type ChatService struct {
	log         *slog.Logger
	store       contract.ConversationStore
	directory   contract.UserDirectory
	attachments IAttachmentRepository
	router      contract.IRouter
	readState   *runtime.ReadStateSynchronizer
	locks       *runtime.ConversationLocks
}

func NewChatService(log *slog.Logger, store contract.ConversationStore, directory contract.UserDirectory,
	attachments IAttachmentRepository, router contract.IRouter,
	readState *runtime.ReadStateSynchronizer, locks *runtime.ConversationLocks) *ChatService {
	return &ChatService{
		log:         log,
		store:       store,
		directory:   directory,
		attachments: attachments,
		router:      router,
		readState:   readState,
		locks:       locks,
	}
}

// SendMessage persists the message and routes it to the live connections of
// both correspondents. A replayed client message id returns the stored message
// with created set to false and is not routed again.
// Nothing is routed when persistence fails.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, bool, error) {
	if err := auth.ValidateStruct(cmd); err != nil {
		return domain.Message{}, false, err
	}
	if cmd.ReceiverID == cmd.Sender.UserID {
		return domain.Message{}, false, errors.ErrSelfMessage
	}
	if cmd.Type == domain.MessageTypeSystem {
		return domain.Message{}, false, fmt.Errorf("%w: system messages can't be sent by users", errors.ErrInvalidMessage)
	}

	receiverRole, err := s.directory.RoleOf(ctx, cmd.ReceiverID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUnknownUser) {
			return domain.Message{}, false, err
		}
		return domain.Message{}, false, fmt.Errorf("%w: resolve receiver: %v", errors.ErrPersistence, err)
	}
	if !domain.CanCorrespond(cmd.Sender.Role, receiverRole) {
		return domain.Message{}, false, errors.ErrRoleMismatch
	}

	messageType, err := s.resolveType(ctx, cmd)
	if err != nil {
		return domain.Message{}, false, err
	}

	unlock := s.locks.Lock(domain.NewConversationKey(cmd.Sender.UserID, cmd.ReceiverID))
	defer unlock()

	message, created, err := s.store.Append(ctx, domain.NewMessage{
		ClientMessageID: cmd.ClientMessageID,
		SenderID:        cmd.Sender.UserID,
		ReceiverID:      cmd.ReceiverID,
		Content:         cmd.Content,
		AttachmentID:    cmd.AttachmentID,
		Type:            messageType,
	})
	if err != nil {
		s.log.Error("Message not persisted",
			"sender_id", cmd.Sender.UserID, "receiver_id", cmd.ReceiverID, "error", err)
		return domain.Message{}, false, fmt.Errorf("%w: append: %v", errors.ErrPersistence, err)
	}
	if !created {
		s.log.Debug("Duplicate client message ignored",
			"message_id", message.ID, "client_message_id", cmd.ClientMessageID)
		return message, false, nil
	}

	// The sender may hang up right after the write, delivery still goes on.
	s.router.Deliver(context.WithoutCancel(ctx), message)
	return message, true, nil
}

func (s *ChatService) resolveType(ctx context.Context, cmd domain.SendMessageCommand) (domain.MessageType, error) {
	if cmd.AttachmentID == "" {
		if cmd.Type == domain.MessageTypeImage || cmd.Type == domain.MessageTypeFile {
			return "", fmt.Errorf("%w: %s message without attachment", errors.ErrInvalidMessage, cmd.Type)
		}
		return domain.MessageTypeText, nil
	}
	attachment, err := s.attachments.Get(ctx, cmd.AttachmentID)
	if err != nil {
		return "", err
	}
	if attachment.OwnerID != cmd.Sender.UserID {
		return "", errors.ErrAttachmentNotFound
	}
	return attachment.MessageType(), nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error) {
	return s.store.ListConversationPartners(ctx, userID)
}

func (s *ChatService) GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) ([]domain.Message, *string, error) {
	if err := auth.ValidateStruct(cmd); err != nil {
		return nil, nil, err
	}
	return s.store.ListMessages(ctx, cmd.Viewer, cmd.PartnerID, domain.Page{Cursor: cmd.Cursor, Limit: cmd.Limit})
}

func (s *ChatService) MarkRead(ctx context.Context, cmd domain.MarkReadCommand) (int, error) {
	if err := auth.ValidateStruct(cmd); err != nil {
		return 0, err
	}
	return s.readState.MarkRead(ctx, cmd.Viewer, cmd.CounterpartID)
}

func (s *ChatService) Acknowledge(ctx context.Context, cmd domain.AcknowledgeCommand) (int, error) {
	if err := auth.ValidateStruct(cmd); err != nil {
		return 0, err
	}
	return s.readState.Acknowledge(ctx, cmd.Receiver, cmd.SenderID, cmd.MessageIDs)
}
