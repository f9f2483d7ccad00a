package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttachmentRepository_Save_Sniffs_Content(t *testing.T) {
	req := require.New(t)
	repo := NewAttachmentRepository(openTestDB(t), 1024)
	ctx := context.Background()

	// The name lies, the bytes are a PDF
	pdf := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")
	saved, err := repo.Save(ctx, "ana", "photo.png", pdf)
	req.NoError(err)
	req.Equal("application/pdf", saved.MimeType)
	req.Equal(domain.MessageTypeFile, saved.MessageType())

	got, err := repo.Get(ctx, saved.ID)
	req.NoError(err)
	req.Equal(saved.OwnerID, got.OwnerID)
	req.Equal(pdf, got.Data)
	req.Equal(len(pdf), got.Size)
	req.True(saved.CreatedAt.Equal(got.CreatedAt))
}

func TestAttachmentRepository_Limits(t *testing.T) {
	req := require.New(t)
	repo := NewAttachmentRepository(openTestDB(t), 8)
	ctx := context.Background()

	_, err := repo.Save(ctx, "ana", "big.txt", make([]byte, 9))
	req.ErrorIs(err, errors.ErrAttachmentTooLarge)

	_, err = repo.Get(ctx, "0199e3a4-0000-7000-8000-000000000000")
	req.ErrorIs(err, errors.ErrAttachmentNotFound)
}

func TestAttachment_MessageType(t *testing.T) {
	req := require.New(t)
	req.Equal(domain.MessageTypeImage, Attachment{MimeType: "image/webp"}.MessageType())
	req.Equal(domain.MessageTypeFile, Attachment{MimeType: "text/plain; charset=utf-8"}.MessageType())
}
