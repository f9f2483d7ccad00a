package http

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/mimetypes"
	"chat-relay/errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleHealth(c echo.Context) error {
	stats := s.monitoring.GetLatest()
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "healthy",
		"online_users": stats.OnlineUsers,
		"connections":  stats.Connections,
		"sessions":     s.sessions.Len(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.monitoring.GetLatest())
}

func (s *Server) handleRegister(c echo.Context) error {
	var body RegisterBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token, err := s.accounts.Register(auth.RegisterRequest{
		Email:       body.Email,
		Password:    body.Password,
		Role:        body.Role,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, TokenResponse{Token: string(token)})
}

func (s *Server) handleLogin(c echo.Context) error {
	var body LoginBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token, err := s.accounts.Login(body.Email, body.Password)
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: string(token)})
}

// handleSendMessage answers 201 for a new message and 200 for a replayed
// client message id, with the stored message in both cases.
func (s *Server) handleSendMessage(c echo.Context) error {
	identity, _ := auth.IdentityFrom(c)
	var body SendMessageBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	messageType, err := domain.ParseMessageType(body.Type)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	message, created, err := s.chat.SendMessage(c.Request().Context(), domain.SendMessageCommand{
		Sender:          identity,
		ReceiverID:      body.ReceiverID,
		Content:         body.Content,
		AttachmentID:    body.AttachmentID,
		Type:            messageType,
		ClientMessageID: body.ClientMessageID,
	})
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	return c.JSON(status, message)
}

func (s *Server) handleListConversations(c echo.Context) error {
	identity, _ := auth.IdentityFrom(c)
	conversations, err := s.chat.ListConversations(c.Request().Context(), identity.UserID)
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	if conversations == nil {
		conversations = []domain.ConversationSummary{}
	}
	return c.JSON(http.StatusOK, ConversationsResponse{Conversations: conversations})
}

func (s *Server) handleListMessages(c echo.Context) error {
	identity, _ := auth.IdentityFrom(c)
	cmd := domain.GetMessagesCommand{
		Viewer:    identity.UserID,
		PartnerID: domain.UserID(c.Param("partner_id")),
	}
	if cursor := c.QueryParam("cursor"); cursor != "" {
		cmd.Cursor = &cursor
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		cmd.Limit = n
	}
	messages, next, err := s.chat.GetMessages(c.Request().Context(), cmd)
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: messages, NextCursor: next})
}

func (s *Server) handleMarkRead(c echo.Context) error {
	identity, _ := auth.IdentityFrom(c)
	count, err := s.chat.MarkRead(c.Request().Context(), domain.MarkReadCommand{
		Viewer:        identity.UserID,
		CounterpartID: domain.UserID(c.Param("partner_id")),
	})
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	return c.JSON(http.StatusOK, CountResponse{Count: count})
}

func (s *Server) handleAcknowledge(c echo.Context) error {
	identity, _ := auth.IdentityFrom(c)
	var body AckPayload
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	count, err := s.chat.Acknowledge(c.Request().Context(), domain.AcknowledgeCommand{
		Receiver:   identity.UserID,
		SenderID:   domain.UserID(c.Param("partner_id")),
		MessageIDs: body.MessageIDs,
	})
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	return c.JSON(http.StatusOK, CountResponse{Count: count})
}

func (s *Server) handleUpload(c echo.Context) error {
	identity, _ := auth.IdentityFrom(c)
	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}
	if s.opts.MaxUploadSize > 0 && header.Size > s.opts.MaxUploadSize {
		return errors.MapToHTTPError(errors.ErrAttachmentTooLarge)
	}
	file, err := header.Open()
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	defer file.Close()

	reader := io.Reader(file)
	if s.opts.MaxUploadSize > 0 {
		// One extra byte lets the store notice an oversized body.
		reader = io.LimitReader(file, s.opts.MaxUploadSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	attachment, err := s.attachments.Save(c.Request().Context(), identity.UserID, header.Filename, data)
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, AttachmentResponse{
		ID:        attachment.ID,
		Name:      attachment.Name,
		MimeType:  attachment.MimeType,
		Size:      attachment.Size,
		CreatedAt: attachment.CreatedAt,
	})
}

// handleDownload serves an attachment to its owner and to anyone the owner
// may correspond with.
func (s *Server) handleDownload(c echo.Context) error {
	identity, _ := auth.IdentityFrom(c)
	ctx := c.Request().Context()
	attachment, err := s.attachments.Get(ctx, c.Param("id"))
	if err != nil {
		return errors.MapToHTTPError(err)
	}
	if attachment.OwnerID != identity.UserID {
		ownerRole, err := s.directory.RoleOf(ctx, attachment.OwnerID)
		if err != nil || !domain.CanCorrespond(identity.Role, ownerRole) {
			return errors.MapToHTTPError(errors.ErrAttachmentNotFound)
		}
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("%s; filename=%q", mimetypes.Disposition(attachment.MimeType), attachment.Name))
	return c.Blob(http.StatusOK, attachment.MimeType, attachment.Data)
}
