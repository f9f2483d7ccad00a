package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrUnauthenticated = fmt.Errorf("unauthenticated")
	ErrSessionClosed   = fmt.Errorf("session closed")
	ErrConnectionOwned = fmt.Errorf("connection already registered for another user")

	ErrInvalidMessage     = fmt.Errorf("invalid message")
	ErrSelfMessage        = fmt.Errorf("cannot send a message to yourself")
	ErrRoleMismatch       = fmt.Errorf("messages are only allowed between a candidate and an instructor")
	ErrUnknownUser        = fmt.Errorf("unknown user")
	ErrMessageNotFound    = fmt.Errorf("message not found")
	ErrInvalidCursor      = fmt.Errorf("invalid cursor")
	ErrAttachmentNotFound = fmt.Errorf("attachment not found")
	ErrAttachmentTooLarge = fmt.Errorf("attachment too large")
	ErrPersistence        = fmt.Errorf("persistence failure")

	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

// MapToHTTPError translates core errors into echo errors.
// Anything unknown becomes a 500 without leaking the cause.
func MapToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *echo.HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr
	}
	switch {
	case stderrors.Is(err, ErrUnauthenticated), stderrors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case stderrors.Is(err, ErrRoleMismatch):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case stderrors.Is(err, ErrUnknownUser),
		stderrors.Is(err, ErrMessageNotFound),
		stderrors.Is(err, ErrAttachmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case stderrors.Is(err, ErrUserAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case stderrors.Is(err, ErrAttachmentTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case stderrors.Is(err, ErrInvalidMessage),
		stderrors.Is(err, ErrSelfMessage),
		stderrors.Is(err, ErrInvalidCursor),
		stderrors.Is(err, ErrInvalidPassword):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
