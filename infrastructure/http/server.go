// Package http exposes the chat over REST and WebSocket.
package http

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Options tunes the transport side of connections.
type Options struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxFrameSize    int64
	MaxUploadSize   int64
	ShutdownTimeout time.Duration
}

// Server is the HTTP listener, run under the supervisor.
type Server struct {
	echo        *echo.Echo
	log         *slog.Logger
	address     string
	opts        Options
	chat        services.IChatService
	accounts    services.IAuthService
	attachments IAttachmentStore
	directory   contract.UserDirectory
	sessions    *runtime.SessionManager
	monitoring  *observability.MonitoringManager
}

type IAttachmentStore interface {
	services.IAttachmentRepository
	Save(ctx context.Context, owner domain.UserID, name string, data []byte) (repositories.Attachment, error)
}

func NewServer(log *slog.Logger, address string, opts Options,
	chat services.IChatService, accounts services.IAuthService,
	attachments IAttachmentStore, directory contract.UserDirectory,
	authenticator contract.Authenticator, sessions *runtime.SessionManager,
	monitoring *observability.MonitoringManager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURIPath:  true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				log.Warn("Request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Debug("Request", attrs...)
			return nil
		},
	}))

	s := &Server{
		echo:        e,
		log:         log,
		address:     address,
		opts:        opts,
		chat:        chat,
		accounts:    accounts,
		attachments: attachments,
		directory:   directory,
		sessions:    sessions,
		monitoring:  monitoring,
	}

	e.GET("/health", s.handleHealth)
	e.GET("/debug/stats", s.handleStats)

	v1 := e.Group("/v1")
	v1.POST("/auth/register", s.handleRegister)
	v1.POST("/auth/login", s.handleLogin)
	v1.GET("/ws", s.handleWebSocket)

	authed := v1.Group("", auth.Middleware(authenticator))
	authed.POST("/messages", s.handleSendMessage)
	authed.GET("/conversations", s.handleListConversations)
	authed.GET("/conversations/:partner_id/messages", s.handleListMessages)
	authed.POST("/conversations/:partner_id/read", s.handleMarkRead)
	authed.POST("/conversations/:partner_id/ack", s.handleAcknowledge)
	authed.POST("/attachments", s.handleUpload)
	authed.GET("/attachments/:id", s.handleDownload)

	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then drains in-flight requests
// and closes every live connection.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "address", s.address, "at", time.Now().UTC())
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.sessions.Shutdown()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP shutdown incomplete", "error", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
