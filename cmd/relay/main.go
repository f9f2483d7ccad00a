package main

import (
	"chat-relay/auth"
	grpcserver "chat-relay/infrastructure/grpc/server"
	httpserver "chat-relay/infrastructure/http"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal arrives.
// Returning instead of exiting lets the deferred Badger close run.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment alone may be enough.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s?prefix=msg:", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, repositories.DescribeEntry)
	}

	// 3. Storage and core
	users := repositories.NewUserRepository(db)
	messages := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	attachments := repositories.NewAttachmentRepository(db, config.MaxAttachmentSize)

	tokens := auth.NewTokenAuthenticator(config.JwtSecret, config.AuthTokenDuration)
	monitoring := observability.NewMonitoringManager(logger)
	registry := runtime.NewRegistry(config.RegistryShards)
	router := runtime.NewRouter(logger, registry, config.PushTimeout).WithRecorder(monitoring)
	locks := runtime.NewConversationLocks(config.ConversationStripes)
	readState := runtime.NewReadStateSynchronizer(logger, messages, router, locks)
	sessions := runtime.NewSessionManager(logger, tokens, registry, config.ConnectionBufferSize)

	chatService := services.NewChatService(logger, messages, users, attachments, router, readState, locks)
	authService := services.NewAuthService(users, tokens)

	// 4. Listeners and background workers
	httpServer := httpserver.NewServer(logger, config.HTTPAddress(), httpserver.Options{
		WriteTimeout:    config.WriteTimeout,
		ReadTimeout:     config.ReadTimeout,
		PingInterval:    config.PingInterval,
		MaxFrameSize:    int64(config.MaxFrameSize),
		MaxUploadSize:   int64(config.MaxAttachmentSize),
		ShutdownTimeout: config.ShutdownTimeout,
	}, chatService, authService, attachments, users, tokens, sessions, monitoring)
	healthServer := grpcserver.NewHealthServer(logger, config.GrpcAddress())
	presence := workers.NewPresenceReporterWorker(logger, registry, sessions, monitoring, config.MetricInterval)
	queues := workers.NewChannelCapacityWorker(logger, sessions, monitoring, config.QueueWarnRatio, config.MetricInterval)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(httpServer, healthServer, presence, queues)

	// 5. Run until a signal arrives
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		// Probes see the drain before listeners go away.
		healthServer.SetServing(false)
	}()
	sup.Run(ctx)

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		// The inspector reads the same directory.
		return options.WithLoggingLevel(badger.DEBUG).WithBypassLockGuard(true)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
