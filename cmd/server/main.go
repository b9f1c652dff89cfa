package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/http/server"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpc3 "github.com/mama165/sdk-go/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal server error.
// Returning instead of exiting lets the deferred database close run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Persistence & services
	userRepository := repositories.NewUserRepository(db)
	groupRepository := repositories.NewGroupRepository(db)
	messageRepository := repositories.NewMessageRepository(db, logger)
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)

	// 4. Presence engine
	monitoring := observability.NewMonitoringManager(logger)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry(config.RegistryShards)
	tracker := runtime.NewTracker(logger, services.NewGroupDirectory(groupRepository), config.DirectoryTimeout, config.RegistryShards)
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, tracker,
		runtime.NewAuthenticator(tokens, services.NewUserDirectory(userRepository)),
		runtime.NewDispatcher(logger, registry, tracker, monitoring),
		monitoring,
		runtime.Settings{
			BufferSize:     config.ConnectionBufferSize,
			MetricInterval: config.MetricInterval,
			ExpiryInterval: config.ExpiryInterval,
		},
	)

	authService := services.NewAuthService(userRepository, tokens)
	groupService := services.NewGroupService(logger, userRepository, groupRepository)
	moderator, err := moderation.NewModerator(logger, config.Censored(), config.Mask())
	if err != nil {
		return exitConfig, fmt.Errorf("censored words: %w", err)
	}
	messageService := services.NewMessageService(logger, userRepository, groupRepository, messageRepository, orchestrator).
		WithModerator(moderator)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)

	go func() {
		logger.Info("Starting orchestrator...")
		orchestrator.Start(ctx)
	}()

	// 6. HTTP API & websocket
	httpServer := server.NewServer(logger, authService, groupService, messageService, tokens, orchestrator,
		server.WebsocketSettings{
			MaxMessageSize: config.MaxMessageSize,
			WriteTimeout:   config.WriteTimeout,
			PongTimeout:    config.PongTimeout,
			PingPeriod:     config.PingPeriod(),
			AllowedOrigins: config.Origins(),
		}).HTTPServer(fmt.Sprintf("%s:%d", config.Host, config.Port))

	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC health service
	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	listener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("Starting gRPC health server", "address", healthAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Debug inspector
	var debugServer *http.Server
	if config.IsDebug() {
		debugServer = internal.NewDebugServer(logger, db, orchestrator, monitoring, nil).Server(config.DebugPort)
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/debug/inspect", config.DebugPort))
		go func() {
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("debug server error: %w", err)
			}
		}()
	}

	// 9. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
		logger.Error("Server failure, shutting down", "error", runErr)
	}

	// 10. Graceful shutdown
	// Health flips first so load balancers stop routing, then new HTTP requests are refused
	// while live sockets are closed by the orchestrator.
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}
