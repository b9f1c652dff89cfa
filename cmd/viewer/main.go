package main

import (
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"fmt"
	"log"
	"log/slog"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// offline stands in for the presence engine, which does not run in the viewer.
type offline struct{}

func (offline) Snapshot() observability.PresenceSnapshot { return observability.PresenceSnapshot{} }
func (offline) Connections() []*runtime.Connection      { return nil }

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	DebugPort      int    `env:"DEBUG_PORT,default=8082"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
}

// The viewer serves the inspector pages over a database owned by a running or stopped server.
func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	server := internal.NewDebugServer(logger, db, offline{}, observability.NewMonitoringManager(logger), nil).
		Server(config.DebugPort)

	logger.Info("Viewer started", "url", fmt.Sprintf("http://localhost:%d/debug/inspect", config.DebugPort))
	if err := server.ListenAndServe(); err != nil {
		logger.Error("Viewer stopped", slog.Any("error", err))
	}
}
