// Package server exposes the REST API and the websocket endpoint.
// Handlers stay thin: decode, call a service or the presence engine, map errors to wire codes.
package server

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http"
	"time"
)

// IPresenceGateway is the slice of the orchestrator the websocket transport drives.
type IPresenceGateway interface {
	OnConnectionOpen(ctx context.Context, rawCredential, remoteAddr string) (*runtime.Connection, error)
	OnConnectionClose(connID domain.ConnectionID)
	OnJoinRequest(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error
}

type WebsocketSettings struct {
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingPeriod     time.Duration
	AllowedOrigins []string
}

type Server struct {
	log      *slog.Logger
	auth     services.IAuthService
	groups   services.IGroupService
	messages services.IMessageService
	verifier contract.ITokenVerifier
	gateway  IPresenceGateway
	ws       *websocketHandler
}

func NewServer(log *slog.Logger,
	authService services.IAuthService,
	groupService services.IGroupService,
	messageService services.IMessageService,
	verifier contract.ITokenVerifier,
	gateway IPresenceGateway,
	settings WebsocketSettings,
) *Server {
	return &Server{
		log:      log.With("component", "http_server"),
		auth:     authService,
		groups:   groupService,
		messages: messageService,
		verifier: verifier,
		gateway:  gateway,
		ws:       newWebsocketHandler(log, gateway, settings),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.Handle("POST /api/groups", s.requireAuth(http.HandlerFunc(s.handleCreateGroup)))
	mux.Handle("POST /api/groups/{groupId}/messages", s.requireAuth(http.HandlerFunc(s.handleSendGroupMessage)))
	mux.Handle("POST /api/messages", s.requireAuth(http.HandlerFunc(s.handleSendMessage)))
	mux.Handle("GET /api/messages/history", s.requireAuth(http.HandlerFunc(s.handleHistory)))

	mux.Handle("GET /ws", s.ws)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, "ok", nil)
	})

	return s.withRecovery(s.withLogging(mux))
}

// HTTPServer wraps Routes with the timeouts used in production. WriteTimeout is left
// unset because websocket connections outlive any single write.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
