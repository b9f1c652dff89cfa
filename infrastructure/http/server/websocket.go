package server

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// websocketHandler upgrades first and authenticates second, so a refused
// handshake can still be reported with a 1008 close frame carrying the error code.
type websocketHandler struct {
	log      *slog.Logger
	gateway  IPresenceGateway
	settings WebsocketSettings
	upgrader websocket.Upgrader
	origins  []string
	anyOrig  bool
}

func newWebsocketHandler(log *slog.Logger, gateway IPresenceGateway, settings WebsocketSettings) *websocketHandler {
	h := &websocketHandler{
		log:      log.With("component", "websocket"),
		gateway:  gateway,
		settings: settings,
	}
	h.origins, h.anyOrig = normalizeOrigins(settings.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *websocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request with an HTTP error.
		h.log.Debug("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn, err := h.gateway.OnConnectionOpen(r.Context(), credential(r), r.RemoteAddr)
	if err != nil {
		h.refuse(ws, err)
		return
	}

	go h.writePump(ws, conn)
	h.readPump(r.Context(), ws, conn)
}

func credential(r *http.Request) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func (h *websocketHandler) refuse(ws *websocket.Conn, err error) {
	deadline := time.Now().Add(h.settings.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errors.Code(err))
	if writeErr := ws.WriteControl(websocket.CloseMessage, msg, deadline); writeErr != nil {
		h.log.Debug("Unable to send refusal", "error", writeErr)
	}
	_ = ws.Close()
}

// readPump owns the read side. When it returns the connection is retracted,
// which closes the outbound queue and lets writePump finish.
func (h *websocketHandler) readPump(ctx context.Context, ws *websocket.Conn, conn *runtime.Connection) {
	defer func() {
		h.gateway.OnConnectionClose(conn.ID())
		_ = ws.Close()
	}()

	ws.SetReadLimit(h.settings.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.settings.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.settings.PongTimeout))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Websocket read failed", "conn_id", conn.ID(), "user_id", conn.UserID(), "error", err)
			}
			return
		}
		h.handleFrame(ctx, conn, raw)
	}
}

func (h *websocketHandler) handleFrame(ctx context.Context, conn *runtime.Connection, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(conn, errors.ErrMalformedFrame)
		return
	}

	switch frame.Event {
	case domain.EventJoinGroup:
		var req domain.JoinGroupRequest
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &req); err != nil {
				h.sendError(conn, errors.ErrMalformedFrame)
				return
			}
		}
		// The orchestrator answers on the connection itself.
		_ = h.gateway.OnJoinRequest(ctx, conn.ID(), req.GroupID)
	default:
		h.sendError(conn, errors.ErrUnknownEvent)
	}
}

func (h *websocketHandler) sendError(conn *runtime.Connection, err error) {
	envelope, encodeErr := domain.NewEnvelope(domain.EventError, domain.ErrorPayload{
		Code:    errors.Code(err),
		Message: errors.Message(err),
	})
	if encodeErr != nil {
		return
	}
	if sendErr := conn.Send(envelope); sendErr != nil {
		h.log.Debug("Unable to report frame error", "conn_id", conn.ID(), "error", sendErr)
	}
}

// writePump is the only writer of ws. It drains the outbound queue, which stays
// readable after Close until empty, then sends a close frame.
func (h *websocketHandler) writePump(ws *websocket.Conn, conn *runtime.Connection) {
	ticker := time.NewTicker(h.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case envelope, ok := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteJSON(envelope); err != nil {
				h.log.Debug("Websocket write failed", "conn_id", conn.ID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin lets non-browser clients through. Browsers must match the allow
// list or, when it is empty, the request host.
func (h *websocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.anyOrig {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if len(h.origins) == 0 {
		u, _ := url.Parse(normalized)
		return strings.EqualFold(u.Host, r.Host)
	}
	if lo.Contains(h.origins, normalized) {
		return true
	}
	h.log.Warn("Blocked websocket connection from disallowed origin", "origin", origin)
	return false
}

func normalizeOrigins(origins []string) ([]string, bool) {
	allowAll := lo.Contains(origins, "*")
	normalized := lo.FilterMap(origins, func(o string, _ int) (string, bool) {
		return normalizeOrigin(o)
	})
	return lo.Uniq(normalized), allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
