package server

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (f *fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (f *fixture) waitFor(t *testing.T, connections, rooms int) {
	t.Helper()
	require.Eventually(t, func() bool {
		snapshot := f.orchestrator.Snapshot()
		return snapshot.Connections == connections && snapshot.Rooms == rooms
	}, 2*time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func sendFrame(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func TestWebsocket_Handshake_Refused_With_Policy_Violation(t *testing.T) {
	f := newFixture(t)
	expired := auth.NewTokenManager(testSecret, -time.Minute)
	stale, err := expired.GenerateToken(domain.User{ID: "u-1", Username: "ghost"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{name: "missing token", token: "", code: "MISSING_TOKEN"},
		{name: "garbage token", token: "not-a-jwt", code: "INVALID_TOKEN"},
		{name: "expired token", token: stale, code: "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a client with a bad credential
			ws := f.dial(t, tt.token)

			// When it reads
			require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
			_, _, err := ws.ReadMessage()

			// Then the server closed with 1008 and the failure code
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
			require.Equal(t, tt.code, closeErr.Text)
		})
	}
	f.waitFor(t, 0, 0)
}

func TestWebsocket_Unknown_User_Is_Refused(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given a valid token for a user that was never stored
	token, err := f.tokens.GenerateToken(domain.User{ID: "u-ghost", Username: "ghost"})
	req.NoError(err)

	ws := f.dial(t, token)
	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = ws.ReadMessage()

	var closeErr *websocket.CloseError
	req.ErrorAs(err, &closeErr)
	req.Equal("UNKNOWN_USER", closeErr.Text)
}

func TestWebsocket_Bearer_Header_Is_Accepted(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.register(t, "alice")

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + alice.token}})
	req.NoError(err)
	defer ws.Close()

	f.waitFor(t, 1, 0)
}

func TestWebsocket_AutoJoin_And_Group_Fanout(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	group := f.createGroup(t, alice, "team", bob)

	// Given bob online on two devices, auto-joined to his group
	phone := f.dial(t, bob.token)
	laptop := f.dial(t, bob.token)
	f.waitFor(t, 2, 1)

	// When alice posts to the group over REST
	status, res := f.do(t, http.MethodPost, fmt.Sprintf("/api/groups/%s/messages", group.ID), alice.token,
		auth.GroupMessageRequest{Content: "standup in 5"})
	req.Equal(http.StatusCreated, status, res.Message)

	// Then both devices receive it as group_message
	for _, ws := range []*websocket.Conn{phone, laptop} {
		got := readFrame(t, ws)
		req.Equal(domain.EventGroupMessage, got.Event)
		var message domain.Message
		req.NoError(json.Unmarshal(got.Data, &message))
		req.Equal("standup in 5", message.Content)
		req.Equal(group.ID, message.GroupID)
		req.Equal(alice.userID, message.SenderID)
	}
}

func TestWebsocket_Direct_Message_Reaches_Receiver_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	aliceWS := f.dial(t, alice.token)
	bobWS := f.dial(t, bob.token)
	f.waitFor(t, 2, 0)

	// When alice writes to bob
	status, _ := f.do(t, http.MethodPost, "/api/messages", alice.token,
		auth.MessageRequest{ReceiverID: string(bob.userID), Content: "psst"})
	req.Equal(http.StatusOK, status)

	// Then bob gets a message event
	got := readFrame(t, bobWS)
	req.Equal(domain.EventMessage, got.Event)

	// And alice gets nothing
	req.NoError(aliceWS.SetReadDeadline(time.Now().Add(100 * time.Millisecond)))
	_, _, err := aliceWS.ReadMessage()
	req.Error(err)
}

func TestWebsocket_Join_Group_Frames(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	// Given alice connected before any group exists
	ws := f.dial(t, alice.token)
	f.waitFor(t, 1, 0)
	mine := f.createGroup(t, alice, "mine")
	theirs := f.createGroup(t, bob, "theirs")

	tests := []struct {
		name  string
		raw   string
		event string
		code  string
	}{
		{name: "member joins", raw: fmt.Sprintf(`{"event":"join_group","data":{"groupId":%q}}`, mine.ID), event: domain.EventGroupJoined},
		{name: "not a member", raw: fmt.Sprintf(`{"event":"join_group","data":{"groupId":%q}}`, theirs.ID), event: domain.EventError, code: "NOT_A_MEMBER"},
		{name: "unknown group", raw: `{"event":"join_group","data":{"groupId":"nope"}}`, event: domain.EventError, code: "GROUP_NOT_FOUND"},
		{name: "missing group id", raw: `{"event":"join_group","data":{}}`, event: domain.EventError, code: "GROUP_ID_MISSING"},
		{name: "unknown event", raw: `{"event":"dance","data":{}}`, event: domain.EventError, code: "UNKNOWN_EVENT"},
		{name: "malformed frame", raw: `{"event":`, event: domain.EventError, code: "MALFORMED_FRAME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sendFrame(t, ws, tt.raw)

			got := readFrame(t, ws)
			require.Equal(t, tt.event, got.Event)
			if tt.code != "" {
				var payload domain.ErrorPayload
				require.NoError(t, json.Unmarshal(got.Data, &payload))
				require.Equal(t, tt.code, payload.Code)
			}
		})
	}

	// Then only the joined room is tracked
	req.Equal(1, f.orchestrator.Snapshot().Rooms)
	req.Equal(1, f.orchestrator.Snapshot().Connections)
}

func TestWebsocket_Disconnect_Retracts_Connection(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	f.createGroup(t, alice, "team")

	// Given alice online in her group
	ws := f.dial(t, alice.token)
	f.waitFor(t, 1, 1)

	// When she closes the socket
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = ws.Close()

	// Then her connection and room membership are gone
	f.waitFor(t, 0, 0)
}

func TestWebsocket_Server_Disconnect_Closes_Socket(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.register(t, "alice")

	ws := f.dial(t, alice.token)
	f.waitFor(t, 1, 0)

	// When the engine drops every connection of alice
	req.Equal(1, f.orchestrator.Disconnect(alice.userID))

	// Then the client sees a normal closure
	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebsocket_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		ok      bool
	}{
		{name: "no origin header", allowed: nil, origin: "", host: "chat.example.com", ok: true},
		{name: "same origin by default", allowed: nil, origin: "https://chat.example.com", host: "chat.example.com", ok: true},
		{name: "cross origin by default", allowed: nil, origin: "https://evil.example.com", host: "chat.example.com", ok: false},
		{name: "listed origin", allowed: []string{"https://App.Example.com/"}, origin: "https://app.example.com", host: "api", ok: true},
		{name: "unlisted origin", allowed: []string{"https://app.example.com"}, origin: "https://evil.example.com", host: "api", ok: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anything.example.com", host: "api", ok: true},
		{name: "invalid origin", allowed: []string{"https://app.example.com"}, origin: "::not-a-url", host: "api", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newWebsocketHandler(slog.New(slog.DiscardHandler), nil, WebsocketSettings{AllowedOrigins: tt.allowed})
			r := httptest.NewRequest(http.MethodGet, "http://"+tt.host+"/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.ok, h.checkOrigin(r))
		})
	}
}
