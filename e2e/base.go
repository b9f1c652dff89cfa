package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const e2ePassword = "E2e-passw0rd!"

type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Account struct {
	Username string
	Token    string `json:"token"`
	UserID   string `json:"userId"`
}

type BaseSuite struct {
	suite.Suite
	Config Config
	client *http.Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping e2e suite")
	}
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a colorized header for a scenario step in the test logs.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Call performs a REST call and decodes the envelope.
func (s *BaseSuite) Call(method, path, token string, body any) (int, Envelope) {
	var reader io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, strings.TrimRight(s.Config.ServerAddr, "/")+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := s.client.Do(req)
	s.Require().NoError(err, "Failed to reach server at "+s.Config.ServerAddr)
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	s.Require().NoError(err)
	s.T().Logf("HTTP %s %s [%d] in %v", method, path, res.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		s.T().Logf("REQUEST:\n%s\nRESPONSE:\n%s", raw, payload)
	}

	var envelope Envelope
	s.Require().NoError(json.Unmarshal(payload, &envelope))
	return res.StatusCode, envelope
}

// Register creates a throwaway account with a unique name.
func (s *BaseSuite) Register(prefix string) Account {
	username := fmt.Sprintf("%s%s", prefix, uuid.NewString()[:8])
	status, env := s.Call(http.MethodPost, "/api/register", "", map[string]string{
		"username": username,
		"email":    username + "@e2e.test",
		"password": e2ePassword,
	})
	s.Require().Equal(http.StatusCreated, status, env.Message)

	account := Account{Username: username}
	s.Require().NoError(json.Unmarshal(env.Data, &account))
	return account
}

// Dial opens a websocket for account.
func (s *BaseSuite) Dial(account Account) *websocket.Conn {
	u, err := url.Parse(s.Config.ServerAddr)
	s.Require().NoError(err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {account.Token}}.Encode()

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = ws.Close() })
	return ws
}

// Expect reads frames until one with the given event arrives.
func (s *BaseSuite) Expect(ws *websocket.Conn, event string) Event {
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.Require().NoError(ws.SetReadDeadline(deadline))
		var e Event
		s.Require().NoError(ws.ReadJSON(&e), "waiting for "+event)
		if e.Event == event {
			return e
		}
		s.T().Logf("skipping %s while waiting for %s", e.Event, event)
	}
}

// WithHealth provides a gRPC health client within a contextual test step.
func (s *BaseSuite) WithHealth(name string, fn func(ctx context.Context, client grpc_health_v1.HealthClient)) {
	s.Step(name)
	conn, err := grpc.NewClient(s.Config.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.HealthAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, grpc_health_v1.NewHealthClient(conn))
}
