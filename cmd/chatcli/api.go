package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// apiError is the error envelope returned by the server.
type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

type session struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	GroupID    string    `json:"groupId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type historyPage struct {
	TotalMessages int       `json:"totalMessages"`
	TotalPages    int       `json:"totalPages"`
	CurrentPage   int       `json:"currentPage"`
	Clamped       bool      `json:"clamped"`
	Messages      []message `json:"messages"`
}

type group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// apiClient talks to the REST API. token is set after register or login.
type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	if !env.Success {
		return &apiError{Status: res.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *apiClient) authenticate(ctx context.Context, path string, body any) (session, error) {
	var s session
	if err := c.do(ctx, http.MethodPost, path, body, &s); err != nil {
		return session{}, err
	}
	c.token = s.Token
	return s, nil
}

func (c *apiClient) Register(ctx context.Context, username, email, password string) (session, error) {
	return c.authenticate(ctx, "/api/register", map[string]string{
		"username": username, "email": email, "password": password,
	})
}

func (c *apiClient) Login(ctx context.Context, username, password string) (session, error) {
	body := map[string]string{"password": password}
	if strings.Contains(username, "@") {
		body["email"] = username
	} else {
		body["username"] = username
	}
	return c.authenticate(ctx, "/api/login", body)
}

func (c *apiClient) CreateGroup(ctx context.Context, name string, members []string) (group, error) {
	var g group
	err := c.do(ctx, http.MethodPost, "/api/groups", map[string]any{"name": name, "members": members}, &g)
	return g, err
}

func (c *apiClient) SendDirect(ctx context.Context, receiverID, content string) error {
	return c.do(ctx, http.MethodPost, "/api/messages", map[string]string{"receiverId": receiverID, "content": content}, nil)
}

func (c *apiClient) SendGroup(ctx context.Context, groupID, content string) error {
	return c.do(ctx, http.MethodPost, "/api/groups/"+url.PathEscape(groupID)+"/messages", map[string]string{"content": content}, nil)
}

// History reads a direct conversation when kind is "user", a group otherwise.
func (c *apiClient) History(ctx context.Context, kind, id string, page int) (historyPage, error) {
	query := url.Values{}
	if kind == "user" {
		query.Set("withUserId", id)
	} else {
		query.Set("groupId", id)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	var h historyPage
	err := c.do(ctx, http.MethodGet, "/api/messages/history?"+query.Encode(), nil, &h)
	return h, err
}

// Dial opens the websocket with the current token.
func (c *apiClient) Dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), http.Header{"Authorization": {"Bearer " + c.token}})
	return ws, err
}
