package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAPIClient_Login_Picks_Identifier(t *testing.T) {
	req := require.New(t)
	var bodies []map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"token":"t-1","userId":"u-1"}}`))
	}))
	defer server.Close()

	client := newAPIClient(server.URL, time.Second)

	// When logging in by email then by username
	s, err := client.Login(context.Background(), "alice@example.com", "pw")
	req.NoError(err)
	_, err = client.Login(context.Background(), "alice", "pw")
	req.NoError(err)

	// Then the right field is sent and the token is kept
	req.Equal("u-1", s.UserID)
	req.Equal("t-1", client.token)
	req.Equal("alice@example.com", bodies[0]["email"])
	req.Equal("alice", bodies[1]["username"])
}

func TestAPIClient_Error_Envelope(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("Bearer t-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"message":"you are not a member of this group","code":"NOT_A_MEMBER"}`))
	}))
	defer server.Close()

	client := newAPIClient(server.URL, time.Second)
	client.token = "t-1"

	err := client.SendGroup(context.Background(), "g-1", "hello")

	var apiErr *apiError
	req.ErrorAs(err, &apiErr)
	req.Equal(http.StatusForbidden, apiErr.Status)
	req.Equal("NOT_A_MEMBER", apiErr.Code)
}

func TestRenderHistory(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	renderHistory(&out, "u-1", historyPage{
		TotalMessages: 30,
		TotalPages:    2,
		CurrentPage:   2,
		Clamped:       true,
		Messages: []message{
			{SenderID: "u-1", Content: "mine", CreatedAt: time.Now()},
			{SenderID: "0123456789", Content: "theirs", CreatedAt: time.Now()},
		},
	})

	req.Contains(out.String(), "me")
	req.Contains(out.String(), "01234567")
	req.Contains(out.String(), "page 2/2, 30 message(s) (requested page was past the end)")
}
