package server

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"net/http"
	"strconv"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		fail(s.log, w, r, err)
		return
	}
	session, err := s.auth.Register(req)
	if err != nil {
		fail(s.log, w, r, err)
		return
	}
	s.log.Info("User registered", "user_id", session.UserID)
	respond(w, http.StatusCreated, "User registered successfully", session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(w, r, &req); err != nil {
		fail(s.log, w, r, err)
		return
	}
	session, err := s.auth.Login(req)
	if err != nil {
		fail(s.log, w, r, err)
		return
	}
	respond(w, http.StatusOK, "User logged in successfully", session)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	var req auth.GroupRequest
	if err := decode(w, r, &req); err != nil {
		fail(s.log, w, r, err)
		return
	}
	group, err := s.groups.CreateGroup(r.Context(), identity.UserID, req)
	if err != nil {
		fail(s.log, w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Group created successfully", group)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	var req auth.MessageRequest
	if err := decode(w, r, &req); err != nil {
		fail(s.log, w, r, err)
		return
	}
	message, err := s.messages.SendMessage(r.Context(), identity.UserID, req)
	if err != nil {
		fail(s.log, w, r, err)
		return
	}
	respond(w, http.StatusOK, "message sent successfully", map[string]any{"message": message})
}

func (s *Server) handleSendGroupMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	groupID := domain.GroupID(r.PathValue("groupId"))
	var req auth.GroupMessageRequest
	if err := decode(w, r, &req); err != nil {
		fail(s.log, w, r, err)
		return
	}
	message, group, err := s.messages.SendGroupMessage(r.Context(), identity.UserID, groupID, req)
	if err != nil {
		fail(s.log, w, r, err)
		return
	}
	respond(w, http.StatusCreated, "message sent successfully", map[string]any{
		"message": message,
		"group":   map[string]any{"id": group.ID, "name": group.Name},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	query := r.URL.Query()

	page, err := queryInt(query.Get("page"), "page")
	if err != nil {
		fail(s.log, w, r, err)
		return
	}
	pageSize, err := queryInt(query.Get("pageSize"), "pageSize")
	if err != nil {
		fail(s.log, w, r, err)
		return
	}

	history, err := s.messages.History(r.Context(), identity.UserID, auth.HistoryRequest{
		WithUserID: query.Get("withUserId"),
		GroupID:    query.Get("groupId"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		fail(s.log, w, r, err)
		return
	}
	respond(w, http.StatusOK, "message history retrieved successfully", history)
}

// queryInt returns 0 for an absent parameter so the service applies its default.
func queryInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &auth.ValidationError{Fields: []auth.FieldError{{Field: field, Message: "must be an integer"}}}
	}
	if n == 0 {
		return 0, &auth.ValidationError{Fields: []auth.FieldError{{Field: field, Message: "must be at least 1"}}}
	}
	return n, nil
}
