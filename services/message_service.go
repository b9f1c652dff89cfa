package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 25
)

type IMessageService interface {
	SendMessage(ctx context.Context, senderID domain.UserID, req auth.MessageRequest) (domain.Message, error)
	SendGroupMessage(ctx context.Context, senderID domain.UserID, groupID domain.GroupID, req auth.GroupMessageRequest) (domain.Message, domain.Group, error)
	History(ctx context.Context, requesterID domain.UserID, req auth.HistoryRequest) (HistoryPage, error)
}

// HistoryPage reports the page actually served. When the requested page is past the
// end, CurrentPage is clamped to the last page and Clamped is set.
type HistoryPage struct {
	TotalMessages int              `json:"totalMessages"`
	TotalPages    int              `json:"totalPages"`
	CurrentPage   int              `json:"currentPage"`
	RequestPage   int              `json:"requestPage"`
	Clamped       bool             `json:"clamped"`
	PageSize      int              `json:"pageSize"`
	Messages      []domain.Message `json:"messages"`
}

// MessageService persists messages then hands them to the dispatcher.
// Delivery is best effort: a stored message is never rolled back because
// nobody was online to receive it.
type MessageService struct {
	log        *slog.Logger
	users      repositories.IUserRepository
	groups     repositories.IGroupRepository
	messages   repositories.IMessageRepository
	dispatcher contract.IDispatcher
	moderator  contract.IModerator
	now        func() time.Time
}

func NewMessageService(log *slog.Logger,
	users repositories.IUserRepository,
	groups repositories.IGroupRepository,
	messages repositories.IMessageRepository,
	dispatcher contract.IDispatcher) *MessageService {
	return &MessageService{
		log:        log.With("component", "message_service"),
		users:      users,
		groups:     groups,
		messages:   messages,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// WithModerator makes every new message go through m before it is persisted.
func (s *MessageService) WithModerator(m contract.IModerator) *MessageService {
	s.moderator = m
	return s
}

// SendMessage handles a message addressed either to a user or to a group.
func (s *MessageService) SendMessage(ctx context.Context, senderID domain.UserID, req auth.MessageRequest) (domain.Message, error) {
	if err := auth.ValidateMessage(req); err != nil {
		return domain.Message{}, err
	}

	if req.GroupID != "" {
		groupID := domain.GroupID(req.GroupID)
		if _, err := s.memberGroup(senderID, groupID); err != nil {
			return domain.Message{}, err
		}
		message := s.newMessage(senderID, "", groupID, req.Content)
		if err := s.messages.StoreMessage(message); err != nil {
			return domain.Message{}, fmt.Errorf("storing message: %w", err)
		}
		s.deliver(ctx, domain.GroupTarget{GroupID: groupID}, domain.EventMessage, message)
		return message, nil
	}

	receiverID := domain.UserID(req.ReceiverID)
	exists, err := s.users.Exists(receiverID)
	if err != nil {
		return domain.Message{}, err
	}
	if !exists {
		return domain.Message{}, errors.ErrUserNotFound
	}

	message := s.newMessage(senderID, receiverID, "", req.Content)
	if err := s.messages.StoreMessage(message); err != nil {
		return domain.Message{}, fmt.Errorf("storing message: %w", err)
	}
	s.deliver(ctx, domain.UserTarget{UserID: receiverID}, domain.EventMessage, message)
	return message, nil
}

// SendGroupMessage posts to a group the sender belongs to and broadcasts it as group_message.
func (s *MessageService) SendGroupMessage(ctx context.Context, senderID domain.UserID, groupID domain.GroupID,
	req auth.GroupMessageRequest) (domain.Message, domain.Group, error) {
	if err := auth.ValidateGroupMessage(req); err != nil {
		return domain.Message{}, domain.Group{}, err
	}
	group, err := s.memberGroup(senderID, groupID)
	if err != nil {
		return domain.Message{}, domain.Group{}, err
	}

	message := s.newMessage(senderID, "", groupID, req.Content)
	if err := s.messages.StoreMessage(message); err != nil {
		return domain.Message{}, domain.Group{}, fmt.Errorf("storing message: %w", err)
	}
	s.deliver(ctx, domain.GroupTarget{GroupID: groupID}, domain.EventGroupMessage, message)
	return message, group, nil
}

// History pages through a direct conversation or a group the requester belongs to, newest first.
func (s *MessageService) History(ctx context.Context, requesterID domain.UserID, req auth.HistoryRequest) (HistoryPage, error) {
	if req.Page == 0 {
		req.Page = DefaultPage
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}
	if err := auth.ValidateHistory(req); err != nil {
		return HistoryPage{}, err
	}
	if err := ctx.Err(); err != nil {
		return HistoryPage{}, err
	}

	var conversation string
	if req.GroupID != "" {
		if _, err := s.memberGroup(requesterID, domain.GroupID(req.GroupID)); err != nil {
			return HistoryPage{}, err
		}
		conversation = repositories.GroupConversation(domain.GroupID(req.GroupID))
	} else {
		conversation = repositories.DirectConversation(requesterID, domain.UserID(req.WithUserID))
	}

	messages, total, err := s.messages.GetHistory(conversation, (req.Page-1)*req.PageSize, req.PageSize)
	if err != nil {
		return HistoryPage{}, err
	}

	page := HistoryPage{
		TotalMessages: total,
		TotalPages:    totalPages(total, req.PageSize),
		CurrentPage:   req.Page,
		RequestPage:   req.Page,
		PageSize:      req.PageSize,
		Messages:      messages,
	}
	switch {
	case page.TotalPages == 0:
		page.CurrentPage = 1
		page.Clamped = req.Page != 1
	case req.Page > page.TotalPages:
		page.CurrentPage = page.TotalPages
		page.Clamped = true
		page.Messages, page.TotalMessages, err = s.messages.GetHistory(conversation, (page.CurrentPage-1)*req.PageSize, req.PageSize)
		if err != nil {
			return HistoryPage{}, err
		}
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// deliver detaches from the caller's cancellation: once stored, a message is always
// offered to live connections even if the request that produced it went away.
func (s *MessageService) deliver(ctx context.Context, target domain.DeliveryTarget, event string, message domain.Message) {
	s.dispatcher.Deliver(context.WithoutCancel(ctx), target, event, message)
}

func (s *MessageService) memberGroup(userID domain.UserID, groupID domain.GroupID) (domain.Group, error) {
	group, err := s.groups.GetGroup(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if !group.HasMember(userID) {
		return domain.Group{}, errors.ErrNotAMember
	}
	return group, nil
}

func (s *MessageService) newMessage(senderID, receiverID domain.UserID, groupID domain.GroupID, content string) domain.Message {
	if s.moderator != nil {
		var words []string
		if content, words = s.moderator.Censor(content); len(words) > 0 {
			s.log.Info("Message content censored", "sender_id", senderID, "words", len(words))
		}
	}
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		GroupID:    groupID,
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
