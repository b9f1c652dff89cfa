// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once persisted.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is either direct (ReceiverID set) or addressed to a group (GroupID set), never both.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   UserID    `json:"senderId"`
	ReceiverID UserID    `json:"receiverId,omitempty"`
	GroupID    GroupID   `json:"groupId,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (m Message) IsDirect() bool {
	return m.ReceiverID != ""
}
