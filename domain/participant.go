// Package domain contains core concepts of the chat system.
// This file defines users and the identity extracted from a verified token.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

type User struct {
	ID           UserID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is what a verified bearer token tells us about its holder.
type Identity struct {
	UserID    UserID
	Username  string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
