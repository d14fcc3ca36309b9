package models

import "time"

// Conversation is a named thread of turns owned by exactly one user.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationWithTurns pairs a conversation with its ordered history,
// oldest turn first.
type ConversationWithTurns struct {
	Conversation
	Turns []*Turn `json:"messages"`
}
