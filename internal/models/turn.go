package models

import "time"

// Turn is one question/answer exchange, the atomic unit of history.
// Turns are append-only and never edited or reordered; UserID is carried
// redundantly so ownership checks never require a join through the
// conversation row.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	CreatedAt      time.Time `json:"created_at"`
}
