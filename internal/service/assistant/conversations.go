package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cookwithme/internal/models"
)

// CreateConversationWithTurn creates a conversation and its first turn in a
// single transaction. A conversation is never created empty: when the first
// turn cannot be written nothing is committed, so failed first requests leave
// no orphan row behind.
func (s *Service) CreateConversationWithTurn(ctx context.Context, userID int64, title, question, answer string) (*models.Conversation, *models.Turn, error) {
	if userID <= 0 {
		return nil, nil, errors.New("user_id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (user_id, title, created_at) VALUES (?, ?, ?)`,
		userID, title, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create conversation: %w", err)
	}
	convID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("conversation id: %w", err)
	}

	turn, err := insertTurn(ctx, tx, convID, userID, question, answer)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit conversation: %w", err)
	}
	conv := &models.Conversation{ID: convID, UserID: userID, Title: title, CreatedAt: now}
	return conv, turn, nil
}

// AppendTurn appends a question/answer pair to an existing conversation after
// verifying ownership inside the same transaction that assigns the
// timestamp. The store, not the caller, is the ordering authority: the
// ownership probe locks the conversation row where the driver supports it,
// so concurrent appends to one conversation serialize and cannot both read
// the same last timestamp.
func (s *Service) AppendTurn(ctx context.Context, conversationID, userID int64, question, answer string) (*models.Turn, error) {
	if conversationID <= 0 || userID <= 0 {
		return nil, ErrNotFound
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = ? AND user_id = ?`+s.lockClause,
		conversationID, userID,
	).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verify conversation: %w", err)
	}

	turn, err := insertTurn(ctx, tx, conversationID, userID, question, answer)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit turn: %w", err)
	}
	return turn, nil
}

// insertTurn writes one turn with a creation timestamp strictly after every
// prior turn in the conversation, even when the wall clock has not advanced
// between two appends.
func insertTurn(ctx context.Context, tx *sql.Tx, conversationID, userID int64, question, answer string) (*models.Turn, error) {
	ts := time.Now().UTC()
	var last time.Time
	err := tx.QueryRowContext(ctx,
		`SELECT created_at FROM turns WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		conversationID,
	).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first turn
	case err != nil:
		return nil, fmt.Errorf("last turn timestamp: %w", err)
	default:
		if !ts.After(last) {
			ts = last.Add(time.Microsecond)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, user_id, question, answer, created_at) VALUES (?, ?, ?, ?, ?)`,
		conversationID, userID, question, answer, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("turn id: %w", err)
	}
	return &models.Turn{
		ID:             id,
		ConversationID: conversationID,
		UserID:         userID,
		Question:       question,
		Answer:         answer,
		CreatedAt:      ts,
	}, nil
}

// GetConversation loads one conversation after verifying ownership. A foreign
// conversation id is indistinguishable from a missing one.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID int64) (*models.Conversation, error) {
	if conversationID <= 0 || userID <= 0 {
		return nil, ErrNotFound
	}
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// ListTurns returns a conversation's turns oldest-first after the ownership
// probe.
func (s *Service) ListTurns(ctx context.Context, conversationID, userID int64) ([]*models.Turn, error) {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, question, answer, created_at
		 FROM turns WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.Turn
	for rows.Next() {
		t := new(models.Turn)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListConversations returns every conversation the user owns, newest created
// first, each with its turns oldest-first. Conversations without turns are
// still returned, though none are created that way.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]*models.ConversationWithTurns, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var (
		list []*models.ConversationWithTurns
		byID = make(map[int64]*models.ConversationWithTurns)
	)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		entry := &models.ConversationWithTurns{Conversation: conv, Turns: make([]*models.Turn, 0)}
		list = append(list, entry)
		byID[conv.ID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	turnRows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, question, answer, created_at
		 FROM turns WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer turnRows.Close()

	for turnRows.Next() {
		t := new(models.Turn)
		if err := turnRows.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if entry, ok := byID[t.ConversationID]; ok {
			entry.Turns = append(entry.Turns, t)
		}
	}
	return list, turnRows.Err()
}
