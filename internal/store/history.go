package store

import (
	"context"
	"fmt"
	"time"
)

// Feedback values for a conversation turn.
const (
	FeedbackNone    int16 = 0
	FeedbackLike    int16 = 1
	FeedbackDislike int16 = 2
)

// Turn is one question/answer exchange in a conversation.
type Turn struct {
	ID             int64
	ConversationID string
	BotID          int64
	Question       string
	Answer         string
	Feedback       int16
	CreatedAt      time.Time
}

// HistoryStore persists conversation turns.
type HistoryStore struct {
	db DB
}

// NewHistoryStore creates a history repository.
func NewHistoryStore(db DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append records a finished turn and returns its id.
func (s *HistoryStore) Append(ctx context.Context, t *Turn) (int64, error) {
	const q = `
		INSERT INTO chat_history (conversation_id, bot_id, question, answer)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err := s.db.QueryRow(ctx, q, t.ConversationID, t.BotID, t.Question, t.Answer).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	return id, nil
}

// Recent returns the most recent replayable turns of a conversation, newest
// first. Disliked and soft-deleted turns are excluded. When sharedHistory is
// set the bot filter is dropped so all bots of the conversation contribute.
func (s *HistoryStore) Recent(ctx context.Context, conversationID string, botID int64, limit int, sharedHistory bool) ([]Turn, error) {
	q := `
		SELECT id, conversation_id, bot_id, question, answer, feedback, created_at
		FROM chat_history
		WHERE conversation_id = $1
		  AND feedback != $2
		  AND deleted_at IS NULL`
	args := []any{conversationID, FeedbackDislike}

	if !sharedHistory {
		q += ` AND bot_id = $3`
		args = append(args, botID)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.BotID, &t.Question, &t.Answer, &t.Feedback, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// SetFeedback records like/dislike feedback on a turn.
func (s *HistoryStore) SetFeedback(ctx context.Context, id int64, feedback int16) error {
	tag, err := s.db.Exec(ctx, `UPDATE chat_history SET feedback = $2 WHERE id = $1`, id, feedback)
	if err != nil {
		return fmt.Errorf("set feedback on turn %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks a turn as deleted so it never replays as memory.
func (s *HistoryStore) SoftDelete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE chat_history SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete turn %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
