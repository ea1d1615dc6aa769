package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// MeetingSessionStore persists per-conversation slot-filling state for the
// meeting-room booking flow. Slots accumulate across turns until booking.
type MeetingSessionStore struct {
	db DB
}

// NewMeetingSessionStore creates a meeting session repository.
func NewMeetingSessionStore(db DB) *MeetingSessionStore {
	return &MeetingSessionStore{db: db}
}

// Get returns the slot map for a conversation, or an empty map when the
// conversation has no session yet.
func (s *MeetingSessionStore) Get(ctx context.Context, conversationID string) (map[string]string, error) {
	const q = `SELECT slots FROM meeting_sessions WHERE conversation_id = $1`

	var raw []byte
	err := s.db.QueryRow(ctx, q, conversationID).Scan(&raw)
	if err != nil {
		if wrapNoRows(err) == ErrNotFound {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("load meeting session: %w", err)
	}

	slots := map[string]string{}
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("decode meeting slots: %w", err)
	}
	return slots, nil
}

// Save upserts the slot map for a conversation.
func (s *MeetingSessionStore) Save(ctx context.Context, conversationID string, slots map[string]string) error {
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode meeting slots: %w", err)
	}

	const q = `
		INSERT INTO meeting_sessions (conversation_id, slots, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (conversation_id)
		DO UPDATE SET slots = EXCLUDED.slots, updated_at = now()`

	if _, err := s.db.Exec(ctx, q, conversationID, raw); err != nil {
		return fmt.Errorf("save meeting session: %w", err)
	}
	return nil
}

// Delete clears a conversation's session, typically after a booking completes
// or is cancelled.
func (s *MeetingSessionStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM meeting_sessions WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("delete meeting session: %w", err)
	}
	return nil
}
