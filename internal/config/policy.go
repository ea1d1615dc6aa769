package config

import (
	"encoding/json"
	"fmt"
)

// PolicyConfig controls answer post-processing behaviour that applies to every
// bot unless the bot's own configuration overrides it.
type PolicyConfig struct {
	// PreparedAnswer enables the canned-answer short circuit: when a stored
	// question matches at distance 0.0 and carries a prepared answer, the
	// prepared answer is returned without calling the model.
	PreparedAnswer bool `mapstructure:"prepared_answer" json:"prepared_answer"`

	// PublicFallback escalates a private question to the unconstrained
	// public chat when retrieval finds no confident match.
	PublicFallback bool `mapstructure:"public_fallback" json:"public_fallback"`

	// SharedHistory makes all bots of a conversation share one history
	// stream instead of keeping per-bot histories.
	SharedHistory bool `mapstructure:"shared_history" json:"shared_history"`

	// HistoryExclude lists answer substrings that disqualify a turn from
	// being replayed as conversation memory. Matching turns are soft-deleted.
	HistoryExclude []string `mapstructure:"history_exclude" json:"history_exclude"`

	// ReplaceRules rewrites phrases in final answers, applied after marker
	// purging. Keys are replaced by their values.
	ReplaceRules map[string]string `mapstructure:"replace_rules" json:"replace_rules"`
}

// MeetingConfig holds the meeting-room booking integration settings.
// The upstream booking API authenticates with a per-request signed token
// derived from AppID and AppSecret.
type MeetingConfig struct {
	BaseURL    string `mapstructure:"base_url" json:"base_url"`
	AppID      string `mapstructure:"app_id" json:"app_id"`
	AppSecret  string `mapstructure:"app_secret" json:"app_secret"` // SENSITIVE: masked in MarshalJSON
	RoomSystem string `mapstructure:"room_system" json:"room_system"`
}

// Enabled reports whether the meeting integration is configured.
func (m MeetingConfig) Enabled() bool {
	return m.BaseURL != "" && m.AppID != ""
}

// MarshalJSON masks the app secret.
func (m MeetingConfig) MarshalJSON() ([]byte, error) {
	type alias MeetingConfig
	a := alias(m)
	a.AppSecret = maskSecret(a.AppSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal meeting config: %w", err)
	}
	return data, nil
}
