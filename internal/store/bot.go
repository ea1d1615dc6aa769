package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bot use types. Private bots serve authenticated product surfaces; public
// bots serve the anonymous endpoint with reduced capabilities.
const (
	UseTypePrivate int16 = 1
	UseTypePublic  int16 = 2
)

// Synthesis chain types.
const (
	ChainStuff  = "stuff"
	ChainRefine = "refine"
)

// Bot is the configuration of one question-answering bot.
type Bot struct {
	ID             int64
	Name           string
	UseType        int16
	Namespace      string
	PromptTemplate string
	// DeclaredVars lists the placeholder names the template may use,
	// comma separated.
	DeclaredVars string
	// PrefixPrompt, when set, overrides the refine revision template.
	// PrefixVars declares its placeholders the way DeclaredVars does.
	PrefixPrompt string
	PrefixVars   string
	// SuffixPrompt is appended to the prompt when framing public chat.
	SuffixPrompt   string
	ChainType      string
	TopK           int
	ScoreThreshold float64
	MaxTurns       int
	// Scene, when set, appends a confirmation prompt to answers. The
	// "echart" scene is exempt because its answers are rendered as charts.
	Scene string
	// SlaveBotMark routes questions containing a keyword to a slave bot.
	// Format: "keyword:botID,keyword:botID".
	SlaveBotMark string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SlaveMarks parses SlaveBotMark into keyword to bot-id routes, preserving
// declaration order. Malformed entries are skipped.
func (b *Bot) SlaveMarks() []SlaveMark {
	if b.SlaveBotMark == "" {
		return nil
	}
	var marks []SlaveMark
	for _, entry := range strings.Split(b.SlaveBotMark, ",") {
		key, idStr, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || key == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			continue
		}
		marks = append(marks, SlaveMark{Keyword: key, BotID: id})
	}
	return marks
}

// SlaveMark is one keyword-to-bot route parsed from Bot.SlaveBotMark.
type SlaveMark struct {
	Keyword string
	BotID   int64
}

// BotStore persists bot configuration.
type BotStore struct {
	db DB
}

// NewBotStore creates a bot repository.
func NewBotStore(db DB) *BotStore {
	return &BotStore{db: db}
}

const botColumns = `id, name, use_type, namespace, prompt_template, declared_vars,
	prefix_prompt, prefix_vars, suffix_prompt,
	chain_type, top_k, score_threshold, max_turns, scene, slave_bot_mark,
	created_at, updated_at`

func scanBot(row interface{ Scan(...any) error }) (*Bot, error) {
	var b Bot
	err := row.Scan(
		&b.ID, &b.Name, &b.UseType, &b.Namespace, &b.PromptTemplate, &b.DeclaredVars,
		&b.PrefixPrompt, &b.PrefixVars, &b.SuffixPrompt,
		&b.ChainType, &b.TopK, &b.ScoreThreshold, &b.MaxTurns, &b.Scene, &b.SlaveBotMark,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Get returns a bot by id. Returns ErrNotFound when absent.
func (s *BotStore) Get(ctx context.Context, id int64) (*Bot, error) {
	q := `SELECT ` + botColumns + ` FROM bots WHERE id = $1`
	b, err := scanBot(s.db.QueryRow(ctx, q, id))
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return b, nil
}

// Create inserts a bot configuration.
func (s *BotStore) Create(ctx context.Context, b *Bot) (*Bot, error) {
	const q = `
		INSERT INTO bots (name, use_type, namespace, prompt_template, declared_vars,
		                  prefix_prompt, prefix_vars, suffix_prompt,
		                  chain_type, top_k, score_threshold, max_turns, scene, slave_bot_mark)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	out := *b
	err := s.db.QueryRow(ctx, q,
		b.Name, b.UseType, b.Namespace, b.PromptTemplate, b.DeclaredVars,
		b.PrefixPrompt, b.PrefixVars, b.SuffixPrompt,
		b.ChainType, b.TopK, b.ScoreThreshold, b.MaxTurns, b.Scene, b.SlaveBotMark).
		Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create bot %q: %w", b.Name, err)
	}
	return &out, nil
}

// ListByUseType returns all bots with the given use type.
func (s *BotStore) ListByUseType(ctx context.Context, useType int16) ([]Bot, error) {
	q := `SELECT ` + botColumns + ` FROM bots WHERE use_type = $1 ORDER BY id`

	rows, err := s.db.Query(ctx, q, useType)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var out []Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bots: %w", err)
	}
	return out, nil
}
