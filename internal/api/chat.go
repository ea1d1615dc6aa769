package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/resourceburglar/localqa/internal/answer"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/store"
)

// Asker is the answering pipeline surface the API needs.
type Asker interface {
	Ask(ctx context.Context, req answer.Request) (*answer.Result, error)
	AskPublic(ctx context.Context, req answer.Request) (*answer.Result, error)
	AskOnce(ctx context.Context, question, namespace string) (string, error)
}

// HistoryAPI is the history repository surface the API needs.
type HistoryAPI interface {
	Recent(ctx context.Context, conversationID string, botID int64, limit int, sharedHistory bool) ([]store.Turn, error)
	SetFeedback(ctx context.Context, id int64, feedback int16) error
}

// chatHandler serves the question answering endpoints.
type chatHandler struct {
	asker   Asker
	history HistoryAPI
	logger  log.Logger
}

type askRequest struct {
	BotID          int64  `json:"bot_id"`
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
}

type askResponse struct {
	Answer         string `json:"answer"`
	HistoryID      int64  `json:"history_id"`
	Scene          string `json:"scene,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (h *chatHandler) parseAsk(w http.ResponseWriter, r *http.Request) (*askRequest, bool) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, h.logger, err.Error())
		return nil, false
	}
	if req.BotID == 0 {
		respondBadRequest(w, h.logger, "bot_id is required")
		return nil, false
	}
	if req.Question == "" {
		respondBadRequest(w, h.logger, "question is required")
		return nil, false
	}
	return &req, true
}

// ask answers a question against a private, namespace-bound bot.
func (h *chatHandler) ask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseAsk(w, r)
	if !ok {
		return
	}

	res, err := h.asker.Ask(r.Context(), answer.Request{
		BotID:          req.BotID,
		Question:       req.Question,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, askResponse{
		Answer:         res.Answer,
		HistoryID:      res.HistoryID,
		Scene:          res.Scene,
		ConversationID: req.ConversationID,
	})
}

// askPublic answers a question in open conversation, without retrieval.
func (h *chatHandler) askPublic(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseAsk(w, r)
	if !ok {
		return
	}

	res, err := h.asker.AskPublic(r.Context(), answer.Request{
		BotID:          req.BotID,
		Question:       req.Question,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, askResponse{
		Answer:         res.Answer,
		HistoryID:      res.HistoryID,
		Scene:          res.Scene,
		ConversationID: req.ConversationID,
	})
}

type oneShotRequest struct {
	Question  string `json:"question"`
	Namespace string `json:"namespace"`
}

type oneShotResponse struct {
	Answer string `json:"answer"`
}

// askOnce answers a single stateless question. An optional namespace grounds
// the answer in that namespace's documents; nothing is persisted.
func (h *chatHandler) askOnce(w http.ResponseWriter, r *http.Request) {
	var req oneShotRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, h.logger, err.Error())
		return
	}
	if req.Question == "" {
		respondBadRequest(w, h.logger, "question is required")
		return
	}

	ans, err := h.asker.AskOnce(r.Context(), req.Question, req.Namespace)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, oneShotResponse{Answer: ans})
}

type turnResponse struct {
	ID        int64  `json:"id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Feedback  int16  `json:"feedback"`
	CreatedAt string `json:"created_at"`
}

// getHistory lists recent turns of a conversation, most recent first.
func (h *chatHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		respondBadRequest(w, h.logger, "conversation_id is required")
		return
	}
	botID, err := strconv.ParseInt(r.URL.Query().Get("bot_id"), 10, 64)
	if err != nil || botID <= 0 {
		respondBadRequest(w, h.logger, "bot_id is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	turns, err := h.history.Recent(r.Context(), conversationID, botID, limit, false)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	out := make([]turnResponse, len(turns))
	for i, t := range turns {
		out[i] = turnResponse{
			ID:        t.ID,
			Question:  t.Question,
			Answer:    t.Answer,
			Feedback:  t.Feedback,
			CreatedAt: t.CreatedAt.Format("2006-01-02 15:04:05"),
		}
	}
	respondOK(w, h.logger, out)
}

type feedbackRequest struct {
	HistoryID int64 `json:"history_id"`
	Feedback  int16 `json:"feedback"`
}

// feedback records a like or dislike on an answered turn. Disliked turns are
// excluded from future conversation memory.
func (h *chatHandler) feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, h.logger, err.Error())
		return
	}
	if req.HistoryID <= 0 {
		respondBadRequest(w, h.logger, "history_id is required")
		return
	}
	switch req.Feedback {
	case store.FeedbackNone, store.FeedbackLike, store.FeedbackDislike:
	default:
		respondBadRequest(w, h.logger, "feedback must be 0, 1 or 2")
		return
	}

	if err := h.history.SetFeedback(r.Context(), req.HistoryID, req.Feedback); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, nil)
}
