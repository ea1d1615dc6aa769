package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/resourceburglar/localqa/internal/errcode"
	"github.com/resourceburglar/localqa/internal/log"
)

// envelope is the uniform response shape. Status 0 is success; any other
// value is a stable business error code.
type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON writes a JSON response with the given HTTP status code. Encoding
// happens into a buffer first so headers are only sent after the body is
// known good.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, body any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("failed to write response body", "error", err)
	}
}

// respondOK writes a successful envelope.
func respondOK(w http.ResponseWriter, logger log.Logger, data any) {
	writeJSON(w, logger, http.StatusOK, envelope{Status: 0, Message: "success", Data: data})
}

// respondError maps an error onto the envelope. Business errors keep HTTP 200
// and carry their stable code in the envelope status; anything else is an
// internal transport failure.
func respondError(w http.ResponseWriter, logger log.Logger, err error) {
	if be := errcode.FromError(err); be != nil {
		logger.Warn("request failed", "code", be.Code, "error", err)
		writeJSON(w, logger, http.StatusOK, envelope{Status: be.Code, Message: be.Message})
		return
	}
	logger.Error("request failed", "error", err)
	writeJSON(w, logger, http.StatusInternalServerError, envelope{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
	})
}

// respondBadRequest rejects a malformed request before it reaches the
// pipeline.
func respondBadRequest(w http.ResponseWriter, logger log.Logger, msg string) {
	writeJSON(w, logger, http.StatusBadRequest, envelope{Status: http.StatusBadRequest, Message: msg})
}
