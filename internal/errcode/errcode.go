// Package errcode defines the stable business error codes surfaced by the API
// envelope. Codes are part of the external contract and must not be renumbered.
package errcode

import (
	"errors"
	"fmt"
)

// Error is a business error with a stable numeric code.
// It supports errors.Is against the package sentinels and fmt.Errorf("%w") wrapping.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so wrapped errors still compare
// equal to the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New returns a copy of the sentinel with a more specific message, preserving
// the code for errors.Is comparisons.
func New(sentinel *Error, format string, args ...any) *Error {
	return &Error{Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// FromError extracts the business error from err's chain.
// Returns nil when err carries no business code.
func FromError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Business error sentinels. The numbering is inherited from the service's
// original error catalogue and is relied on by API clients.
var (
	// ErrBotNotFound indicates the bot id resolves to no bot.
	ErrBotNotFound = &Error{Code: 10000, Message: "bot not found"}

	// ErrNamespaceNotFound indicates the referenced namespace no longer resolves.
	ErrNamespaceNotFound = &Error{Code: 10001, Message: "namespace not found"}

	// ErrPromptConfig indicates prompt template / placeholder configuration is invalid.
	ErrPromptConfig = &Error{Code: 10002, Message: "prompt configuration invalid"}

	// ErrBotUseType indicates the endpoint does not match the bot's configured use type.
	ErrBotUseType = &Error{Code: 10007, Message: "bot use type mismatch"}

	// ErrVectorSearch indicates a vector store search failed.
	ErrVectorSearch = &Error{Code: 10201, Message: "vector search failed"}

	// ErrVectorInsert indicates a vector store insert failed.
	ErrVectorInsert = &Error{Code: 10202, Message: "vector insert failed"}

	// ErrVectorDelete indicates a vector store delete failed.
	ErrVectorDelete = &Error{Code: 10204, Message: "vector delete failed"}

	// ErrEmbedding indicates embedding generation failed for all inputs.
	ErrEmbedding = &Error{Code: 10203, Message: "embedding failed"}

	// ErrIngestInput indicates ingestion input is missing or unusable.
	ErrIngestInput = &Error{Code: 10208, Message: "ingestion input invalid"}
)
