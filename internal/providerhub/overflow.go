package provider

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// StatusError is the minimal shape a provider adapter's error needs to
// expose for DefaultIsContextOverflow to inspect its HTTP status and body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "provider error: status " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

var contextOverflowSubstrings = []string{
	"context length",
	"context_length",
	"maximum context",
	"context window",
	"too many tokens",
	"reduce the length",
}

// DefaultIsContextOverflow is the isContextOverflow(error, model) classifier
// the compaction orchestrator's trigger policy calls on every failed turn.
// It is a message-substring heuristic: a StatusError with status 400 or 413
// has its body checked for the phrases below, and any error (whatever its
// status) is then checked the same way through err.Error(). Grounded in openai_common.go's existing isTransientStatus classifier
// idiom — context-overflow errors share the same "inspect the HTTP response"
// shape but are a distinct (non-retryable) condition, so they get their own
// classifier rather than folding into isTransientStatus.
func DefaultIsContextOverflow(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusRequestEntityTooLarge || statusErr.StatusCode == http.StatusBadRequest {
			if containsAnyFold(statusErr.Body, contextOverflowSubstrings) {
				return true
			}
		}
	}

	return containsAnyFold(err.Error(), contextOverflowSubstrings)
}

func containsAnyFold(s string, substrs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
