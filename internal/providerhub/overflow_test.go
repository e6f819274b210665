package provider

import (
	"errors"
	"net/http"
	"testing"
)

func TestDefaultIsContextOverflowByStatusAndBody(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusRequestEntityTooLarge, Body: "maximum context length exceeded"}
	if !DefaultIsContextOverflow(err) {
		t.Error("expected a 413 with a context-length body to classify as overflow")
	}
}

func TestDefaultIsContextOverflowByMessageSubstring(t *testing.T) {
	err := errors.New("request failed: this model's maximum context length is 128000 tokens")
	if !DefaultIsContextOverflow(err) {
		t.Error("expected a plain error whose message names context length to classify as overflow")
	}
}

func TestDefaultIsContextOverflowFalseForUnrelatedError(t *testing.T) {
	err := errors.New("connection reset by peer")
	if DefaultIsContextOverflow(err) {
		t.Error("expected an unrelated network error not to classify as overflow")
	}
}

func TestDefaultIsContextOverflowFalseForNil(t *testing.T) {
	if DefaultIsContextOverflow(nil) {
		t.Error("expected nil error not to classify as overflow")
	}
}

func TestDefaultIsContextOverflowStatusWithoutMatchingBodyIsFalse(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusRequestEntityTooLarge, Body: "payload too large for unrelated reasons"}
	if DefaultIsContextOverflow(err) {
		t.Error("expected a 413 whose body doesn't mention context length not to classify as overflow")
	}
}
