package lmsapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized means the API rejected the credential. Callers clear the
	// session and go back to the login view.
	ErrUnauthorized = errors.New("lmsapi: unauthorized")

	// ErrTransport wraps network failures where no HTTP response was received.
	ErrTransport = errors.New("lmsapi: transport failure")
)

// APIError is a non-2xx answer from the LMS API.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("lmsapi %s: %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("lmsapi %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Is makes a 401 APIError match ErrUnauthorized while keeping its message.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// IsServer reports a 5xx answer.
func (e *APIError) IsServer() bool { return e.Status >= 500 }

// IsValidation reports a 4xx answer other than 401.
func (e *APIError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusUnauthorized
}

// Message returns the server-provided message carried by err, or fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func newAPIError(op string, status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	}
	if msg == "" && status < 500 {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 || strings.HasPrefix(msg, "<") {
			msg = ""
		}
	}
	return &APIError{Op: op, Status: status, Message: msg}
}
