// Package httpx holds the JSON error body shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/acrylicworks/api/internal/platform/requestctx"
)

const (
	maxCodeLen    = 64
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is a failure ready to be written to the client.
type Error struct {
	Code    string
	Message string
	Status  int
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewError builds an Error. Statuses outside 4xx and 5xx become 500.
func NewError(code, message string, status int) Error {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    oneLine(code, maxCodeLen),
		Message: oneLine(message, maxMessageLen),
		Status:  status,
	}
}

// WriteError writes err with the request and trace ids found on ctx so support can find the log
// line a customer is quoting.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	body := errorBody{
		Error:     err.Code,
		Message:   err.Message,
		Status:    err.Status,
		RequestID: oneLine(middleware.GetReqID(ctx), maxIDLen),
		TraceID:   oneLine(requestctx.TraceID(ctx), maxIDLen),
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(body)
}

// oneLine strips control characters so messages built from user input cannot split log lines, then
// caps the length.
func oneLine(value string, limit int) string {
	value = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value))
	if len(value) > limit {
		value = strings.ToValidUTF8(value[:limit], "")
	}
	return value
}
