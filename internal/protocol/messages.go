// Package protocol defines the wire types exchanged with the comment service
// over NATS and HTTP. All messages are JSON.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxRequestBytes bounds a serialized request. Comments over the character
// limit still fit, so that they are rejected with a length reason rather than
// a protocol error.
const MaxRequestBytes = 64 << 10

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// Validation errors.
var (
	ErrEmptyText   = errors.New("protocol: comment text is empty")
	ErrTooLarge    = fmt.Errorf("protocol: request exceeds %d bytes", MaxRequestBytes)
	ErrInvalidUTF8 = errors.New("protocol: comment text contains invalid UTF-8")
	ErrCommentID   = errors.New("protocol: comment_id must be a single subject token (no spaces, '.', '*' or '>')")
	ErrMissingID   = errors.New("protocol: comment_id is required")
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// CheckRequest asks for a moderation verdict on one comment.
type CheckRequest struct {
	CommentID string `json:"comment_id"`
	AuthorID  string `json:"author_id,omitempty"`
	Text      string `json:"text"`
	Locale    string `json:"locale,omitempty"`
}

// Validate checks that a request is well formed. requireID is set by
// transports that route the result by comment ID.
func (r CheckRequest) Validate(requireID bool) error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if !utf8.ValidString(r.Text) {
		return ErrInvalidUTF8
	}
	if r.CommentID == "" {
		if requireID {
			return ErrMissingID
		}
		return nil
	}
	if strings.ContainsAny(r.CommentID, " \t\r\n.*>") {
		return ErrCommentID
	}
	return nil
}

// ParseCheckRequest decodes and validates a request.
func ParseCheckRequest(data []byte, requireID bool) (CheckRequest, error) {
	var req CheckRequest
	if len(data) > MaxRequestBytes {
		return req, ErrTooLarge
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("protocol: failed to parse check request: %w", err)
	}
	if err := req.Validate(requireID); err != nil {
		return req, err
	}
	return req, nil
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// CheckResult is the verdict published for a CheckRequest. IsAppropriate and
// Reason are the moderation contract; the remaining fields are bookkeeping.
type CheckResult struct {
	CommentID     string `json:"comment_id,omitempty"`
	AuthorID      string `json:"author_id,omitempty"`
	IsAppropriate bool   `json:"isAppropriate"`
	Reason        string `json:"reason"`
	Stage         string `json:"stage"`
	Degraded      bool   `json:"degraded,omitempty"`
	DecisionID    string `json:"decision_id"`
	Ts            int64  `json:"ts"`
}

// Stamp sets Ts to t in Unix milliseconds.
func (r *CheckResult) Stamp(t time.Time) {
	r.Ts = t.UnixMilli()
}

// ErrorResponse is returned for requests that could not be moderated at all.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
