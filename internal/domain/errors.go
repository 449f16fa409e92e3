package domain

import (
	"errors"
	"net/http"
)

// Error is a client-facing failure with a stable machine-readable code.
// Message is safe to return to the caller; internal detail goes to the log.
type Error struct {
	Code    string
	Status  int
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches by code so wrapped copies created with WithDetails still compare
// equal to the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of e carrying details for the response body.
func (e *Error) WithDetails(details interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage returns a copy of e with a different client message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func newError(code string, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

var (
	ErrNotFound                = newError("NOT_FOUND", http.StatusNotFound, "Resource not found")
	ErrForbidden               = newError("FORBIDDEN", http.StatusForbidden, "Invalid or unknown token")
	ErrGone                    = newError("GONE", http.StatusGone, "This invitation has expired")
	ErrConflict                = newError("CONFLICT", http.StatusConflict, "This assessment has already been completed")
	ErrBadRequest              = newError("BAD_REQUEST", http.StatusBadRequest, "The request is not valid in the current state")
	ErrIncomplete              = newError("INCOMPLETE", http.StatusUnprocessableEntity, "Not all required questions have been answered")
	ErrDuplicateQuestion       = newError("DUPLICATE_QUESTION", http.StatusConflict, "This question has already been answered in another slot")
	ErrInvalidOrExpiredAttempt = newError("INVALID_OR_EXPIRED_ATTEMPT", http.StatusConflict, "This test session is no longer valid, please restart the test")
	ErrAudioTooShort           = newError("AUDIO_TOO_SHORT", http.StatusUnprocessableEntity, "The recording is too short")
	ErrAudioTooLong            = newError("AUDIO_TOO_LONG", http.StatusUnprocessableEntity, "The recording is too long")
	ErrInvalidAudioType        = newError("INVALID_AUDIO_TYPE", http.StatusUnsupportedMediaType, "Unsupported audio format")
	ErrAlreadyTranscribed      = newError("ALREADY_TRANSCRIBED", http.StatusConflict, "This answer has already been transcribed")
	ErrNeedsReview             = newError("NEEDS_REVIEW", http.StatusConflict, "The classification is ambiguous and needs a decision")
	ErrIncompleteIdentity      = newError("INCOMPLETE_IDENTITY", http.StatusUnprocessableEntity, "Required identity fields are missing")
	ErrInvalidRequest          = newError("INVALID_REQUEST", http.StatusBadRequest, "Invalid request")
	ErrScoringFailed           = newError("SCORING_FAILED", http.StatusServiceUnavailable, "Scoring is temporarily unavailable, please retry")
)

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
