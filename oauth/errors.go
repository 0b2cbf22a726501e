package oauth

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable error value returned on the wire as the
// "error" member of an error response.
type ErrorCode string

const (
	ErrInvalidClient        ErrorCode = "invalid_client"
	ErrInvalidGrant         ErrorCode = "invalid_grant"
	ErrInvalidRequest       ErrorCode = "invalid_request"
	ErrInvalidResponse      ErrorCode = "invalid_response"
	ErrInvalidScope         ErrorCode = "invalid_scope"
	ErrInvalidRedirectURI   ErrorCode = "invalid_redirect_uri"
	ErrExpiredAuthCode      ErrorCode = "expired_authorization_code"
	ErrInvalidToken         ErrorCode = "invalid_token"
	ErrInvalidCredentials   ErrorCode = "invalid_credentials"
	ErrLoginRequired        ErrorCode = "login_required"
	ErrInteractionRequired  ErrorCode = "interaction_required"
	ErrAuthorizationPending ErrorCode = "authorization_pending"
	ErrSlowDown             ErrorCode = "slow_down"
)

// Error is the protocol-level failure type. Every expected failure path
// returns one of these; anything else escaping a service is a fault the host
// maps to a 500.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
	// State carries the caller's CSRF correlation value for
	// authorization-flow failures. Echoed even on error.
	State string `json:"state,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError builds a protocol error with a formatted description.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// WithState returns a copy carrying the authorization-request state value.
func (e *Error) WithState(state string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.State = state
	return &cp
}

// AsError extracts a protocol error from an error chain.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
