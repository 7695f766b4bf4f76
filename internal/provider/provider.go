// Package provider exchanges the authorization code with the external
// provider (Google, GitHub, generic OIDC) and normalizes the returned profile.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// UserInfo is the normalized provider profile.
type UserInfo struct {
	AccountID       string
	Email           string
	EmailVerified   bool
	DisplayName     string
	ProfileImageURL string
}

// TokenSet holds the tokens issued by the provider.
type TokenSet struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiredAt time.Time
}

// CallbackInput is what the browser sent to the callback plus the internal
// correlation data.
type CallbackInput struct {
	CodeVerifier string
	State        string
	Params       url.Values
}

// CallbackResult is the outcome of the exchange.
type CallbackResult struct {
	UserInfo UserInfo
	TokenSet TokenSet
}

// Gateway exchanges the code for tokens and profile. It never retries:
// authorization codes are single use.
type Gateway interface {
	GetCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error)
}

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindAccessDenied
	KindInvalidGrant
	KindInvalidClient
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindAccessDenied:
		return "access_denied"
	case KindInvalidGrant:
		return "invalid_grant"
	case KindInvalidClient:
		return "invalid_client"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "upstream"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind        ErrorKind
	Code        string // raw OAuth error code from the provider, if any
	Description string
	Err         error
}

func (e *Error) Error() string {
	msg := "provider: " + e.Kind.String()
	if e.Code != "" && e.Code != e.Kind.String() {
		msg += " (" + e.Code + ")"
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err (KindUpstream when it is not an *Error).
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUpstream
}

// classifyOAuthError maps a standard OAuth2 error code.
func classifyOAuthError(code, description string) *Error {
	switch code {
	case "access_denied", "consent_required":
		return &Error{Kind: KindAccessDenied, Code: code, Description: description}
	case "invalid_grant":
		return &Error{Kind: KindInvalidGrant, Code: code, Description: description}
	case "invalid_client", "unauthorized_client":
		return &Error{Kind: KindInvalidClient, Code: code, Description: description}
	default:
		return &Error{Kind: KindUpstream, Code: code, Description: description}
	}
}

func upstreamf(format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Err: fmt.Errorf(format, args...)}
}
