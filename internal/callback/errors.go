package callback

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the error taxonomy of the callback.
type Kind int

const (
	KindClientInput Kind = iota + 1
	KindExpired
	KindProvider
	KindConflict
	KindNotConfigured
	KindRedirectPolicy
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindExpired:
		return "expired"
	case KindProvider:
		return "provider"
	case KindConflict:
		return "conflict"
	case KindNotConfigured:
		return "not_configured"
	case KindRedirectPolicy:
		return "redirect_policy"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error codes surfaced to clients.
const (
	CodeInnerCookieMismatch      = "OAUTH_INNER_COOKIE_MISMATCH"
	CodeOuterRequestNotFound     = "OUTER_OAUTH_REQUEST_NOT_FOUND"
	CodeOuterTimeout             = "OUTER_OAUTH_TIMEOUT"
	CodeProviderNotEnabled       = "OAUTH_PROVIDER_NOT_FOUND_OR_NOT_ENABLED"
	CodeAccessDenied             = "OAUTH_PROVIDER_ACCESS_DENIED"
	CodeInvalidGrant             = "OAUTH_PROVIDER_INVALID_GRANT"
	CodeProviderMisconfigured    = "OAUTH_PROVIDER_MISCONFIGURED"
	CodeInvalidCallback          = "OAUTH_CALLBACK_INVALID_REQUEST"
	CodeUpstreamFailure          = "OAUTH_PROVIDER_UPSTREAM_FAILURE"
	CodeUpstreamTimeout          = "UPSTREAM_TIMEOUT"
	CodeAlreadyConnected         = "OAUTH_CONNECTION_ALREADY_CONNECTED_TO_ANOTHER_USER"
	CodeContactChannelTaken      = "CONTACT_CHANNEL_ALREADY_USED_FOR_AUTH_BY_SOMEONE_ELSE"
	CodeSignUpNotEnabled         = "SIGN_UP_NOT_ENABLED"
	CodeRedirectNotWhitelisted   = "REDIRECT_URL_NOT_WHITELISTED"
	CodeInvalidScope             = "INVALID_SCOPE"
	CodeInvalidClient            = "INVALID_CLIENT"
	CodeUnsupportedResponseType  = "UNSUPPORTED_RESPONSE_TYPE"
	CodeInvalidAuthorizationCode = "INVALID_AUTHORIZATION_CODE"
	CodeInternal                 = "INTERNAL_ERROR"
)

// Error is a classified callback failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Status  int
	Err     error
	// NoRedirect errors always reach the caller directly, even when the
	// outer request has an error redirect URL.
	NoRedirect bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail returns a copy with k=v added to Details.
func (e *Error) WithDetail(k string, v any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for key, val := range e.Details {
		cp.Details[key] = val
	}
	cp.Details[k] = v
	return &cp
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// AsError extracts the *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsKnown reports whether err is a user-facing callback error. Internal
// errors and unclassified errors are not known.
func IsKnown(err error) bool {
	ce, ok := AsError(err)
	return ok && ce.Kind != KindInternal
}

func newError(kind Kind, status int, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Status: status}
}

func clientInput(code, msg string) *Error {
	return newError(KindClientInput, http.StatusBadRequest, code, msg)
}

func providerError(status int, code, msg string) *Error {
	return newError(KindProvider, status, code, msg)
}

func conflict(code, msg string) *Error {
	return newError(KindConflict, http.StatusConflict, code, msg)
}

// internalf builds an invariant violation. Never shown to users.
func internalf(format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: err.Error(),
		Status:  http.StatusInternalServerError,
		Err:     errors.Unwrap(err),
	}
}

func errExpired() *Error {
	return newError(KindExpired, http.StatusBadRequest, CodeOuterTimeout,
		"The OAuth flow took too long. Please try signing in again.")
}

func errNotConfigured(providerID string) *Error {
	return newError(KindNotConfigured, http.StatusBadRequest, CodeProviderNotEnabled,
		"This OAuth provider is not configured or not enabled.").
		WithDetail("provider_id", providerID)
}

func errAlreadyConnected() *Error {
	return conflict(CodeAlreadyConnected, "This OAuth account is already connected to another user.")
}

func errContactChannelTaken(email string, wouldWorkIfVerified bool) *Error {
	e := conflict(CodeContactChannelTaken, "This email is already used for sign-in by another user.").
		WithDetail("type", "email").
		WithDetail("contact_channel_value", email)
	if wouldWorkIfVerified {
		e = e.WithDetail("would_work_if_email_was_verified", true)
	}
	return e
}

func errInvalidClient() *Error {
	e := clientInput(CodeInvalidClient, "The publishable client key is invalid for this project.")
	e.NoRedirect = true
	return e
}

func errInvalidScope() *Error {
	e := clientInput(CodeInvalidScope, "Invalid scope requested.")
	e.NoRedirect = true
	return e
}

func errUpstreamTimeout() *Error {
	return providerError(http.StatusBadGateway, CodeUpstreamTimeout,
		"An upstream service timed out. Please try again.")
}

func errRedirectNotWhitelisted(uri string) *Error {
	return newError(KindRedirectPolicy, http.StatusBadRequest, CodeRedirectNotWhitelisted,
		"The redirect URL is not whitelisted for this project.").
		WithDetail("url", uri)
}
