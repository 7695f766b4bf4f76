package callback

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

const (
	innerCookiePrefix = "oauth-inner-"
	// innerCookieMarker is what /authorize stores once the browser confirmed the flow.
	innerCookieMarker = "true"
)

// CookieJar is the browser cookie surface the guard needs.
type CookieJar interface {
	Get(name string) (string, bool)
	Delete(name string)
}

// InnerCookieName returns the single-use cookie name for innerState.
func InnerCookieName(innerState string) string {
	return innerCookiePrefix + innerState
}

// Guard authenticates a callback with both correlation layers: the
// single-use inner cookie (replay, page refresh) and the durable outer
// request row (forgery). Neither layer is sufficient alone.
type Guard struct {
	outer    repository.OuterRequestRepository
	validate *validator.Validate
	now      func() time.Time
}

// NewGuard creates a Guard. now defaults to time.Now.
func NewGuard(outer repository.OuterRequestRepository, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{
		outer:    outer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      now,
	}
}

// Check consumes the inner cookie and loads the outer request. The cookie is
// deleted exactly once per call, whatever the outcome. Expiry is checked
// separately by CheckExpiry.
func (g *Guard) Check(ctx context.Context, jar CookieJar, innerState string) (*repository.OuterAuthRequest, error) {
	name := InnerCookieName(innerState)
	value, ok := jar.Get(name)
	jar.Delete(name)

	if innerState == "" || !ok || value != innerCookieMarker {
		return nil, clientInput(CodeInnerCookieMismatch,
			"Inner OAuth cookie not found. This is likely because you refreshed the page during the OAuth sign in process. Please try signing in again.")
	}

	rec, err := g.outer.GetByInnerState(ctx, innerState)
	if repository.IsNotFound(err) {
		return nil, clientInput(CodeOuterRequestNotFound,
			"Invalid OAuth cookie. Please try signing in again.")
	}
	if err != nil {
		return nil, internalf("load outer oauth request: %w", err)
	}

	var req repository.OuterAuthRequest
	if err := json.Unmarshal(rec.Info, &req); err != nil {
		return nil, internalf("outer oauth request payload is not valid JSON: %w", err)
	}
	if err := g.validate.StructCtx(ctx, &req); err != nil {
		return nil, internalf("outer oauth request payload failed validation: %w", err)
	}
	req.InnerState = rec.InnerState
	req.ExpiresAt = rec.ExpiresAt
	return &req, nil
}

// CheckExpiry fails with KindExpired once the outer request is past its TTL.
func (g *Guard) CheckExpiry(req *repository.OuterAuthRequest) error {
	if req.ExpiresAt.Before(g.now()) {
		return errExpired()
	}
	return nil
}
