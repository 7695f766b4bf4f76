package callback

import (
	"encoding/json"
	"net/url"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/redirect"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

// ErrorRedirectURL returns where a failed callback should send the browser.
// It applies only to known errors whose outer request carries an error
// redirect URL that the tenancy trusts or that is a native app URL.
// Internal errors always propagate.
func ErrorRedirectURL(t *tenancy.Tenancy, req *repository.OuterAuthRequest, err error) (string, bool) {
	if t == nil || req == nil || req.ErrorRedirectURL == "" {
		return "", false
	}
	ce, ok := AsError(err)
	if !ok || ce.Kind == KindInternal || ce.NoRedirect {
		return "", false
	}

	policy := redirect.ForTenancy(t)
	if !policy.IsAllowlisted(req.ErrorRedirectURL) && !policy.IsAcceptedNativeAppURL(req.ErrorRedirectURL) {
		return "", false
	}

	u, perr := url.Parse(req.ErrorRedirectURL)
	if perr != nil {
		return "", false
	}

	details := []byte("{}")
	if len(ce.Details) > 0 {
		if b, merr := json.Marshal(ce.Details); merr == nil {
			details = b
		}
	}

	q := u.Query()
	q.Set("errorCode", ce.Code)
	q.Set("message", ce.Message)
	q.Set("details", string(details))
	u.RawQuery = q.Encode()
	return u.String(), true
}
