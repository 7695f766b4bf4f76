// Package oauth serves the OAuth callback endpoint.
package oauth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/oauthcallback/internal/callback"
	httperrors "github.com/dropDatabas3/oauthcallback/internal/http/errors"
	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
)

const maxFormBytes = 64 << 10

// Engine resolves a callback.
type Engine interface {
	HandleCallback(ctx context.Context, in callback.Request) (*callback.Response, error)
}

// CookieOptions controls how the inner cookie is cleared.
type CookieOptions struct {
	Path   string
	Domain string
	Secure bool
}

// CallbackController handles GET|POST /api/v1/auth/oauth/callback/{provider_id}.
type CallbackController struct {
	engine  Engine
	cookies CookieOptions
}

// NewCallbackController creates a new CallbackController.
func NewCallbackController(engine Engine, cookies CookieOptions) *CallbackController {
	if cookies.Path == "" {
		cookies.Path = "/"
	}
	return &CallbackController{engine: engine, cookies: cookies}
}

// Callback receives the provider response (query on GET, form_post on POST).
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"))

	providerID := chi.URLParam(r, "provider_id")
	if providerID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("param", "provider_id"))
		return
	}

	params, err := mergedParams(w, r)
	if err != nil {
		log.Warn("invalid callback body", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithCause(err))
		return
	}

	jar := &requestJar{r: r, w: w, opts: c.cookies}
	resp, err := c.engine.HandleCallback(ctx, callback.Request{
		ProviderID: providerID,
		InnerState: params.Get("state"),
		Params:     params,
		Cookies:    jar,
	})
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	status := http.StatusTemporaryRedirect
	if r.Method == http.MethodPost {
		status = http.StatusSeeOther
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, resp.RedirectURL, status)
}

// mergedParams merges query and body. Query values come first, so state is
// taken from the query and falls back to the body.
func mergedParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	params := url.Values{}
	for k, vs := range r.URL.Query() {
		params[k] = append(params[k], vs...)
	}
	if r.Method != http.MethodPost {
		return params, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for k, vs := range r.PostForm {
		params[k] = append(params[k], vs...)
	}
	return params, nil
}

// requestJar adapts request cookies to callback.CookieJar.
type requestJar struct {
	r    *http.Request
	w    http.ResponseWriter
	opts CookieOptions
}

func (j *requestJar) Get(name string) (string, bool) {
	ck, err := j.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return ck.Value, true
}

func (j *requestJar) Delete(name string) {
	http.SetCookie(j.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     j.opts.Path,
		Domain:   j.opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
