package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

// Default endpoints per provider type.
var defaultEndpoints = map[string]struct{ auth, token, userinfo string }{
	tenancy.ProviderGoogle: {
		auth:     "https://accounts.google.com/o/oauth2/v2/auth",
		token:    "https://oauth2.googleapis.com/token",
		userinfo: "https://openidconnect.googleapis.com/v1/userinfo",
	},
	tenancy.ProviderGitHub: {
		auth:     "https://github.com/login/oauth/authorize",
		token:    "https://github.com/login/oauth/access_token",
		userinfo: "https://api.github.com/user",
	},
}

const maxUserInfoBytes = 1 << 20

// Options configures the gateways built by Factory.
type Options struct {
	// CallbackBaseURL is the public URL that serves
	// /api/v1/auth/oauth/callback/{provider_id}.
	CallbackBaseURL string
	// DefaultAccessTokenTTL applies when the provider reports no expiry.
	DefaultAccessTokenTTL time.Duration
	HTTPClient            *http.Client
	Now                   func() time.Time
}

// Factory builds one Gateway per configured provider.
type Factory struct {
	opts Options
}

// NewFactory creates a Factory, applying defaults.
func NewFactory(opts Options) *Factory {
	if opts.DefaultAccessTokenTTL <= 0 {
		opts.DefaultAccessTokenTTL = time.Hour
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Factory{opts: opts}
}

// CallbackURL is the redirect_uri registered with the provider.
func (f *Factory) CallbackURL(providerID string) string {
	return strings.TrimRight(f.opts.CallbackBaseURL, "/") + "/api/v1/auth/oauth/callback/" + providerID
}

// Gateway creates the gateway for p.
func (f *Factory) Gateway(p tenancy.Provider) (Gateway, error) {
	authURL, tokenURL, userinfoURL := p.AuthURL, p.TokenURL, p.UserInfoURL
	if d, ok := defaultEndpoints[p.Type]; ok {
		authURL = firstNonEmpty(authURL, d.auth)
		tokenURL = firstNonEmpty(tokenURL, d.token)
		userinfoURL = firstNonEmpty(userinfoURL, d.userinfo)
	} else if p.Type != tenancy.ProviderOIDC {
		return nil, fmt.Errorf("provider %s: unsupported type %q", p.ID, p.Type)
	}
	if tokenURL == "" || userinfoURL == "" {
		return nil, fmt.Errorf("provider %s: token_url and userinfo_url are required", p.ID)
	}

	return &oauth2Gateway{
		kind: p.Type,
		cfg: &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			// AuthStyleInParams disables x/oauth2 auto-detection, which retries
			// the exchange with another style after a 4xx.
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: f.CallbackURL(p.ID),
			Scopes:      strings.Fields(p.DefaultScope),
		},
		userinfoURL: userinfoURL,
		opts:        f.opts,
	}, nil
}

type oauth2Gateway struct {
	kind        string
	cfg         *oauth2.Config
	userinfoURL string
	opts        Options
}

func (g *oauth2Gateway) GetCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if code := in.Params.Get("error"); code != "" {
		return nil, classifyOAuthError(code, in.Params.Get("error_description"))
	}
	if got := in.Params.Get("state"); got != in.State {
		return nil, &Error{Kind: KindInvalidRequest, Description: "state mismatch"}
	}
	code := in.Params.Get("code")
	if code == "" {
		return nil, &Error{Kind: KindInvalidRequest, Description: "missing code"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.opts.HTTPClient)
	tok, err := g.cfg.Exchange(ctx, code, oauth2.VerifierOption(in.CodeVerifier))
	if err != nil {
		return nil, mapExchangeError(err)
	}

	info, err := g.fetchUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = g.opts.Now().Add(g.opts.DefaultAccessTokenTTL)
	}

	return &CallbackResult{
		UserInfo: *info,
		TokenSet: TokenSet{
			AccessToken:          tok.AccessToken,
			RefreshToken:         tok.RefreshToken,
			AccessTokenExpiredAt: expiry,
		},
	}, nil
}

func mapExchangeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		pe := classifyOAuthError(re.ErrorCode, re.ErrorDescription)
		pe.Err = err
		return pe
	}
	return &Error{Kind: KindUpstream, Err: err}
}

func (g *oauth2Gateway) fetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	var raw map[string]any
	if err := g.getJSON(ctx, g.userinfoURL, accessToken, &raw); err != nil {
		return nil, err
	}

	var info UserInfo
	switch g.kind {
	case tenancy.ProviderGitHub:
		info = UserInfo{
			AccountID:       stringClaim(raw, "id"),
			DisplayName:     firstNonEmpty(stringClaim(raw, "name"), stringClaim(raw, "login")),
			ProfileImageURL: stringClaim(raw, "avatar_url"),
		}
		email, verified, err := g.githubPrimaryEmail(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		info.Email, info.EmailVerified = email, verified
	default:
		info = UserInfo{
			AccountID:       stringClaim(raw, "sub"),
			Email:           stringClaim(raw, "email"),
			EmailVerified:   boolClaim(raw, "email_verified"),
			DisplayName:     stringClaim(raw, "name"),
			ProfileImageURL: stringClaim(raw, "picture"),
		}
	}

	if info.AccountID == "" {
		return nil, upstreamf("userinfo without account id")
	}
	return &info, nil
}

// githubPrimaryEmail reads /user/emails; the email on /user carries no verification flag.
func (g *oauth2Gateway) githubPrimaryEmail(ctx context.Context, accessToken string) (string, bool, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := g.getJSON(ctx, strings.TrimRight(g.userinfoURL, "/")+"/emails", accessToken, &emails); err != nil {
		return "", false, err
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified, nil
		}
	}
	return "", false, nil
}

func (g *oauth2Gateway) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return upstreamf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return upstreamf("userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return upstreamf("userinfo read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return upstreamf("userinfo: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return upstreamf("userinfo decode: %w", err)
	}
	return nil
}

func stringClaim(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func boolClaim(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
