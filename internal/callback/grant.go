package callback

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthcallback/internal/cache"
	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/metrics"
	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
	"github.com/dropDatabas3/oauthcallback/internal/redirect"
	"github.com/dropDatabas3/oauthcallback/internal/security/tokenbox"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"

	codeKeyPrefix = "oauth:code:"
	codeBytes     = 32
)

// GrantConfig configures the grant issued to the outer client.
type GrantConfig struct {
	CodeTTL    time.Duration // default 60s
	TokenTTL   time.Duration // default 1h
	SigningKey []byte        // HS256 key for response_type=token
}

// CodeGrant is what an authorization code redeems to.
type CodeGrant struct {
	UserID                   string `json:"userId"`
	TenancyID                string `json:"tenancyId"`
	NewUser                  bool   `json:"newUser"`
	RedirectURI              string `json:"redirectUri"`
	Scope                    string `json:"scope"`
	CodeChallenge            string `json:"codeChallenge,omitempty"`
	CodeChallengeMethod      string `json:"codeChallengeMethod,omitempty"`
	AfterCallbackRedirectURL string `json:"afterCallbackRedirectUrl,omitempty"`
}

// GrantAuthorizer validates the outer client parameters and issues the grant
// redirect.
type GrantAuthorizer struct {
	cache   cache.Client
	metrics *metrics.Metrics
	cfg     GrantConfig
	now     func() time.Time
}

// NewGrantAuthorizer creates a GrantAuthorizer.
func NewGrantAuthorizer(c cache.Client, m *metrics.Metrics, cfg GrantConfig, now func() time.Time) *GrantAuthorizer {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 60 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &GrantAuthorizer{cache: c, metrics: m, cfg: cfg, now: now}
}

// Precheck validates the outer client before any account data is touched:
// the redirect_uri must be allowlisted and the publishable key must match.
func (g *GrantAuthorizer) Precheck(t *tenancy.Tenancy, req *repository.OuterAuthRequest) error {
	if !redirect.ForTenancy(t).IsAllowlisted(req.RedirectURI) {
		return errRedirectNotWhitelisted(req.RedirectURI)
	}
	if t.PublishableClientKey != "" &&
		subtle.ConstantTimeCompare([]byte(t.PublishableClientKey), []byte(req.PublishableClientKey)) != 1 {
		return errInvalidClient()
	}
	return nil
}

// Authorize returns the redirect URL carrying the grant for out. The stored
// redirect_uri and state are preserved exactly. Callers run Precheck first.
func (g *GrantAuthorizer) Authorize(ctx context.Context, t *tenancy.Tenancy, req *repository.OuterAuthRequest, out Outcome) (string, error) {
	if err := g.checkScope(ctx, t, req); err != nil {
		return "", err
	}

	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", internalf("stored redirect uri does not parse: %w", err)
	}

	switch req.ResponseType {
	case ResponseTypeCode:
		code, err := g.issueCode(ctx, t, req, out)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set("code", code)
		q.Set("state", req.State)
		u.RawQuery = q.Encode()
		return u.String(), nil

	case ResponseTypeToken:
		tok, err := g.mintToken(t, req, out)
		if err != nil {
			return "", err
		}
		frag := url.Values{}
		frag.Set("access_token", tok)
		frag.Set("token_type", "bearer")
		frag.Set("expires_in", strconv.Itoa(int(g.cfg.TokenTTL.Seconds())))
		frag.Set("state", req.State)
		u.Fragment = ""
		u.RawFragment = ""
		return u.String() + "#" + frag.Encode(), nil

	default:
		return "", clientInput(CodeUnsupportedResponseType, "Unsupported response type.").
			WithDetail("response_type", req.ResponseType)
	}
}

// checkScope accepts any scope when the tenancy does not restrict them.
// A rejected scope is a developer mistake: the full diagnostic goes to the
// logs, the browser only sees a generic message.
func (g *GrantAuthorizer) checkScope(ctx context.Context, t *tenancy.Tenancy, req *repository.OuterAuthRequest) error {
	requested := extractScopes(req.Scope)
	var invalid []string
	for _, s := range requested {
		if !validScopeToken(s) {
			invalid = append(invalid, s)
			continue
		}
		// An empty allowlist accepts any well-formed scope.
		if len(t.AllowedScopes) > 0 && !slices.Contains(t.AllowedScopes, s) {
			invalid = append(invalid, s)
		}
	}
	if len(invalid) == 0 {
		return nil
	}

	logger.From(ctx).Error("oauth grant requested invalid scopes",
		logger.TenancyID(t.ID),
		logger.Strings("requested_scopes", requested),
		logger.Strings("invalid_scopes", invalid),
		logger.Strings("allowed_scopes", t.AllowedScopes),
		zap.Bool("captured", true),
	)
	g.metrics.InvalidScope(t.ID)
	return errInvalidScope()
}

func (g *GrantAuthorizer) issueCode(ctx context.Context, t *tenancy.Tenancy, req *repository.OuterAuthRequest, out Outcome) (string, error) {
	code, err := tokenbox.GenerateOpaqueToken(codeBytes)
	if err != nil {
		return "", internalf("generate authorization code: %w", err)
	}
	payload, err := json.Marshal(CodeGrant{
		UserID:                   out.UserID,
		TenancyID:                t.ID,
		NewUser:                  out.NewUser,
		RedirectURI:              req.RedirectURI,
		Scope:                    req.Scope,
		CodeChallenge:            req.CodeChallenge,
		CodeChallengeMethod:      req.CodeChallengeMethod,
		AfterCallbackRedirectURL: req.AfterCallbackRedirectURL,
	})
	if err != nil {
		return "", internalf("encode authorization code: %w", err)
	}
	if err := g.cache.Set(ctx, codeKey(code), string(payload), g.cfg.CodeTTL); err != nil {
		return "", internalf("store authorization code: %w", err)
	}
	return code, nil
}

func (g *GrantAuthorizer) mintToken(t *tenancy.Tenancy, req *repository.OuterAuthRequest, out Outcome) (string, error) {
	if len(g.cfg.SigningKey) == 0 {
		return "", internalf("grant signing key is not configured")
	}
	now := g.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      out.UserID,
		"tid":      t.ID,
		"new_user": out.NewUser,
		"scope":    req.Scope,
		"iat":      now.Unix(),
		"exp":      now.Add(g.cfg.TokenTTL).Unix(),
	})
	signed, err := tok.SignedString(g.cfg.SigningKey)
	if err != nil {
		return "", internalf("sign access token: %w", err)
	}
	return signed, nil
}

// RedeemCode consumes an authorization code. A code redeems at most once.
func (g *GrantAuthorizer) RedeemCode(ctx context.Context, code string) (*CodeGrant, error) {
	raw, err := g.cache.GetDel(ctx, codeKey(code))
	if cache.IsNotFound(err) {
		return nil, clientInput(CodeInvalidAuthorizationCode,
			"The authorization code is invalid or has already been used.")
	}
	if err != nil {
		return nil, internalf("redeem authorization code: %w", err)
	}
	var grant CodeGrant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return nil, internalf("decode authorization code: %w", err)
	}
	return &grant, nil
}

// codeKey never stores the code itself.
func codeKey(code string) string {
	return codeKeyPrefix + tokenbox.SHA256Base64URL(code)
}
