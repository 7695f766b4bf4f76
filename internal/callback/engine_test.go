package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/provider"
	"github.com/dropDatabas3/oauthcallback/internal/security/tokenbox"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

func TestCallbackNewUserIssuesCode(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	resp, jar, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"oauth-inner-inner-1"}, jar.deleted)
	assert.Equal(t, "new_user", resp.Outcome)
	assert.True(t, resp.NewUser)
	assert.False(t, resp.ErrorRedirect)

	u, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, "/handler", u.Path)
	assert.Equal(t, testOuterState, u.Query().Get("state"))
	code := u.Query().Get("code")
	require.NotEmpty(t, code)

	grant, err := h.grants.RedeemCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, grant.UserID)
	assert.True(t, grant.NewUser)
	assert.Equal(t, testRedirect, grant.RedirectURI)
	assert.Equal(t, "challenge", grant.CodeChallenge)

	// The gateway saw the inner correlation, not the outer state.
	assert.Equal(t, "inner-1", h.gw.gotIn.State)
	assert.Equal(t, "verifier", h.gw.gotIn.CodeVerifier)

	// user + primary auth email + binding
	ch, err := h.store.ContactChannels().FindUsedForAuth(context.Background(), testTenancy, repository.ContactChannelEmail, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, ch.ProjectUserID)
	assert.True(t, ch.IsVerified)

	b, err := h.store.ProviderAccounts().Find(context.Background(), testTenancy, testProvider, "g-42")
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, b.ProjectUserID)

	// tokens sealed at rest, scopes merged from provider default + requested
	toks := h.accessTokens(b.ID)
	require.Len(t, toks, 1)
	assert.NotEqual(t, "provider-access", toks[0].AccessToken)
	plain, err := h.box.Open(toks[0].AccessToken, tokenbox.BindingAAD(testTenancy, b.ID))
	require.NoError(t, err)
	assert.Equal(t, "provider-access", plain)
	assert.Equal(t, []string{"openid", "email", "https://www.googleapis.com/auth/drive"}, toks[0].Scopes)

	refresh, err := h.store.Tokens().ListRefreshTokens(context.Background(), testTenancy, b.ID)
	require.NoError(t, err)
	assert.Len(t, refresh, 1)
}

func TestCallbackSecondSignInIsExistingUser(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))
	h.seed("inner-2", outerRequest(), time.Now().Add(time.Minute))

	first, _, err := h.callback("inner-1")
	require.NoError(t, err)
	second, _, err := h.callback("inner-2")
	require.NoError(t, err)

	assert.Equal(t, "existing_user", second.Outcome)
	assert.Equal(t, first.UserID, second.UserID)
	assert.False(t, second.NewUser)
	assert.Equal(t, 1, h.userCount())

	b, err := h.store.ProviderAccounts().Find(context.Background(), testTenancy, testProvider, "g-42")
	require.NoError(t, err)
	assert.Len(t, h.accessTokens(b.ID), 2, "each grant appends tokens")
}

func TestCallbackRejectsMissingInnerCookie(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	jar := newJar()
	_, err := h.engine.HandleCallback(context.Background(), Request{
		ProviderID: testProvider,
		InnerState: "inner-1",
		Params:     url.Values{"code": {"x"}, "state": {"inner-1"}},
		Cookies:    jar,
	})
	ce := requireCode(t, err, CodeInnerCookieMismatch)
	assert.Equal(t, KindClientInput, ce.Kind)
	assert.Equal(t, []string{"oauth-inner-inner-1"}, jar.deleted)
	assert.Zero(t, h.gw.Calls())
}

func TestCallbackRejectsWrongCookieValue(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	jar := newJar(InnerCookieName("inner-1"), "false")
	_, err := h.engine.HandleCallback(context.Background(), Request{
		ProviderID: testProvider, InnerState: "inner-1", Cookies: jar,
	})
	requireCode(t, err, CodeInnerCookieMismatch)
	assert.Len(t, jar.deleted, 1)
}

func TestCallbackReplayFailsAfterCookieConsumed(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	jar := newJar(InnerCookieName("inner-1"), "true")
	in := Request{
		ProviderID: testProvider,
		InnerState: "inner-1",
		Params:     url.Values{"code": {"x"}, "state": {"inner-1"}},
		Cookies:    jar,
	}
	_, err := h.engine.HandleCallback(context.Background(), in)
	require.NoError(t, err)

	_, err = h.engine.HandleCallback(context.Background(), in)
	requireCode(t, err, CodeInnerCookieMismatch)
	assert.Equal(t, 1, h.gw.Calls())
}

func TestCallbackUnknownOuterRequest(t *testing.T) {
	h := newHarness(t)
	_, jar, err := h.callback("never-stored")
	requireCode(t, err, CodeOuterRequestNotFound)
	assert.Len(t, jar.deleted, 1)
}

func TestCallbackInvalidOuterPayloadIsInternal(t *testing.T) {
	h := newHarness(t)
	req := outerRequest(func(r *repository.OuterAuthRequest) {
		r.RedirectURI = ""
		r.ErrorRedirectURL = testErrorURL
	})
	h.seed("inner-1", req, time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeInternal)
	assert.Equal(t, KindInternal, ce.Kind)
	assert.Nil(t, resp, "internal errors never redirect")
	assert.False(t, IsKnown(err))
}

func TestCallbackExpiredRequestRedirectsToErrorURL(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.ErrorRedirectURL = testErrorURL
	}), time.Now().Add(-time.Second))

	resp, jar, err := h.callback("inner-1")
	require.NoError(t, err)
	require.True(t, resp.ErrorRedirect)
	assert.Len(t, jar.deleted, 1)
	assert.Zero(t, h.gw.Calls())

	u, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/oauth-error", u.Path)
	assert.Equal(t, CodeOuterTimeout, u.Query().Get("errorCode"))
	assert.NotEmpty(t, u.Query().Get("message"))
	assert.Equal(t, "{}", u.Query().Get("details"))
}

func TestCallbackExpiredRequestWithoutErrorURLPropagates(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(), time.Now().Add(-time.Second))

	resp, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeOuterTimeout)
	assert.Equal(t, KindExpired, ce.Kind)
	assert.Nil(t, resp)
}

func TestCallbackUntrustedErrorURLPropagates(t *testing.T) {
	h := newHarness(t)
	h.gw.err = &provider.Error{Kind: provider.KindAccessDenied, Code: "access_denied"}
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.ErrorRedirectURL = "https://evil.example.net/steal"
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	requireCode(t, err, CodeAccessDenied)
	assert.Nil(t, resp)
}

func TestCallbackAccessDeniedRedirectsToNativeApp(t *testing.T) {
	h := newHarness(t)
	h.gw.err = &provider.Error{Kind: provider.KindAccessDenied, Code: "access_denied"}
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.ErrorRedirectURL = "com.example.app://oauth"
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	require.True(t, resp.ErrorRedirect)
	u, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", u.Scheme)
	assert.Equal(t, CodeAccessDenied, u.Query().Get("errorCode"))
}

func TestCallbackProviderDisabled(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.tenancy.Providers[0].Enabled = false })
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	_, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeProviderNotEnabled)
	assert.Equal(t, KindNotConfigured, ce.Kind)
	assert.Zero(t, h.gw.Calls())
}

func TestCallbackTenancyDeletedConcurrently(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.TenancyID = "gone"
		r.ErrorRedirectURL = testErrorURL
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeInternal)
	assert.Contains(t, ce.Message, "deleted concurrently")
	assert.Nil(t, resp)
}

func TestCallbackExchangeTimeout(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.gw.block = true
		h.cfg.ExchangeTimeout = 20 * time.Millisecond
	})
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	_, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeUpstreamTimeout)
	assert.Equal(t, http.StatusBadGateway, ce.Status)
	assert.Equal(t, 1, h.gw.Calls(), "no retries")
	assert.Zero(t, h.userCount())
}

func TestCallbackProviderIdentityBeatsEmail(t *testing.T) {
	h := newHarness(t)
	bound := h.createUser(false)
	h.bind(bound.ID, "g-42")
	other := h.createUser(false)
	h.authEmail(other.ID, "ada@example.com", true)
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.Equal(t, "existing_user", resp.Outcome)
	assert.Equal(t, bound.ID, resp.UserID)
}

func TestCallbackLinksViaVerifiedEmail(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(false)
	h.authEmail(owner.ID, "ada@example.com", true)
	h.gw.result = googleUser("g-42", "  ADA@example.com ", true)
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.Equal(t, "linked_via_email", resp.Outcome)
	assert.Equal(t, owner.ID, resp.UserID)
	assert.False(t, resp.NewUser)
	assert.Equal(t, 1, h.userCount())
}

func TestCallbackLinkFlowConflictWritesNoTokens(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(false)
	b := h.bind(owner.ID, "g-42")
	other := h.createUser(false)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.Type = repository.FlowLink
		r.ProjectUserID = other.ID
	}), time.Now().Add(time.Minute))

	_, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeAlreadyConnected)
	assert.Equal(t, KindConflict, ce.Kind)
	assert.Empty(t, h.accessTokens(b.ID))

	n, err := testutil.GatherAndCount(h.reg, "oauthcallback_outcomes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCallbackLinkFlowSameUserAppendsTokens(t *testing.T) {
	h := newHarness(t)
	user := h.createUser(false)
	b := h.bind(user.ID, "g-42")
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.Type = repository.FlowLink
		r.ProjectUserID = user.ID
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.Equal(t, "linked_account", resp.Outcome)
	assert.Equal(t, user.ID, resp.UserID)
	assert.False(t, resp.NewUser)
	assert.Len(t, h.accessTokens(b.ID), 1)
}

func TestCallbackLinkFlowCreatesBinding(t *testing.T) {
	h := newHarness(t)
	user := h.createUser(false)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.Type = repository.FlowLink
		r.ProjectUserID = user.ID
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.UserID)

	bindings, err := h.store.ProviderAccounts().ListByUser(context.Background(), testTenancy, user.ID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "g-42", bindings[0].ProviderAccountID)
}

func TestCallbackLinkedBindingWithoutAuthMethodStillSignsIn(t *testing.T) {
	h := newHarness(t)
	user := h.createUser(false)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.Type = repository.FlowLink
		r.ProjectUserID = user.ID
	}), time.Now().Add(time.Minute))
	_, _, err := h.callback("inner-1")
	require.NoError(t, err)

	h.seed("inner-2", outerRequest(), time.Now().Add(time.Minute))
	resp, _, err := h.callback("inner-2")
	require.NoError(t, err)
	assert.Equal(t, "existing_user", resp.Outcome)
	assert.Equal(t, user.ID, resp.UserID)
	assert.Equal(t, 1, h.userCount())
}

func TestCallbackLinkFlowMissingUserIsInternal(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.Type = repository.FlowLink
		r.ProjectUserID = "0190f0a0-0000-7000-8000-000000000000"
		r.ErrorRedirectURL = testErrorURL
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	requireCode(t, err, CodeInternal)
	assert.Nil(t, resp)
}

func TestCallbackUpgradesAnonymousUser(t *testing.T) {
	h := newHarness(t)
	anon := h.createUser(true)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.ProjectUserID = anon.ID
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.Equal(t, anon.ID, resp.UserID)
	assert.True(t, resp.NewUser)
	assert.Equal(t, "anonymous_upgrade", resp.Outcome)
	assert.Equal(t, 1, h.userCount())

	u, err := h.store.Users().GetByID(context.Background(), testTenancy, anon.ID)
	require.NoError(t, err)
	assert.False(t, u.IsAnonymous)
}

func TestCallbackIgnoresNonAnonymousOrMissingHint(t *testing.T) {
	h := newHarness(t)
	signedIn := h.createUser(false)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.ProjectUserID = signedIn.ID
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.NotEqual(t, signedIn.ID, resp.UserID)

	h.gw.result = googleUser("g-43", "grace@example.com", true)
	h.seed("inner-2", outerRequest(func(r *repository.OuterAuthRequest) {
		r.ProjectUserID = "0190f0a0-0000-7000-8000-000000000000"
	}), time.Now().Add(time.Minute))
	resp, _, err = h.callback("inner-2")
	require.NoError(t, err)
	assert.True(t, resp.NewUser)
	assert.Equal(t, 3, h.userCount())
}

func TestCallbackSignUpDisabled(t *testing.T) {
	off := false
	h := newHarness(t, func(h *harness) { h.tenancy.AllowSignUp = &off })
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	_, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeSignUpNotEnabled)
	assert.Equal(t, KindClientInput, ce.Kind)
	assert.Zero(t, h.userCount())
}

// failingBindings makes every binding insert inside a transaction fail.
type failingBindings struct{ Store }

func (f failingBindings) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return f.Store.InTx(ctx, func(r repository.Repositories) error {
		return fn(failingRepos{Repositories: r})
	})
}

type failingRepos struct{ repository.Repositories }

func (f failingRepos) ProviderAccounts() repository.ProviderAccountRepository {
	return failingProviderAccounts{ProviderAccountRepository: f.Repositories.ProviderAccounts()}
}

type failingProviderAccounts struct{ repository.ProviderAccountRepository }

func (failingProviderAccounts) Create(context.Context, repository.CreateProviderAccountInput) (*repository.ProviderAccount, error) {
	return nil, repository.ErrInvalidInput
}

func TestCallbackUserCreationIsAtomic(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.wrap = func(s Store) Store { return failingBindings{Store: s} }
	})
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	_, _, err := h.callback("inner-1")
	requireCode(t, err, CodeInternal)
	assert.Zero(t, h.userCount(), "user row rolled back with the failed binding")
	_, err = h.store.ContactChannels().FindUsedForAuth(context.Background(), testTenancy, repository.ContactChannelEmail, "ada@example.com")
	assert.True(t, repository.IsNotFound(err))
}

func TestCallbackBindingRaceIsConflict(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.wrap = func(s Store) Store { return racingBindings{Store: s} }
	})
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	_, _, err := h.callback("inner-1")
	requireCode(t, err, CodeAlreadyConnected)
	assert.Zero(t, h.userCount())
}

// racingBindings simulates another request winning the binding insert.
type racingBindings struct{ Store }

func (r racingBindings) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return r.Store.InTx(ctx, func(repos repository.Repositories) error {
		return fn(racingRepos{Repositories: repos})
	})
}

type racingRepos struct{ repository.Repositories }

func (r racingRepos) ProviderAccounts() repository.ProviderAccountRepository {
	return racingProviderAccounts{ProviderAccountRepository: r.Repositories.ProviderAccounts()}
}

type racingProviderAccounts struct{ repository.ProviderAccountRepository }

func (racingProviderAccounts) Create(context.Context, repository.CreateProviderAccountInput) (*repository.ProviderAccount, error) {
	return nil, repository.ErrConflict
}

func TestCallbackTokenResponseType(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.ResponseType = ResponseTypeToken
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)

	u, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("code"))
	frag, err := url.ParseQuery(u.Fragment)
	require.NoError(t, err)
	assert.Equal(t, "bearer", frag.Get("token_type"))
	assert.Equal(t, testOuterState, frag.Get("state"))
	assert.Equal(t, "600", frag.Get("expires_in"))

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(frag.Get("access_token"), claims, func(*jwt.Token) (any, error) {
		return []byte("grant-signing-key"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, claims["sub"])
	assert.Equal(t, testTenancy, claims["tid"])
	assert.Equal(t, true, claims["new_user"])
}

func TestCallbackInvalidScope(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.tenancy.AllowedScopes = []string{"openid"} })
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.Scope = "openid admin"
		r.ErrorRedirectURL = testErrorURL
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	assert.Nil(t, resp)
	ce := requireCode(t, err, CodeInvalidScope)
	assert.Equal(t, http.StatusBadRequest, ce.Status)
	assert.Equal(t, "Invalid scope requested.", ce.Message)
	assert.NotContains(t, ce.Error(), "admin")

	n, err := testutil.GatherAndCount(h.reg, "oauthcallback_invalid_scope_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCallbackMalformedScopeWithoutAllowlist(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.Scope = "openid perfil\u00e9"
		r.ErrorRedirectURL = testErrorURL
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	assert.Nil(t, resp)
	ce := requireCode(t, err, CodeInvalidScope)
	assert.Equal(t, http.StatusBadRequest, ce.Status)
}

func TestCallbackWrongPublishableKeyRejectedBeforeExchange(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.tenancy.PublishableClientKey = "pck_live" })
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.PublishableClientKey = "pck_other"
		r.ErrorRedirectURL = testErrorURL
	}), time.Now().Add(time.Minute))

	resp, jar, err := h.callback("inner-1")
	assert.Nil(t, resp)
	ce := requireCode(t, err, CodeInvalidClient)
	assert.Equal(t, http.StatusBadRequest, ce.Status)
	assert.Equal(t, []string{"oauth-inner-inner-1"}, jar.deleted)
	assert.Zero(t, h.gw.calls)
	assert.Zero(t, h.userCount())
}

func TestCallbackPreservesRedirectQuery(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.RedirectURI = testRedirect + "?tab=login"
	}), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	u, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "login", u.Query().Get("tab"))
	assert.Equal(t, testOuterState, u.Query().Get("state"))
}

func TestCallbackRedirectURINotAllowlisted(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.RedirectURI = "https://evil.example.net/cb"
	}), time.Now().Add(time.Minute))

	_, _, err := h.callback("inner-1")
	ce := requireCode(t, err, CodeRedirectNotWhitelisted)
	assert.Equal(t, KindRedirectPolicy, ce.Kind)
	assert.Zero(t, h.gw.calls)
	assert.Zero(t, h.userCount())
}

// failingTokens rejects every token insert.
type failingTokens struct{ Store }

func (f failingTokens) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return f.Store.InTx(ctx, func(r repository.Repositories) error {
		return fn(failingTokenRepos{Repositories: r})
	})
}

type failingTokenRepos struct{ repository.Repositories }

func (failingTokenRepos) Tokens() repository.OAuthTokenRepository { return brokenTokenRepo{} }

type brokenTokenRepo struct{ repository.OAuthTokenRepository }

func (brokenTokenRepo) CreateRefreshToken(context.Context, repository.OAuthToken) (*repository.OAuthToken, error) {
	return nil, repository.ErrInvalidInput
}

func TestCallbackTokenPersistFailureKeepsLinkage(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.wrap = func(s Store) Store { return failingTokens{Store: s} }
	})
	h.seed("inner-1", outerRequest(), time.Now().Add(time.Minute))

	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)
	assert.Equal(t, "new_user", resp.Outcome)
	assert.Equal(t, 1, h.userCount())

	b, err := h.store.ProviderAccounts().Find(context.Background(), testTenancy, testProvider, "g-42")
	require.NoError(t, err)
	assert.Empty(t, h.accessTokens(b.ID))
}

func TestRedeemCodeIsSingleUse(t *testing.T) {
	h := newHarness(t)
	h.seed("inner-1", outerRequest(func(r *repository.OuterAuthRequest) {
		r.AfterCallbackRedirectURL = "https://app.example.com/after"
	}), time.Now().Add(time.Minute))
	resp, _, err := h.callback("inner-1")
	require.NoError(t, err)

	u, _ := url.Parse(resp.RedirectURL)
	code := u.Query().Get("code")
	grant, err := h.grants.RedeemCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/after", grant.AfterCallbackRedirectURL)

	_, err = h.grants.RedeemCode(context.Background(), code)
	requireCode(t, err, CodeInvalidAuthorizationCode)
}

func TestCodeIsStoredHashed(t *testing.T) {
	h := newHarness(t)
	code, err := h.grants.issueCode(context.Background(), &tenancy.Tenancy{ID: testTenancy}, &repository.OuterAuthRequest{}, Outcome{UserID: "u1"})
	require.NoError(t, err)

	_, err = h.cache.Get(context.Background(), "oauth:code:"+code)
	assert.Error(t, err)
	raw, err := h.cache.Get(context.Background(), codeKey(code))
	require.NoError(t, err)
	var g CodeGrant
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	assert.Equal(t, "u1", g.UserID)
}
