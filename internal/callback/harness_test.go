package callback

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/oauthcallback/internal/cache"
	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/metrics"
	"github.com/dropDatabas3/oauthcallback/internal/provider"
	"github.com/dropDatabas3/oauthcallback/internal/security/tokenbox"
	"github.com/dropDatabas3/oauthcallback/internal/store/sqlite"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

const (
	testTenancy    = "t1"
	testProvider   = "google"
	testSealKey    = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	testRedirect   = "https://app.example.com/handler"
	testErrorURL   = "https://app.example.com/oauth-error"
	testOuterState = "abc123"
)

// fakeJar records every deletion.
type fakeJar struct {
	values  map[string]string
	deleted []string
}

func newJar(kv ...string) *fakeJar {
	j := &fakeJar{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		j.values[kv[i]] = kv[i+1]
	}
	return j
}

func (j *fakeJar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func (j *fakeJar) Delete(name string) {
	j.deleted = append(j.deleted, name)
	delete(j.values, name)
}

// fakeGateway returns a canned result.
type fakeGateway struct {
	mu     sync.Mutex
	calls  int
	result *provider.CallbackResult
	err    error
	block  bool
	gotIn  provider.CallbackInput
}

func (g *fakeGateway) GetCallback(ctx context.Context, in provider.CallbackInput) (*provider.CallbackResult, error) {
	g.mu.Lock()
	g.calls++
	g.gotIn = in
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	cp := *g.result
	return &cp, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeFactory struct{ gw *fakeGateway }

func (f fakeFactory) Gateway(tenancy.Provider) (provider.Gateway, error) { return f.gw, nil }

type harness struct {
	t       *testing.T
	store   *sqlite.Store
	tenancy *tenancy.Tenancy
	gw      *fakeGateway
	cache   cache.Client
	box     *tokenbox.Box
	reg     *prometheus.Registry
	grants  *GrantAuthorizer
	engine  *Engine
	wrap    func(Store) Store
	cfg     Config
}

func googleUser(accountID, email string, verified bool) *provider.CallbackResult {
	return &provider.CallbackResult{
		UserInfo: provider.UserInfo{
			AccountID:     accountID,
			Email:         email,
			EmailVerified: verified,
			DisplayName:   "Ada Lovelace",
		},
		TokenSet: provider.TokenSet{
			AccessToken:          "provider-access",
			RefreshToken:         "provider-refresh",
			AccessTokenExpiredAt: time.Now().Add(time.Hour),
		},
	}
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	box, err := tokenbox.New(testSealKey)
	require.NoError(t, err)

	h := &harness{
		t:     t,
		store: st,
		tenancy: &tenancy.Tenancy{
			ID:             testTenancy,
			TrustedDomains: []string{"https://app.example.com"},
			Providers: []tenancy.Provider{{
				ID: testProvider, Type: tenancy.ProviderGoogle, Enabled: true,
				ClientID: "cid", ClientSecret: "secret", DefaultScope: "openid email",
			}},
		},
		gw:    &fakeGateway{result: googleUser("g-42", "ada@example.com", true)},
		cache: cache.NewMemory("test"),
		box:   box,
		reg:   prometheus.NewRegistry(),
	}
	for _, o := range opts {
		o(h)
	}
	h.build()
	return h
}

func (h *harness) build() {
	m, err := metrics.New(h.reg)
	require.NoError(h.t, err)
	h.grants = NewGrantAuthorizer(h.cache, m, GrantConfig{
		CodeTTL:    time.Minute,
		TokenTTL:   10 * time.Minute,
		SigningKey: []byte("grant-signing-key"),
	}, nil)

	var st Store = h.store
	if h.wrap != nil {
		st = h.wrap(st)
	}
	h.engine = NewEngine(h.cfg, Deps{
		Store:     st,
		Tenancies: tenancy.StaticStore{h.tenancy.ID: h.tenancy},
		Gateways:  fakeFactory{gw: h.gw},
		Tokens:    NewTokenPersister(h.box),
		Grants:    h.grants,
		Metrics:   m,
	})
}

func outerRequest(mut ...func(*repository.OuterAuthRequest)) repository.OuterAuthRequest {
	r := repository.OuterAuthRequest{
		TenancyID:           testTenancy,
		InnerCodeVerifier:   "verifier",
		Type:                repository.FlowSignInOrUp,
		ProviderScope:       "https://www.googleapis.com/auth/drive",
		State:               testOuterState,
		Scope:               "legacy",
		GrantType:           "authorization_code",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		ResponseType:        ResponseTypeCode,
		RedirectURI:         testRedirect,
	}
	for _, m := range mut {
		m(&r)
	}
	return r
}

// seed stores the outer request under innerState.
func (h *harness) seed(innerState string, req repository.OuterAuthRequest, expiresAt time.Time) {
	h.t.Helper()
	info, err := json.Marshal(req)
	require.NoError(h.t, err)
	h.seedRaw(innerState, info, expiresAt)
}

func (h *harness) seedRaw(innerState string, info []byte, expiresAt time.Time) {
	h.t.Helper()
	require.NoError(h.t, h.store.OuterRequests().Create(context.Background(), repository.OuterAuthRecord{
		InnerState: innerState,
		Info:       info,
		ExpiresAt:  expiresAt,
	}))
}

// callback runs a callback with a confirmed inner cookie.
func (h *harness) callback(innerState string) (*Response, *fakeJar, error) {
	jar := newJar(InnerCookieName(innerState), "true")
	resp, err := h.engine.HandleCallback(context.Background(), Request{
		ProviderID: testProvider,
		InnerState: innerState,
		Params:     url.Values{"code": {"provider-code"}, "state": {innerState}},
		Cookies:    jar,
	})
	return resp, jar, err
}

func (h *harness) createUser(anonymous bool) *repository.User {
	h.t.Helper()
	u, err := h.store.Users().Create(context.Background(), repository.CreateUserInput{
		TenancyID:   testTenancy,
		DisplayName: "existing",
		IsAnonymous: anonymous,
	})
	require.NoError(h.t, err)
	return u
}

func (h *harness) bind(userID, accountID string) *repository.ProviderAccount {
	h.t.Helper()
	b, err := h.store.ProviderAccounts().Create(context.Background(), repository.CreateProviderAccountInput{
		TenancyID:         testTenancy,
		ProviderID:        testProvider,
		ProviderAccountID: accountID,
		ProjectUserID:     userID,
		AuthMethod:        true,
	})
	require.NoError(h.t, err)
	return b
}

func (h *harness) authEmail(userID, email string, verified bool) {
	h.t.Helper()
	_, err := h.store.ContactChannels().Create(context.Background(), repository.ContactChannel{
		TenancyID:     testTenancy,
		ProjectUserID: userID,
		Type:          repository.ContactChannelEmail,
		Value:         email,
		IsPrimary:     true,
		IsVerified:    verified,
		UsedForAuth:   true,
	})
	require.NoError(h.t, err)
}

func (h *harness) userCount() int {
	h.t.Helper()
	n, err := h.store.Users().Count(context.Background(), testTenancy)
	require.NoError(h.t, err)
	return n
}

func (h *harness) accessTokens(bindingID string) []repository.OAuthAccessToken {
	h.t.Helper()
	toks, err := h.store.Tokens().ListAccessTokens(context.Background(), testTenancy, bindingID)
	require.NoError(h.t, err)
	return toks
}

func requireCode(t *testing.T, err error, code string) *Error {
	t.Helper()
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok, "expected *callback.Error, got %T: %v", err, err)
	require.Equal(t, code, ce.Code, "error: %v", err)
	return ce
}

func repositoryChannel(userID, email string, usedForAuth bool) repository.ContactChannel {
	return repository.ContactChannel{
		TenancyID:     testTenancy,
		ProjectUserID: userID,
		Type:          repository.ContactChannelEmail,
		Value:         email,
		IsVerified:    true,
		UsedForAuth:   usedForAuth,
	}
}
