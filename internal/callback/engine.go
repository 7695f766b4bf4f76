package callback

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthcallback/internal/audit"
	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/metrics"
	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

// Store is the persistence the engine needs: plain repositories for reads
// outside a transaction, and InTx for resolution writes.
type Store interface {
	repository.Repositories
	repository.TxRunner
}

// Config holds the engine timeouts.
type Config struct {
	ExchangeTimeout time.Duration // default 10s
	ResolveTimeout  time.Duration // default 5s
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store     Store
	Tenancies tenancy.Store
	Gateways  GatewayFactory
	Tokens    *TokenPersister
	Grants    *GrantAuthorizer
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Request is one browser callback.
type Request struct {
	ProviderID string
	InnerState string
	// Params are the merged query and form parameters, passed verbatim to
	// the provider gateway.
	Params  url.Values
	Cookies CookieJar
}

// Response tells the transport where to send the browser.
type Response struct {
	RedirectURL string
	Outcome     string
	UserID      string
	NewUser     bool
	// ErrorRedirect is true when RedirectURL reports a failure.
	ErrorRedirect bool
}

// Engine resolves OAuth callbacks.
type Engine struct {
	store     Store
	tenancies tenancy.Store
	guard     *Guard
	exchanger *Exchanger
	tokens    *TokenPersister
	grants    *GrantAuthorizer
	metrics   *metrics.Metrics
	resolveTO time.Duration
	now       func() time.Time
}

// NewEngine wires an Engine.
func NewEngine(cfg Config, d Deps) *Engine {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 5 * time.Second
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     d.Store,
		tenancies: d.Tenancies,
		guard:     NewGuard(d.Store.OuterRequests(), now),
		exchanger: NewExchanger(d.Gateways, cfg.ExchangeTimeout),
		tokens:    d.Tokens,
		grants:    d.Grants,
		metrics:   d.Metrics,
		resolveTO: cfg.ResolveTimeout,
		now:       now,
	}
}

// HandleCallback runs the whole pipeline. A known error is turned into an
// error redirect when the outer request allows it; otherwise it is returned
// as a *Error. Errors raised before the tenancy is known never redirect.
func (e *Engine) HandleCallback(ctx context.Context, in Request) (*Response, error) {
	start := time.Now()
	log := logger.From(ctx).With(
		logger.Layer("callback"),
		logger.ProviderID(in.ProviderID),
		logger.StateMasked(in.InnerState),
	)
	ctx = logger.ToContext(ctx, log)

	req, err := e.guard.Check(ctx, in.Cookies, in.InnerState)
	if err != nil {
		return e.fail(ctx, start, nil, nil, "", err)
	}
	log = log.With(logger.TenancyID(req.TenancyID), logger.Flow(string(req.Type)))
	ctx = logger.ToContext(ctx, log)

	t, err := e.tenancies.Get(ctx, req.TenancyID)
	if errors.Is(err, tenancy.ErrNotFound) {
		return e.fail(ctx, start, nil, nil, "", internalf("tenancy %s deleted concurrently", req.TenancyID))
	}
	if err != nil {
		return e.fail(ctx, start, nil, nil, "", internalf("load tenancy: %w", err))
	}

	resp, label, err := e.run(ctx, t, req, in)
	if err != nil {
		return e.fail(ctx, start, t, req, label, err)
	}

	log.Info("oauth callback resolved",
		logger.Outcome(resp.Outcome),
		logger.UserID(resp.UserID),
		logger.Bool("new_user", resp.NewUser),
		logger.DurationMs(time.Since(start)),
	)
	e.metrics.ObserveOutcome(resp.Outcome, time.Since(start))
	return resp, nil
}

// run returns the resolution label alongside a failure when resolution
// itself completed (link conflicts, grant rejections).
func (e *Engine) run(ctx context.Context, t *tenancy.Tenancy, req *repository.OuterAuthRequest, in Request) (*Response, string, error) {
	if err := e.guard.CheckExpiry(req); err != nil {
		return nil, "", err
	}
	if err := e.grants.Precheck(t, req); err != nil {
		return nil, "", err
	}

	p, res, err := e.exchanger.Exchange(ctx, t, in.ProviderID, req, in.Params)
	if err != nil {
		return nil, "", err
	}

	resolution, err := e.resolve(ctx, ResolveInput{
		Tenancy:    t,
		ProviderID: in.ProviderID,
		Request:    req,
		UserInfo:   res.UserInfo,
	})
	if err != nil {
		return nil, "", err
	}
	recordAudit(ctx, resolution)
	label := resolution.Label()
	out, err := OutcomeOf(resolution)
	if err != nil {
		return nil, label, err
	}

	scopes := extractScopes(p.DefaultScope, req.ProviderScope)
	if err := e.store.InTx(ctx, func(r repository.Repositories) error {
		return e.tokens.Persist(ctx, r.Tokens(), out.Binding, scopes, res.TokenSet)
	}); err != nil {
		// The linkage stays committed; tokens are refreshed on the next sign-in.
		logger.From(ctx).Error("persist provider tokens failed",
			logger.UserID(out.UserID),
			logger.Err(err),
		)
	}

	target, err := e.grants.Authorize(ctx, t, req, out)
	if err != nil {
		return nil, label, err
	}
	return &Response{
		RedirectURL: target,
		Outcome:     label,
		UserID:      out.UserID,
		NewUser:     out.NewUser,
	}, label, nil
}

func (e *Engine) resolve(ctx context.Context, in ResolveInput) (Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, e.resolveTO)
	defer cancel()

	var resolution Resolution
	err := e.store.InTx(ctx, func(r repository.Repositories) error {
		var err error
		resolution, err = Resolve(ctx, r, in)
		return err
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errUpstreamTimeout().WithCause(err)
		}
		if _, ok := AsError(err); ok {
			return nil, err
		}
		return nil, internalf("resolve account: %w", err)
	}
	return resolution, nil
}

// fail classifies err, logs it and decides between an error redirect and
// propagation. t and req are nil when the failure happened before they were
// loaded. label is the resolution outcome, if one was reached.
func (e *Engine) fail(ctx context.Context, start time.Time, t *tenancy.Tenancy, req *repository.OuterAuthRequest, label string, err error) (*Response, error) {
	log := logger.From(ctx)
	ce, ok := AsError(err)
	if !ok {
		ce = internalf("unclassified callback failure: %w", err)
	}

	if ce.Kind == KindInternal {
		log.Error("oauth callback failed",
			logger.ErrorCode(ce.Code),
			logger.Err(ce),
			zap.Stack("stack"),
		)
		e.metrics.ObserveOutcome("error", time.Since(start))
		return nil, ce
	}

	log.Warn("oauth callback rejected",
		logger.ErrorCode(ce.Code),
		logger.String("kind", ce.Kind.String()),
		logger.Err(ce),
	)
	if label == "" {
		label = "rejected"
	}
	e.metrics.ObserveOutcome(label, time.Since(start))

	if target, ok := ErrorRedirectURL(t, req, ce); ok {
		return &Response{RedirectURL: target, Outcome: "error_redirect", ErrorRedirect: true}, nil
	}
	return nil, ce
}

// recordAudit emits an audit event for resolutions that changed identity
// data. Sign-ins and conflicts are not audited.
func recordAudit(ctx context.Context, r Resolution) {
	switch v := r.(type) {
	case NewUser:
		ev := audit.UserCreated
		if v.Upgraded {
			ev = audit.UserUpgraded
		}
		audit.Record(ctx, ev, logger.UserID(v.UserID), logger.String("binding_id", v.Binding.ID))
	case LinkedViaEmail:
		audit.Record(ctx, audit.AccountLinkedByEmail, logger.UserID(v.UserID), logger.String("binding_id", v.Binding.ID))
	case LinkedAccount:
		if v.Created {
			audit.Record(ctx, audit.AccountLinked, logger.UserID(v.UserID), logger.String("binding_id", v.Binding.ID))
		}
	}
}
