package callback

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/provider"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

// GatewayFactory builds the provider gateway for a configured provider.
type GatewayFactory interface {
	Gateway(p tenancy.Provider) (provider.Gateway, error)
}

// Exchanger swaps the provider authorization code for tokens and profile.
type Exchanger struct {
	gateways GatewayFactory
	timeout  time.Duration
}

// NewExchanger creates an Exchanger. timeout <= 0 means 10s.
func NewExchanger(gateways GatewayFactory, timeout time.Duration) *Exchanger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Exchanger{gateways: gateways, timeout: timeout}
}

// Exchange runs the code exchange for providerID within t. The code is
// single-use, so a failed exchange is never retried.
func (x *Exchanger) Exchange(ctx context.Context, t *tenancy.Tenancy, providerID string, req *repository.OuterAuthRequest, params url.Values) (tenancy.Provider, *provider.CallbackResult, error) {
	p, ok := t.Provider(providerID)
	if !ok || !p.Enabled {
		return tenancy.Provider{}, nil, errNotConfigured(providerID)
	}
	gw, err := x.gateways.Gateway(p)
	if err != nil {
		return tenancy.Provider{}, nil, errNotConfigured(providerID).WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	res, err := gw.GetCallback(ctx, provider.CallbackInput{
		CodeVerifier: req.InnerCodeVerifier,
		State:        req.InnerState,
		Params:       params,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tenancy.Provider{}, nil, errUpstreamTimeout().WithCause(err)
		}
		return tenancy.Provider{}, nil, mapProviderError(err)
	}
	if res.UserInfo.AccountID == "" {
		return tenancy.Provider{}, nil, providerError(http.StatusBadGateway, CodeUpstreamFailure,
			"The OAuth provider did not return an account id.")
	}
	return p, res, nil
}

func mapProviderError(err error) *Error {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		return providerError(http.StatusBadGateway, CodeUpstreamFailure,
			"The OAuth provider returned an unexpected response. Please try again.").WithCause(err)
	}
	var e *Error
	switch pe.Kind {
	case provider.KindAccessDenied:
		e = providerError(http.StatusBadRequest, CodeAccessDenied,
			"The OAuth provider denied access to the user.")
	case provider.KindInvalidGrant:
		e = providerError(http.StatusBadRequest, CodeInvalidGrant,
			"Invalid authorization code or it has expired. Please try signing in again.")
	case provider.KindInvalidClient:
		e = providerError(http.StatusBadRequest, CodeProviderMisconfigured,
			"The OAuth provider rejected the client credentials. Check the provider configuration.")
	case provider.KindInvalidRequest:
		e = providerError(http.StatusBadRequest, CodeInvalidCallback,
			"The OAuth callback request is invalid. Please try signing in again.")
	default:
		e = providerError(http.StatusBadGateway, CodeUpstreamFailure,
			"The OAuth provider returned an unexpected response. Please try again.")
	}
	if pe.Description != "" {
		e = e.WithDetail("provider_error_description", pe.Description)
	}
	return e.WithCause(err)
}
