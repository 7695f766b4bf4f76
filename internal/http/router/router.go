// Package router arma el árbol de rutas chi del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/oauthcallback/internal/http/controllers/health"
	"github.com/dropDatabas3/oauthcallback/internal/http/controllers/oauth"
	httperrors "github.com/dropDatabas3/oauthcallback/internal/http/errors"
	mw "github.com/dropDatabas3/oauthcallback/internal/http/middlewares"
	"github.com/dropDatabas3/oauthcallback/internal/metrics"
	"github.com/dropDatabas3/oauthcallback/internal/rate"
)

// CallbackPath es la ruta registrada como redirect_uri en cada provider.
const CallbackPath = "/api/v1/auth/oauth/callback/{provider_id}"

// Deps contiene las dependencias del router.
type Deps struct {
	Callback *oauth.CallbackController
	Health   *health.HealthController
	Metrics  *metrics.Metrics
	// Gatherer expone /metrics. nil usa el registry default.
	Gatherer prometheus.Gatherer
	// RateLimit aplica solo a la ruta de callback. nil desactiva.
	RateLimit      *rate.Limiter
	TrustForwarded bool
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithMetrics(d.Metrics),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", "GET, POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.WithRateLimit(d.RateLimit, d.TrustForwarded))
		r.Get(CallbackPath, d.Callback.Callback)
		r.Post(CallbackPath, d.Callback.Callback)
	})

	if d.Health != nil {
		r.Get("/readyz", d.Health.Readyz)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
