// Package health contiene el controller para health checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
)

// Check es un componente verificable (store, cache).
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthController maneja las rutas de health check.
type HealthController struct {
	checks  []Check
	timeout time.Duration
}

// NewHealthController crea un nuevo controller de health check.
func NewHealthController(checks ...Check) *HealthController {
	return &HealthController{checks: checks, timeout: 2 * time.Second}
}

type response struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	resp := response{Status: "ready", Components: make(map[string]string, len(c.checks))}
	for _, ch := range c.checks {
		if err := ch.Ping(ctx); err != nil {
			log.Warn("readiness check failed", logger.Component(ch.Name), logger.Err(err))
			resp.Components[ch.Name] = "down"
			resp.Status = "unavailable"
			continue
		}
		resp.Components[ch.Name] = "up"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
