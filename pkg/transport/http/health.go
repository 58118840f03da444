package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rhuss/byok/pkg/transport"
)

const readinessTimeout = 2 * time.Second

type healthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealthz handles GET /healthz. The process is alive when it answers.
func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, healthStatus{Status: "ok"})
}

// handleReadyz handles GET /readyz by running every health check.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	for _, hc := range a.svc.Health {
		if err := hc.HealthCheck(ctx); err != nil {
			transport.WriteJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	transport.WriteJSON(w, http.StatusOK, healthStatus{Status: "ok"})
}
