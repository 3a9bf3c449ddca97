package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
)

// ReadinessCheck reports whether one dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// HealthController serves liveness and readiness probes.
type HealthController struct {
	checks  map[string]ReadinessCheck
	timeout time.Duration
}

func NewHealthController(checks map[string]ReadinessCheck) *HealthController {
	return &HealthController{checks: checks, timeout: time.Second}
}

func (c *HealthController) Register(router *mux.Router) {
	router.HandleFunc("/healthz", c.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", c.handleReadyz).Methods(http.MethodGet)
}

func (c *HealthController) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (c *HealthController) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.checks[name](ctx); err != nil {
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
