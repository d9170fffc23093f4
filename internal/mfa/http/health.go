package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
)

// Pinger is anything readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SignerState reports whether signing keys are loaded.
type SignerState interface {
	IsReady() bool
}

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Always 200 while the process is serving.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	mfasdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, mfasdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the store, the pending activation store, the identity service and the signing keys.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	mfasdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	mfasdk.HealthResponse	"service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, db, pending, identity Pinger, keys SignerState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		probe := func(p Pinger) string {
			if p == nil {
				return "ok"
			}
			if err := p.Ping(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
				return "error: " + err.Error()
			}
			return "ok"
		}

		checks := &mfasdk.HealthChecks{
			Database: probe(db),
			Pending:  probe(pending),
			Identity: probe(identity),
			Signer:   "ok",
		}
		if keys == nil || !keys.IsReady() {
			checks.Signer = "error: no keys loaded"
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, mfasdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
