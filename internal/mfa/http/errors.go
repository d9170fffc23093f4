package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// apiError maps a service error class to its response. Locked is checked
// before Unauthorized because a lockout carries both.
func apiError(err error) *mfasdk.APIError {
	var base *mfasdk.APIError
	switch {
	case errors.Is(err, service.ErrValidation):
		base = mfasdk.ErrValidation
	case errors.Is(err, service.ErrNotFound):
		base = mfasdk.ErrNotFound
	case errors.Is(err, service.ErrLocked):
		return mfasdk.ErrLocked
	case errors.Is(err, service.ErrUnauthorized):
		base = mfasdk.ErrUnauthorized
	case errors.Is(err, service.ErrExpired):
		return mfasdk.ErrExpired
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return mfasdk.ErrUpstreamUnavailable
	case errors.Is(err, service.ErrConflict):
		base = mfasdk.ErrConflict
	case errors.Is(err, service.ErrInvalidState):
		base = mfasdk.ErrInvalidState
	default:
		return mfasdk.ErrServerError
	}
	return base.WithDescription(err.Error())
}

// writeServiceError logs and writes err. Internal errors are logged at
// error level and never echoed to the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := apiError(err)
	log := slogx.FromContext(r.Context())
	if resp.StatusCode >= http.StatusInternalServerError {
		log.Error("request failed", "status", resp.StatusCode, "err", err)
	} else {
		log.Info("request rejected", "status", resp.StatusCode, "code", resp.Code, "err", err)
	}
	resp.WriteError(w)
}
