package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

type BootstrapHandler struct {
	// Nil when users live in an external identity service.
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the one-time seeding of local users.
//
//	@Summary		Bootstrap local users
//	@Description	Creates the first users of the local identity store. Only available with a bootstrap token configured and no external identity service, and only once.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token"
//	@Param			request				body		mfasdk.BootstrapRequest			true	"Users to create"
//	@Success		201					{object}	mfasdk.BootstrapResponse
//	@Failure		400					{object}	mfasdk.ValidationErrorResponse
//	@Failure		401					{object}	mfasdk.ErrorResponse	"Missing or invalid bootstrap token"
//	@Failure		404					{object}	mfasdk.ErrorResponse	"Bootstrap not enabled"
//	@Failure		409					{object}	mfasdk.ErrorResponse	"Already bootstrapped"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.BootstrapService == nil || h.BootstrapService.Token == "" {
		mfasdk.ErrNotFound.WithDescription("bootstrap endpoint is not enabled").WriteError(w)
		return
	}

	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		mfasdk.ErrUnauthorized.WithDescription("bootstrap token is required in X-Bootstrap-Token header").WriteError(w)
		return
	}

	var req mfasdk.BootstrapRequest
	if !decode(w, r, &req) {
		return
	}

	users := make([]service.BootstrapUser, len(req.Users))
	for i, u := range req.Users {
		users[i] = service.BootstrapUser{
			Username:  strings.TrimSpace(u.Username),
			Password:  u.Password,
			Temporary: u.Temporary,
			Admin:     u.Admin,
		}
	}

	ids, err := h.BootstrapService.Bootstrap(r.Context(), token, users)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("bootstrap request served", "users", len(ids))
	httpx.WriteJSON(w, http.StatusCreated, mfasdk.BootstrapResponse{UserIDs: ids})
}
