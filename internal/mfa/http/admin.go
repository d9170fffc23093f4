package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// AdminHandler serves operator endpoints. All of them need mfa:admin.
type AdminHandler struct {
	MFAService *service.MFAService
}

// HandleStats handles GET /v1/admin/mfa/stats
//
//	@Summary		MFA statistics
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	mfasdk.StatsResponse
//	@Failure		403	{object}	mfasdk.ErrorResponse
//	@Router			/v1/admin/mfa/stats [get].
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.MFAService.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statsResponse(stats))
}

// HandleStatus handles GET /v1/admin/mfa/users/{id}
//
//	@Summary		MFA status of a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	mfasdk.StatusResponse
//	@Failure		404	{object}	mfasdk.ErrorResponse
//	@Router			/v1/admin/mfa/users/{id} [get].
func (h *AdminHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.MFAService.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusResponse(view))
}

// HandleUnlock handles POST /v1/admin/mfa/users/{id}/unlock
//
//	@Summary		Unlock MFA
//	@Description	Returns a locked user to active with the failure counter reset. The secret is kept.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204
//	@Failure		404	{object}	mfasdk.ErrorResponse
//	@Failure		409	{object}	mfasdk.ErrorResponse	"Not locked"
//	@Router			/v1/admin/mfa/users/{id}/unlock [post].
func (h *AdminHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.MFAService.Unlock(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.audit(r, "mfa unlocked by admin", id)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles DELETE /v1/admin/mfa/users/{id}
//
//	@Summary		Disable MFA for a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204
//	@Failure		404	{object}	mfasdk.ErrorResponse
//	@Failure		503	{object}	mfasdk.ErrorResponse
//	@Router			/v1/admin/mfa/users/{id} [delete].
func (h *AdminHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.MFAService.Disable(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.audit(r, "mfa disabled by admin", id)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) audit(r *http.Request, msg, target string) {
	admin, _ := httpx.UserIDFromContext(r.Context())
	slogx.FromContext(r.Context()).Info(msg, "admin_id", admin, "user_id", target)
}
