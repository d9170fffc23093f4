package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
)

// FirstLoginHandler serves the temporary password flow.
type FirstLoginHandler struct {
	FirstLoginService *service.FirstLoginService
}

// HandleCheck handles GET /v1/first-login/{user_id}
//
//	@Summary		First login state
//	@Description	Reports the next step for the user: change_password, verify_mfa or offer_mfa.
//	@Tags			First login
//	@Produce		json
//	@Param			user_id	path		string	true	"User ID"
//	@Success		200		{object}	mfasdk.FirstLoginStateResponse
//	@Failure		404		{object}	mfasdk.ErrorResponse
//	@Failure		503		{object}	mfasdk.ErrorResponse
//	@Router			/v1/first-login/{user_id} [get].
func (h *FirstLoginHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	state, err := h.FirstLoginService.CheckFirstLogin(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.FirstLoginStateResponse{
		UserID:       state.UserID,
		IsFirstLogin: state.IsFirstLogin,
		MFAEnabled:   state.MFAEnabled,
		NextStep:     state.NextStep,
	})
}

// HandleChangePassword handles POST /v1/first-login/password
//
//	@Summary		Replace a temporary password
//	@Description	Replaces the temporary password. Returns a step-up token when the user has MFA, otherwise a session.
//	@Tags			First login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		200		{object}	mfasdk.PasswordChangeResponse
//	@Failure		400		{object}	mfasdk.ValidationErrorResponse
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Current password is wrong"
//	@Failure		409		{object}	mfasdk.ErrorResponse	"No temporary password active"
//	@Failure		503		{object}	mfasdk.ErrorResponse
//	@Router			/v1/first-login/password [post].
func (h *FirstLoginHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req mfasdk.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.FirstLoginService.ChangeTemporaryPassword(r.Context(), req.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.PasswordChangeResponse{
		RequiresMFA: res.RequiresMFA,
		Token:       tokenResponse(res.Token),
	})
}

// HandleSetupMFA handles POST /v1/first-login/mfa
//
//	@Summary		Answer the MFA offer
//	@Description	Accepting starts TOTP enrollment; declining returns a session token.
//	@Tags			First login
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.SetupMFARequest	true	"Choice"
//	@Success		200		{object}	mfasdk.SetupMFAResponse
//	@Failure		401		{object}	mfasdk.ErrorResponse
//	@Failure		409		{object}	mfasdk.ErrorResponse
//	@Router			/v1/first-login/mfa [post].
func (h *FirstLoginHandler) HandleSetupMFA(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		mfasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req mfasdk.SetupMFARequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.FirstLoginService.SetupMFA(r.Context(), userID, req.Enable, req.Label)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var out mfasdk.SetupMFAResponse
	if res.Enroll != nil {
		e := enrollResponse(*res.Enroll)
		out.Enroll = &e
	}
	if res.Session != nil {
		t := tokenResponse(*res.Session)
		out.Token = &t
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
