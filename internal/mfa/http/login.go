package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
)

type LoginHandler struct {
	LoginService *service.LoginService
}

// ServeHTTP handles POST /v1/login
//
//	@Summary		Password login
//	@Description	Checks a password. Users with a temporary password are told to change it; users with MFA get a step-up token; everyone else gets a session.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.LoginRequest				true	"Credentials"
//	@Success		200		{object}	mfasdk.LoginResponse
//	@Failure		400		{object}	mfasdk.ValidationErrorResponse
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Invalid credentials"
//	@Failure		503		{object}	mfasdk.ErrorResponse	"Identity service unavailable"
//	@Router			/v1/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req mfasdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.LoginService.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := mfasdk.LoginResponse{
		PasswordChangeRequired: res.PasswordChangeRequired,
		RequiresMFA:            res.RequiresMFA,
	}
	if res.Token.AccessToken != "" {
		tok := tokenResponse(res.Token)
		out.Token = &tok
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
