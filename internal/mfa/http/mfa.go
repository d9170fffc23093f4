package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
)

// MFAHandler handles the self-service MFA endpoints.
type MFAHandler struct {
	MFAService   *service.MFAService
	LoginService *service.LoginService
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		mfasdk.ErrInvalidToken.WriteError(w)
	}
	return userID, ok
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a candidate secret with a provisioning URI and QR code. It must be confirmed before it expires.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.EnrollRequest	false	"Optional account label"
//	@Success		200		{object}	mfasdk.EnrollResponse
//	@Failure		401		{object}	mfasdk.ErrorResponse
//	@Failure		409		{object}	mfasdk.ErrorResponse	"MFA already active"
//	@Failure		423		{object}	mfasdk.ErrorResponse	"MFA locked"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req mfasdk.EnrollRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	resp, err := h.MFAService.EnrollBegin(r.Context(), userID, req.Label)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, enrollResponse(resp))
}

// HandleConfirm handles POST /v1/mfa/totp/confirm
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Activates MFA with the first code from the authenticator and returns backup codes, shown once.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.CodeRequest	true	"TOTP code"
//	@Success		200		{object}	mfasdk.ConfirmResponse
//	@Failure		400		{object}	mfasdk.ValidationErrorResponse
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Wrong code"
//	@Failure		404		{object}	mfasdk.ErrorResponse	"No pending activation"
//	@Failure		410		{object}	mfasdk.ErrorResponse	"Activation expired"
//	@Failure		503		{object}	mfasdk.ErrorResponse
//	@Router			/v1/mfa/totp/confirm [post].
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req mfasdk.CodeRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.MFAService.EnrollConfirm(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mfasdk.ConfirmResponse{Activated: res.Activated, BackupCodes: res.BackupCodes})
}

// HandleVerify handles POST /v1/mfa/totp/verify
//
//	@Summary		Complete login with TOTP
//	@Description	Trades a step-up token and a valid code for a session token. Five failures lock MFA.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.CodeRequest	true	"TOTP code"
//	@Success		200		{object}	mfasdk.TokenResponse
//	@Failure		400		{object}	mfasdk.ValidationErrorResponse
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Wrong or replayed code"
//	@Failure		423		{object}	mfasdk.ErrorResponse	"MFA locked"
//	@Router			/v1/mfa/totp/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req mfasdk.CodeRequest
	if !decode(w, r, &req) {
		return
	}

	tok, err := h.LoginService.CompleteWithTOTP(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(tok))
}

// HandleConsumeBackupCode handles POST /v1/mfa/backup-codes/consume
//
//	@Summary		Complete login with a backup code
//	@Description	Spends one backup code in place of a TOTP code. Failures count towards lockout.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.BackupCodeRequest	true	"Backup code"
//	@Success		200		{object}	mfasdk.BackupCodeLoginResponse
//	@Failure		401		{object}	mfasdk.ErrorResponse
//	@Failure		423		{object}	mfasdk.ErrorResponse
//	@Router			/v1/mfa/backup-codes/consume [post].
func (h *MFAHandler) HandleConsumeBackupCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req mfasdk.BackupCodeRequest
	if !decode(w, r, &req) {
		return
	}

	tok, res, err := h.LoginService.CompleteWithBackupCode(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mfasdk.BackupCodeLoginResponse{Token: tokenResponse(tok), Remaining: res.Remaining})
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces every backup code. Earlier codes stop working.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	mfasdk.BackupCodesResponse	"New backup codes (shown once)"
//	@Failure		404	{object}	mfasdk.ErrorResponse
//	@Failure		409	{object}	mfasdk.ErrorResponse
//	@Failure		423	{object}	mfasdk.ErrorResponse
//	@Router			/v1/mfa/backup-codes [post].
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mfasdk.BackupCodesResponse{Codes: codes})
}

// HandleDisable handles DELETE /v1/mfa/totp
//
//	@Summary		Disable MFA
//	@Tags			MFA
//	@Security		BearerAuth
//	@Success		204
//	@Failure		404	{object}	mfasdk.ErrorResponse
//	@Failure		503	{object}	mfasdk.ErrorResponse
//	@Router			/v1/mfa/totp [delete].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.MFAService.Disable(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /v1/mfa/status
//
//	@Summary		MFA status of the caller
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	mfasdk.StatusResponse
//	@Failure		503	{object}	mfasdk.ErrorResponse
//	@Router			/v1/mfa/status [get].
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	view, err := h.MFAService.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusResponse(view))
}
