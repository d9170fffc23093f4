package http

import (
	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
)

func tokenResponse(t domain.IssuedToken) mfasdk.TokenResponse {
	return mfasdk.TokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		Purpose:     t.Purpose,
		ExpiresIn:   t.ExpiresIn,
		SessionID:   t.SessionID,
	}
}

func enrollResponse(e domain.EnrollResponse) mfasdk.EnrollResponse {
	return mfasdk.EnrollResponse{
		Secret:          e.Secret,
		ProvisioningURI: e.ProvisioningURI,
		QRCode:          e.QRCode,
		Issuer:          e.Issuer,
		Account:         e.Account,
		ExpiresAt:       e.ExpiresAt,
	}
}

func statusResponse(v domain.StatusView) mfasdk.StatusResponse {
	var codes []mfasdk.BackupCodeStatus
	for _, c := range v.BackupCodes {
		codes = append(codes, mfasdk.BackupCodeStatus{Position: c.Position, UsedAt: c.UsedAt})
	}
	return mfasdk.StatusResponse{
		UserID:               v.UserID,
		Status:               v.Status.String(),
		MFAEnabled:           v.MFAEnabled,
		FailedAttempts:       v.FailedAttempts,
		BackupCodesRemaining: v.BackupCodesRemaining,
		BackupCodes:          codes,
		LastAttemptAt:        v.LastAttemptAt,
		VerifiedAt:           v.VerifiedAt,
		LockedAt:             v.LockedAt,
		PendingExpiresAt:     v.PendingExpiresAt,
	}
}

func statsResponse(s domain.Stats) mfasdk.StatsResponse {
	by := make(map[string]int, len(s.ByStatus))
	for st, n := range s.ByStatus {
		by[st.String()] = n
	}
	return mfasdk.StatsResponse{
		ByStatus:           by,
		PendingActivations: s.PendingActivations,
		VerifiedLast24h:    s.VerifiedLast24h,
	}
}
