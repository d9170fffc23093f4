package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
)

// JWKSHandler publishes the public keys so other services can verify
// session tokens offline. Keys are ephemeral and change on restart.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify session and step-up tokens.
//	@Tags			Well-known
//	@Produce		json
//	@Success		200	{object}	mfasdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, mfasdk.JWKSResponse(keys.PublicJWKS()))
	}
}
