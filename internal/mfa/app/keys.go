package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
)

// initKeys generates the ephemeral EdDSA signing keys. Tokens do not
// survive a restart; step-up and session tokens are short lived.
func initKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  cfg.Issuer,
		NumKeys: cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("ephemeral signing keys generated",
		"algorithm", km.Algorithm(),
		"num_keys", km.NumSigners(),
	)
	return km, nil
}
