package main

import (
	"fmt"
	"log"

	"github.com/aussiebroadwan/mfagate/internal/mfa/app"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version string

func main() {
	if version != "" {
		app.BuildVersion = version
	}

	cfg := app.LoadConfig()
	log.Print(banner(cfg))

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

// banner names the build and the backends this process is about to wire.
func banner(cfg app.Config) string {
	identity := "local"
	if cfg.IdentityURL != "" {
		identity = "remote " + cfg.IdentityURL
	}
	pending := cfg.StoreKind
	if cfg.RedisAddr != "" {
		pending = "redis " + cfg.RedisAddr
	}
	return fmt.Sprintf("mfagate %s: store=%s pending=%s identity=%s", app.BuildVersion, cfg.StoreKind, pending, identity)
}
