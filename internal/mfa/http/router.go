package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"

	_ "github.com/aussiebroadwan/mfagate/api/mfa" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// Readiness probes. Nil probes are reported as ok.
	Database Pinger
	Pending  Pinger
	Identity Pinger
	Keys     SignerState

	// KeySet is published at /.well-known/jwks.json when set.
	KeySet *jwtx.KeySet

	MFAService        *service.MFAService
	LoginService      *service.LoginService
	FirstLoginService *service.FirstLoginService
	BootstrapService  *service.BootstrapService // nil with an external identity service
}

func NewRouter(verifier jwtx.Verifier, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerFirstLogin()
	r.registerMFA()
	r.registerAdmin()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			MFA Gateway API
//	@version		0.1.0
//	@description	TOTP enrollment, step-up verification, backup codes and first-login password replacement.
//	@description
//	@description				Session and step-up tokens are EdDSA-signed JWTs. A step-up token is only accepted by the verify endpoints.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/mfagate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT session or step-up token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// session guards an endpoint with a session token.
func (r *Router) session(h http.HandlerFunc, limit httpx.RateLimitConfig, scopes ...string) http.Handler {
	mws := []httpx.Middleware{httpx.AuthnMiddleware(r.verifier, jwtx.PurposeSession)}
	if len(scopes) > 0 {
		mws = append(mws, httpx.RequireAnyScope(scopes...))
	}
	mws = append(mws, httpx.RateLimitByUser(limit))
	return httpx.Chain(h, mws...)
}

// stepUp guards an endpoint with a step-up token.
func (r *Router) stepUp(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier, jwtx.PurposeStepUp),
		httpx.RequireAnyScope(service.ScopeVerify),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{LoginService: r.LoginService}

	// limited per IP and per claimed user so one account cannot be sprayed
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(h,
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "user_id"),
		),
	)
}

func (r *Router) registerFirstLogin() {
	h := &FirstLoginHandler{FirstLoginService: r.FirstLoginService}

	r.Mux.Handle("GET /v1/first-login/{user_id}",
		httpx.Chain(http.HandlerFunc(h.HandleCheck),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/first-login/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "user_id"),
		),
	)
	r.Mux.Handle("POST /v1/first-login/mfa", r.session(h.HandleSetupMFA, httpx.ModerateLimit, service.ScopeSelf))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService, LoginService: r.LoginService}

	r.Mux.Handle("POST /v1/mfa/totp/enroll", r.session(h.HandleEnroll, httpx.ModerateLimit, service.ScopeSelf))
	// strict: confirm and verify are where codes get guessed
	r.Mux.Handle("POST /v1/mfa/totp/confirm", r.session(h.HandleConfirm, httpx.StrictLimit, service.ScopeSelf))
	r.Mux.Handle("POST /v1/mfa/totp/verify", r.stepUp(h.HandleVerify))
	r.Mux.Handle("POST /v1/mfa/backup-codes/consume", r.stepUp(h.HandleConsumeBackupCode))
	r.Mux.Handle("POST /v1/mfa/backup-codes", r.session(h.HandleRegenerateBackupCodes, httpx.ModerateLimit, service.ScopeSelf))
	r.Mux.Handle("DELETE /v1/mfa/totp", r.session(h.HandleDisable, httpx.ModerateLimit, service.ScopeSelf))
	r.Mux.Handle("GET /v1/mfa/status", r.session(h.HandleStatus, httpx.LenientLimit, service.ScopeSelf))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{MFAService: r.MFAService}

	r.Mux.Handle("GET /v1/admin/mfa/stats", r.session(h.HandleStats, httpx.ModerateLimit, service.ScopeAdmin))
	r.Mux.Handle("GET /v1/admin/mfa/users/{id}", r.session(h.HandleStatus, httpx.ModerateLimit, service.ScopeAdmin))
	r.Mux.Handle("POST /v1/admin/mfa/users/{id}/unlock", r.session(h.HandleUnlock, httpx.ModerateLimit, service.ScopeAdmin))
	r.Mux.Handle("DELETE /v1/admin/mfa/users/{id}", r.session(h.HandleDisable, httpx.ModerateLimit, service.ScopeAdmin))
}

func (r *Router) registerBootstrap() {
	h := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	if r.KeySet != nil {
		r.Mux.Handle("GET /.well-known/jwks.json",
			httpx.Chain(JWKSHandler(r.KeySet),
				httpx.RateLimitByIP(httpx.LenientLimit),
			),
		)
	}
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.Database, r.Pending, r.Identity, r.Keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
