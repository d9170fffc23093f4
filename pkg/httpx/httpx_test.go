package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(ok), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestAuthnMiddleware(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "mfagate", NumKeys: 1})
	require.NoError(t, err)

	mint := func(purpose string, scopes ...string) string {
		tok, err := km.GetSigner().Sign(jwtx.NewClaims(jwtx.ClaimsParams{
			Subject: "user-1",
			Purpose: purpose,
			Scopes:  scopes,
			Issuer:  "mfagate",
			TTL:     time.Minute,
			Now:     time.Now(),
		}))
		require.NoError(t, err)
		return tok
	}

	var gotUser string
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = httpx.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), httpx.AuthnMiddleware(km.Verifier, jwtx.PurposeSession), httpx.RequireAnyScope("mfa:self"))

	do := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("missing token", func(t *testing.T) {
		rec := do("")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("wrong purpose", func(t *testing.T) {
		rec := do("Bearer " + mint(jwtx.PurposeStepUp, "mfa:self"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing scope", func(t *testing.T) {
		rec := do("Bearer " + mint(jwtx.PurposeSession))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
	})

	t.Run("valid session", func(t *testing.T) {
		rec := do("Bearer " + mint(jwtx.PurposeSession, "mfa:self"))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-1", gotUser)
	})
}

func TestIPKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", httpx.IPKeyExtractor(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	require.Equal(t, "10.0.0.2", httpx.IPKeyExtractor(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	require.Equal(t, "10.0.0.3", httpx.IPKeyExtractor(req))
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	body := `{"user_id":"alice","code":"123456"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	require.Equal(t, "alice", httpx.JSONFieldKeyExtractor("user_id")(req))

	// body is still readable by the handler
	var v struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
	}
	require.NoError(t, httpx.DecodeJSON(httptest.NewRecorder(), req, &v))
	require.Equal(t, "123456", v.Code)

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":42}`))
	require.Empty(t, httpx.JSONFieldKeyExtractor("user_id")(bad))
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Code string `json:"code"`
	}
	decode := func(body string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return httpx.DecodeJSON(httptest.NewRecorder(), req, &v)
	}

	require.NoError(t, decode(`{"code":"1"}`))
	require.Error(t, decode(``))
	require.Error(t, decode(`{"code":"1","extra":true}`))
	require.Error(t, decode(`{"code":"1"}{"code":"2"}`))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}

	t.Run("blocks after burst", func(t *testing.T) {
		h := httpx.Chain(http.HandlerFunc(ok), httpx.RateLimitByIP(cfg))

		codes := make([]int, 0, 3)
		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
			if rec.Code == http.StatusTooManyRequests {
				require.NotEmpty(t, rec.Header().Get("Retry-After"))
			}
		}
		require.Equal(t, []int{200, 200, 429}, codes)
	})

	t.Run("separate keys", func(t *testing.T) {
		h := httpx.Chain(http.HandlerFunc(ok), httpx.RateLimitByIPAndJSONField(cfg, "user_id"))
		for _, user := range []string{"a", "a", "b", "b"} {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"`+user+`"}`))
			req.RemoteAddr = "192.0.2.9:1234"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("empty key passes", func(t *testing.T) {
		h := httpx.Chain(http.HandlerFunc(ok), httpx.RateLimitMiddleware(cfg, func(*http.Request) string { return "" }))
		for range 5 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	t.Setenv("RATELIMIT_TEST_REQUESTS", "50")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "10")
	t.Setenv("RATELIMIT_TEST_BURST", "-1")

	got := httpx.ParseRateLimitFromEnv("TEST", def)
	require.Equal(t, 50, got.RequestsPerWindow)
	require.Equal(t, 10*time.Second, got.Window)
	require.Equal(t, 5, got.Burst)
}
