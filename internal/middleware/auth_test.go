package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
)

func newJWT(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier("test-secret")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	return v
}

func TestRequireAuth(t *testing.T) {
	v := newJWT(t)
	good, err := v.Sign("traveler-1", "traveler", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, _ := v.Sign("traveler-1", "traveler", -time.Minute)
	other, _ := (&JWTVerifier{secret: []byte("other")}).Sign("traveler-1", "traveler", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "role": "scheduler"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + other, http.StatusUnauthorized},
		{"alg none", "Bearer " + none, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			h := NewAuthMiddleware(v).RequireAuth(func(c echo.Context) error {
				if c.Get(ContextUID) != "traveler-1" || c.Get(ContextRole) != "traveler" {
					t.Fatalf("uid=%v role=%v", c.Get(ContextUID), c.Get(ContextRole))
				}
				if reqctx.ActorUID(c.Request().Context()) != "traveler-1" {
					t.Fatalf("actor not in request context")
				}
				return c.NoContent(http.StatusOK)
			})
			if err := h(c); err != nil {
				t.Fatalf("handler err=%v", err)
			}
			if rec.Code != tt.want {
				t.Fatalf("code=%d want %d body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{"scheduler", http.StatusNoContent},
		{"shopper", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run("role="+tt.role, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
			c.Set(ContextRole, tt.role)
			h := RequireRole("scheduler")(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
			if err := h(c); err != nil {
				t.Fatalf("err=%v", err)
			}
			if rec.Code != tt.want {
				t.Fatalf("code=%d want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
