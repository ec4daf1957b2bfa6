package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/car-rental-events/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-32-bytes!"

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour)
}

func issue(t *testing.T, svc *auth.JWTService, id, role string) string {
	t.Helper()
	token, _, err := svc.GenerateAccessToken(auth.Identity{UserID: id, Email: id + "@example.com", Role: role, Name: "Test User"})
	require.NoError(t, err)
	return token
}

// captureClaims is a terminal handler that remembers the claims it saw
func captureClaims(out **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := GetUserFromContext(r.Context()); ok {
			*out = claims
		}
		w.WriteHeader(http.StatusOK)
	})
}

// ============================================
// AuthMiddleware
// ============================================

func TestAuthMiddleware_BearerHeader(t *testing.T) {
	jwtService := newTestJWTService()
	var claims *auth.Claims

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, jwtService, "user-123", "customer"))
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "customer", claims.Role)
	assert.Equal(t, "Test User", claims.Name)
}

func TestAuthMiddleware_Cookie(t *testing.T) {
	jwtService := newTestJWTService()
	var claims *auth.Claims

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: issue(t, jwtService, "user-456", "manager")})
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "user-456", claims.UserID)
}

func TestAuthMiddleware_HeaderTakesPrecedence(t *testing.T) {
	jwtService := newTestJWTService()
	var claims *auth.Claims

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, jwtService, "from-header", "customer"))
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: issue(t, jwtService, "from-cookie", "customer")})
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

	require.NotNil(t, claims)
	assert.Equal(t, "from-header", claims.UserID)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	jwtService := newTestJWTService()
	expired := auth.NewJWTService(testSecret, -time.Minute, time.Hour)
	other := auth.NewJWTService(strings.Repeat("x", 32), 15*time.Minute, time.Hour)

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + issue(t, expired, "user-1", "customer")},
		{"wrong signature", "Bearer " + issue(t, other, "user-1", "customer")},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(jwtService)(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

// ============================================
// OptionalAuthMiddleware
// ============================================

func TestOptionalAuthMiddleware(t *testing.T) {
	jwtService := newTestJWTService()

	t.Run("valid token adds claims", func(t *testing.T) {
		var claims *auth.Claims
		req := httptest.NewRequest(http.MethodPost, "/api/queries/cars/search", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, jwtService, "user-1", "customer"))
		rec := httptest.NewRecorder()

		OptionalAuthMiddleware(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, claims)
	})

	t.Run("invalid token is anonymous", func(t *testing.T) {
		var claims *auth.Claims
		req := httptest.NewRequest(http.MethodPost, "/api/queries/cars/search", nil)
		req.Header.Set("Authorization", "Bearer broken")
		rec := httptest.NewRecorder()

		OptionalAuthMiddleware(jwtService)(captureClaims(&claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, claims)
	})
}

// ============================================
// RequireRole
// ============================================

func withClaims(r *http.Request, claims *auth.Claims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), UserContextKey, claims))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		roles  []string
		want   int
	}{
		{"matching role", &auth.Claims{Role: "manager"}, []string{"admin", "manager"}, http.StatusOK},
		{"admin always passes", &auth.Claims{Role: "admin"}, []string{"manager"}, http.StatusOK},
		{"wrong role", &auth.Claims{Role: "customer"}, []string{"manager"}, http.StatusForbidden},
		{"no claims", nil, []string{"manager"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/commands/cars/car-1", nil)
			if tt.claims != nil {
				req = withClaims(req, tt.claims)
			}
			rec := httptest.NewRecorder()

			RequireRole(tt.roles...)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHasRole(t *testing.T) {
	assert.False(t, HasRole(nil, "admin"))
	assert.True(t, HasRole(&auth.Claims{Role: "employee"}, "manager", "employee"))
	assert.True(t, HasRole(&auth.Claims{Role: "admin"}))
	assert.False(t, HasRole(&auth.Claims{Role: "customer"}))
}

// ============================================
// Context helpers
// ============================================

func TestGetUserID(t *testing.T) {
	assert.Empty(t, GetUserID(context.Background()))

	ctx := context.WithValue(context.Background(), UserContextKey, &auth.Claims{UserID: "user-9"})
	assert.Equal(t, "user-9", GetUserID(ctx))
}

func TestRequestLogger_RecoversPanics(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
