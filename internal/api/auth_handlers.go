package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/example/car-rental-events/internal/api/middleware"
	"github.com/example/car-rental-events/internal/auth"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	collectionSessions = "sessions"

	refreshTokenCookie = "refresh_token"
	sessionCookie      = "session_id"
)

// hashToken creates a SHA-256 hash of the token for secure storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// session ties a refresh token to the client that received it
type session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	IPAddress        string
	UserAgent        string
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users      *user.Service
	jwtService *auth.JWTService
	sessions   store.ReadStoreInterface
}

func NewAuthHandlers(users *user.Service, jwtService *auth.JWTService, sessions store.ReadStoreInterface) *AuthHandlers {
	return &AuthHandlers{
		users:      users,
		jwtService: jwtService,
		sessions:   sessions,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register, login and refresh
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Message     string       `json:"message,omitempty"`
}

// UserResponse is the public view of an account
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FullName    string     `json:"full_name"`
	Phone       string     `json:"phone,omitempty"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

func newUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		FullName:    u.FullName(),
		Phone:       u.Phone,
		Role:        u.Role,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
		LastLogin:   u.LastLogin,
		LockedUntil: u.LockedUntil,
	}
}

// Register creates a customer account and signs it in. The role field of
// the request is ignored; only administrators assign roles.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var reg user.Registration
	if err := decodeJSON(r, &reg); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	reg.Role = user.RoleCustomer

	newUser, err := h.users.Register(r.Context(), reg, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.signIn(w, r, newUser, http.StatusCreated, "Registration successful")
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password, user.LoginMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.signIn(w, r, u, http.StatusOK, "Login successful")
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		h.sessions.Delete(collectionSessions, cookie.Value)
	}
	h.clearAuthCookies(w)
	respondMessage(w, http.StatusOK, "Logout successful")
}

// Refresh exchanges a refresh token for a new session. The old session
// is removed so each refresh token works once.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		respondJSONError(w, "No refresh token", http.StatusUnauthorized)
		return
	}
	sessionID, err := r.Cookie(sessionCookie)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "No session", http.StatusUnauthorized)
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(refresh.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	// each session can be refreshed once; a concurrent refresh with the
	// same cookies finds nothing to take
	data, ok := h.sessions.Take(collectionSessions, sessionID.Value)
	if !ok {
		h.clearAuthCookies(w)
		respondJSONError(w, "Session not found", http.StatusUnauthorized)
		return
	}
	s := data.(*session)

	if time.Now().After(s.ExpiresAt) || s.UserID != userID || hashToken(refresh.Value) != s.RefreshTokenHash {
		h.clearAuthCookies(w)
		respondJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.clearAuthCookies(w)
		writeError(w, r, err)
		return
	}
	if !u.CanLogin(time.Now()) {
		h.clearAuthCookies(w)
		respondJSONError(w, user.ErrAccountInactive.Error(), http.StatusForbidden)
		return
	}

	h.signIn(w, r, u, http.StatusOK, "Token refreshed")
}

// Me returns the caller's account, re-read from the event log so a lock
// or deletion takes effect before the token expires.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !u.CanLogin(time.Now()) {
		respondJSONError(w, user.ErrAccountInactive.Error(), http.StatusForbidden)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(u))
}

func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := middleware.GetUserID(r.Context())
	err := h.users.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, userID)
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		respondJSONError(w, "Current password is incorrect", http.StatusBadRequest)
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Password changed successfully")
}

// signIn issues tokens for u, stores a session and sets the auth cookies.
// The access token is also returned in the body for API clients.
func (h *AuthHandlers) signIn(w http.ResponseWriter, r *http.Request, u *user.User, status int, message string) {
	accessToken, accessExpiry, err := h.jwtService.GenerateAccessToken(auth.Identity{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		Name:   u.FullName(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	refreshToken, refreshExpiry, err := h.jwtService.GenerateRefreshToken(u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sessionID := uuid.New().String()
	h.sessions.Set(collectionSessions, sessionID, &session{
		ID:               sessionID,
		UserID:           u.ID,
		RefreshTokenHash: hashToken(refreshToken),
		ExpiresAt:        refreshExpiry,
		CreatedAt:        time.Now(),
		IPAddress:        r.RemoteAddr,
		UserAgent:        r.UserAgent(),
	})
	log.Debug().Str("component", "auth").Str("user_id", u.ID).Str("session_id", sessionID).Msg("session started")

	secure := r.TLS != nil
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/api/auth/refresh",
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})

	respondJSON(w, status, AuthResponse{
		User:        newUserResponse(u),
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   accessExpiry,
		Message:     message,
	})
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	for name, path := range map[string]string{
		middleware.AccessTokenCookie: "/",
		refreshTokenCookie:           "/api/auth/refresh",
		sessionCookie:                "/",
	} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: path, MaxAge: -1, HttpOnly: true})
	}
}
