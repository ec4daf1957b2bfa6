package api

import (
	"net/http"
	"time"

	"github.com/example/car-rental-events/internal/api/middleware"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/query"
)

// AdminHandlers serves the user administration endpoints
type AdminHandlers struct {
	users   *user.Service
	queries *query.Handler
}

func NewAdminHandlers(users *user.Service, queries *query.Handler) *AdminHandlers {
	return &AdminHandlers{users: users, queries: queries}
}

func (h *AdminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": out, "total": len(out)})
}

func (h *AdminHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in user.UserUpdated
	if err := decodeJSON(r, &in); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.users.Update(r.Context(), r.PathValue("id"), in, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "User updated")
}

// LockUser suspends an account. Without "until" the lock has no expiry.
func (h *AdminHandlers) LockUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Until  *time.Time `json:"until"`
		Reason string     `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.users.Lock(r.Context(), r.PathValue("id"), req.Until, req.Reason, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "User locked")
}

func (h *AdminHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == middleware.GetUserID(r.Context()) {
		respondJSONError(w, "administrators cannot delete their own account", http.StatusBadRequest)
		return
	}
	if err := h.users.Delete(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "User deleted")
}

func (h *AdminHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users":              stats,
		"bookings_by_status": h.queries.BookingsByStatus(),
	})
}
