package api

import (
	"net/http"

	"github.com/example/car-rental-events/internal/api/middleware"
	"github.com/example/car-rental-events/internal/auth"
	"github.com/example/car-rental-events/internal/domain/user"
)

// NewRouter wires every endpoint behind the request logger. Route
// patterns carry their method, so a wrong method gets 405 from the mux.
func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, adminHandlers *AdminHandlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	authenticated := middleware.AuthMiddleware(jwtService)
	optional := middleware.OptionalAuthMiddleware(jwtService)
	withRole := func(h http.HandlerFunc, roles ...string) http.Handler {
		return authenticated(middleware.RequireRole(roles...)(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return withRole(h, middleware.AdminRole)
	}

	mux.HandleFunc("GET /health", Health)

	// Auth
	mux.HandleFunc("POST /api/auth/register", authHandlers.Register)
	mux.HandleFunc("POST /api/auth/login", authHandlers.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandlers.Logout)
	mux.HandleFunc("POST /api/auth/refresh", authHandlers.Refresh)
	mux.Handle("GET /api/auth/me", authenticated(http.HandlerFunc(authHandlers.Me)))
	mux.Handle("POST /api/auth/change-password", authenticated(http.HandlerFunc(authHandlers.ChangePassword)))

	// Queries
	mux.HandleFunc("GET /api/queries/cars", handlers.ListCars)
	mux.HandleFunc("GET /api/queries/cars/{id}", handlers.GetCar)
	mux.Handle("POST /api/queries/cars/search", optional(http.HandlerFunc(handlers.SearchCars)))
	mux.HandleFunc("GET /api/queries/available-cars", handlers.AvailableCars)
	mux.HandleFunc("GET /api/queries/stats/cars-by-type", handlers.CarsByType)
	mux.HandleFunc("GET /api/queries/stats/cars-by-location", handlers.CarsByLocation)
	mux.HandleFunc("GET /api/queries/stats/price-ranges", handlers.PriceRanges)
	mux.HandleFunc("GET /api/queries/stats/search-analytics", handlers.SearchAnalytics)

	// Car commands
	mux.Handle("POST /api/commands/cars", withRole(handlers.CreateCar, user.RoleManager))
	mux.Handle("PUT /api/commands/cars/{id}", withRole(handlers.UpdateCar, user.RoleManager))
	mux.Handle("DELETE /api/commands/cars/{id}", admin(handlers.DeleteCar))

	// Bookings
	mux.Handle("POST /api/commands/bookings", authenticated(http.HandlerFunc(handlers.CreateBooking)))
	mux.Handle("POST /api/commands/bookings/{id}/cancel", authenticated(http.HandlerFunc(handlers.CancelBooking)))
	mux.Handle("POST /api/commands/bookings/{id}/confirm", withRole(handlers.ConfirmBooking, user.RoleManager, user.RoleEmployee))
	mux.Handle("GET /api/bookings", authenticated(http.HandlerFunc(handlers.ListBookings)))
	mux.Handle("GET /api/bookings/{id}", authenticated(http.HandlerFunc(handlers.GetBooking)))

	// Administration
	mux.Handle("GET /api/admin/users", admin(adminHandlers.ListUsers))
	mux.Handle("PUT /api/admin/users/{id}", admin(adminHandlers.UpdateUser))
	mux.Handle("POST /api/admin/users/{id}/lock", admin(adminHandlers.LockUser))
	mux.Handle("DELETE /api/admin/users/{id}", admin(adminHandlers.DeleteUser))
	mux.Handle("GET /api/admin/stats", admin(adminHandlers.Stats))
	mux.Handle("GET /api/events/{aggregateID}", admin(handlers.EventHistory))

	return middleware.RequestLogger(mux)
}
