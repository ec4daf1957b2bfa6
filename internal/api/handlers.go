package api

import (
	"context"
	"net/http"
	"time"

	"github.com/example/car-rental-events/internal/api/middleware"
	"github.com/example/car-rental-events/internal/domain/booking"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/example/car-rental-events/internal/query"
)

const anonymousAuthor = "anonymous"

// Handlers serves the car, booking and reporting endpoints. Commands go
// through the car repository and booking service; reports are read from
// the query handler.
type Handlers struct {
	cars       car.Repository
	bookings   *booking.Service
	queries    *query.Handler
	eventStore store.EventStoreInterface
}

func NewHandlers(cars car.Repository, bookings *booking.Service, queries *query.Handler, eventStore store.EventStoreInterface) *Handlers {
	return &Handlers{
		cars:       cars,
		bookings:   bookings,
		queries:    queries,
		eventStore: eventStore,
	}
}

// Car queries

func (h *Handlers) ListCars(w http.ResponseWriter, r *http.Request) {
	cars, err := h.cars.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cars": cars, "total": len(cars)})
}

func (h *Handlers) GetCar(w http.ResponseWriter, r *http.Request) {
	c, err := h.cars.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) SearchCars(w http.ResponseWriter, r *http.Request) {
	var q search.Query
	if err := decodeJSON(r, &q); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	author := middleware.GetUserID(r.Context())
	if author == "" {
		author = anonymousAuthor
	}
	cars, err := h.cars.Search(r.Context(), q, author)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cars": cars, "total": len(cars), "query": q})
}

func (h *Handlers) AvailableCars(w http.ResponseWriter, r *http.Request) {
	cars, err := h.queries.AvailableCars(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cars": cars, "total": len(cars)})
}

// Reports

func (h *Handlers) CarsByType(w http.ResponseWriter, r *http.Request) {
	h.breakdown(w, r, h.queries.CarsByType)
}

func (h *Handlers) CarsByLocation(w http.ResponseWriter, r *http.Request) {
	h.breakdown(w, r, h.queries.CarsByLocation)
}

func (h *Handlers) PriceRanges(w http.ResponseWriter, r *http.Request) {
	h.breakdown(w, r, h.queries.PriceRanges)
}

func (h *Handlers) breakdown(w http.ResponseWriter, r *http.Request, fn func(context.Context) (query.Breakdown, error)) {
	b, err := fn(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (h *Handlers) SearchAnalytics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queries.SearchAnalytics())
}

// Car commands

func (h *Handlers) CreateCar(w http.ResponseWriter, r *http.Request) {
	var in car.CarAdded
	if err := decodeJSON(r, &in); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.cars.Create(r.Context(), in, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id, "message": "Car created"})
}

func (h *Handlers) UpdateCar(w http.ResponseWriter, r *http.Request) {
	var in car.CarUpdated
	if err := decodeJSON(r, &in); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.cars.Update(r.Context(), r.PathValue("id"), in, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Car updated")
}

func (h *Handlers) DeleteCar(w http.ResponseWriter, r *http.Request) {
	if err := h.cars.Delete(r.Context(), r.PathValue("id"), middleware.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Car deleted")
}

// Bookings

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())

	var req booking.Request
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.CustomerID = claims.UserID
	if req.CustomerEmail == "" {
		req.CustomerEmail = claims.Email
	}
	if req.CustomerName == "" {
		req.CustomerName = claims.Name
	}

	b, err := h.bookings.Create(r.Context(), req, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// ListBookings returns every booking to staff and only their own to customers
func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())

	var (
		list []*booking.Booking
		err  error
	)
	if middleware.HasRole(claims, user.RoleManager, user.RoleEmployee) {
		list, err = h.bookings.List(r.Context())
	} else {
		list, err = h.bookings.ListForCustomer(r.Context(), claims.UserID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"bookings": list, "total": len(list)})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.bookings.Cancel(r.Context(), b.ID, body.Reason, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Booking cancelled")
}

func (h *Handlers) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.bookings.Confirm(r.Context(), r.PathValue("id"), middleware.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Booking confirmed")
}

// ownedBooking loads the path's booking and checks the caller may see it.
// Bookings of other customers read as not found.
func (h *Handlers) ownedBooking(w http.ResponseWriter, r *http.Request) (*booking.Booking, bool) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	b, err := h.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if b.CustomerID != claims.UserID && !middleware.HasRole(claims, user.RoleManager, user.RoleEmployee) {
		writeError(w, r, booking.ErrBookingNotFound)
		return nil, false
	}
	return b, true
}

// Event history

func (h *Handlers) EventHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("aggregateID")
	events, err := h.eventStore.GetEvents(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"aggregate_id": id, "events": events, "total": len(events)})
}

func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy", "time": time.Now().UTC()})
}
