package query

import (
	"context"
	"sort"

	"github.com/example/car-rental-events/internal/domain/booking"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/example/car-rental-events/internal/projection"
)

// CarLister is the listing half of car.Repository
type CarLister interface {
	ListActive(ctx context.Context) ([]*car.Car, error)
}

// Handler answers reporting queries from the projected read store. It
// never touches the event log. Car figures come from cars when it is set,
// which is how a relational car backend feeds the reports.
type Handler struct {
	readStore store.ReadStoreInterface
	cars      CarLister
}

func NewHandler(readStore store.ReadStoreInterface, cars CarLister) *Handler {
	return &Handler{readStore: readStore, cars: cars}
}

// Bucket is one labelled count of a breakdown
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Breakdown is a set of buckets plus the total they were drawn from
type Breakdown struct {
	Data  []Bucket `json:"data"`
	Total int      `json:"total"`
}

// PriceRange upper bounds are exclusive; the last range is open.
var priceRanges = []struct {
	label string
	below float64
}{
	{"0-150", 150},
	{"150-250", 250},
	{"250-350", 350},
	{"350-450", 450},
}

const openPriceRange = "450+"

// ListCars returns every car that has not been deleted, ordered by id
func (h *Handler) ListCars(ctx context.Context) ([]*car.Car, error) {
	if h.cars != nil {
		return h.cars.ListActive(ctx)
	}
	items := h.readStore.GetAll(projection.CollectionCars)
	cars := make([]*car.Car, 0, len(items))
	for _, item := range items {
		if c := item.(*car.Car); !c.Deleted {
			cars = append(cars, c)
		}
	}
	return cars, nil
}

func (h *Handler) AvailableCars(ctx context.Context) ([]*car.Car, error) {
	cars, err := h.ListCars(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*car.Car, 0, len(cars))
	for _, c := range cars {
		if c.Available {
			out = append(out, c)
		}
	}
	return out, nil
}

func (h *Handler) CarsByType(ctx context.Context) (Breakdown, error) {
	cars, err := h.ListCars(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	return countBy(cars, func(c *car.Car) string { return c.CarType }), nil
}

func (h *Handler) CarsByLocation(ctx context.Context) (Breakdown, error) {
	cars, err := h.ListCars(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	return countBy(cars, func(c *car.Car) string { return c.Location }), nil
}

// PriceRanges buckets cars by daily rate. Every range is present even
// when empty, in ascending order.
func (h *Handler) PriceRanges(ctx context.Context) (Breakdown, error) {
	cars, err := h.ListCars(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	counts := make([]int, len(priceRanges)+1)
	for _, c := range cars {
		i := len(priceRanges)
		for j, r := range priceRanges {
			if c.DailyRate < r.below {
				i = j
				break
			}
		}
		counts[i]++
	}

	out := Breakdown{Data: make([]Bucket, 0, len(counts)), Total: len(cars)}
	for i, r := range priceRanges {
		out.Data = append(out.Data, Bucket{Label: r.label, Count: counts[i]})
	}
	out.Data = append(out.Data, Bucket{Label: openPriceRange, Count: counts[len(priceRanges)]})
	return out, nil
}

// Searches
func (h *Handler) SearchAnalytics() *search.Statistics {
	data, ok := h.readStore.Get(projection.CollectionStats, projection.StatsID)
	if !ok {
		return search.NewStatistics()
	}
	return data.(*search.Statistics)
}

// BookingsByStatus counts bookings per status
func (h *Handler) BookingsByStatus() Breakdown {
	items := h.readStore.GetAll(projection.CollectionBookings)
	bookings := make([]*booking.Booking, 0, len(items))
	for _, item := range items {
		bookings = append(bookings, item.(*booking.Booking))
	}
	return countBy(bookings, func(b *booking.Booking) string { return b.Status })
}

// Users
func (h *Handler) UsersByRole() Breakdown {
	items := h.readStore.GetAll(projection.CollectionUsers)
	users := make([]*user.User, 0, len(items))
	for _, item := range items {
		if u := item.(*user.User); !u.Deleted {
			users = append(users, u)
		}
	}
	return countBy(users, func(u *user.User) string { return u.Role })
}

// countBy groups items by key, largest bucket first and then by label
func countBy[T any](items []T, key func(T) string) Breakdown {
	counts := make(map[string]int)
	for _, item := range items {
		counts[key(item)]++
	}
	out := Breakdown{Data: make([]Bucket, 0, len(counts)), Total: len(items)}
	for label, n := range counts {
		out.Data = append(out.Data, Bucket{Label: label, Count: n})
	}
	sort.Slice(out.Data, func(i, j int) bool {
		if out.Data[i].Count != out.Data[j].Count {
			return out.Data[i].Count > out.Data[j].Count
		}
		return out.Data[i].Label < out.Data[j].Label
	})
	return out
}
