package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/car-rental-events/internal/auth"
	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const AggregateType = "User"

var (
	ErrUserNotFound       = aggregate.NotFound("user")
	ErrEmailTaken         = aggregate.Invalid("email is already registered")
	ErrInvalidPhone       = aggregate.Invalid("phone must contain at least 9 digits")
	ErrNoFieldsToUpdate   = aggregate.Invalid("no fields to update")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not active")
)

const minPhoneDigits = 9

// Registration is the input for a new account
type Registration struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required,min=2"`
	LastName  string `json:"last_name" validate:"required,min=2"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=admin manager customer employee"`
}

// LoginMeta describes where a login attempt came from
type LoginMeta struct {
	IPAddress string
	UserAgent string
}

// Stats summarizes the registered accounts
type Stats struct {
	TotalUsers          int            `json:"total_users"`
	ActiveUsers         int            `json:"active_users"`
	UsersByRole         map[string]int `json:"users_by_role"`
	RecentRegistrations int            `json:"recent_registrations"`
}

// Service handles user domain operations
type Service struct {
	eventStore        store.EventStoreInterface
	snapshotThreshold int
	now               func() time.Time
}

// NewService creates a new user service
func NewService(es store.EventStoreInterface, snapshotThreshold int) *Service {
	return &Service{eventStore: es, snapshotThreshold: snapshotThreshold, now: time.Now}
}

// Register creates a new account. author defaults to the new user's id.
func (s *Service) Register(ctx context.Context, reg Registration, author string) (*User, error) {
	reg.Email = normalizeEmail(reg.Email)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	if err := aggregate.Validate(reg); err != nil {
		return nil, err
	}
	if reg.Phone != "" && !isValidPhone(reg.Phone) {
		return nil, ErrInvalidPhone
	}
	if err := auth.ValidatePasswordStrength(reg.Password); err != nil {
		return nil, aggregate.Invalid(err.Error())
	}
	if reg.Role == "" {
		reg.Role = RoleCustomer
	}

	if _, err := s.GetByEmail(ctx, reg.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	passwordHash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	userID := "user-" + uuid.New().String()
	if author == "" {
		author = userID
	}
	event, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:   userID,
		AggregateType: AggregateType,
		EventType:     EventUserRegistered,
		UserID:        author,
		Data: UserRegistered{
			Email:        reg.Email,
			FirstName:    reg.FirstName,
			LastName:     reg.LastName,
			Phone:        reg.Phone,
			PasswordHash: passwordHash,
			Role:         reg.Role,
		},
		ExpectedVersion: 0,
	})
	if err != nil {
		return nil, err
	}

	u, _ := Project(userID, []store.Event{*event})
	return u, nil
}

// Authenticate checks credentials and records the attempt. The login
// gate is recomputed from the projected state on every call.
func (s *Service) Authenticate(ctx context.Context, email, password string, meta LoginMeta) (*User, error) {
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !u.CanLogin(now) {
		reason, denial := "account inactive", ErrAccountInactive
		if u.IsLocked(now) {
			reason, denial = "account locked", ErrAccountLocked
		}
		if _, err := s.recordLogin(ctx, u, false, reason, meta, now); err != nil {
			return nil, err
		}
		return nil, denial
	}

	if !auth.CheckPassword(password, u.PasswordHash) {
		if _, err := s.recordLogin(ctx, u, false, "invalid password", meta, now); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	event, err := s.recordLogin(ctx, u, true, "", meta, now)
	if err != nil {
		return nil, err
	}
	aggregate.SnapshotAfterAppend(ctx, s.eventStore, u, event, AggregateType, s.snapshotThreshold)
	if event.Version != u.Version {
		// a concurrent event landed first; apply ours directly
		aggregate.Replay(u, []store.Event{*event})
	}
	return u, nil
}

func (s *Service) recordLogin(ctx context.Context, u *User, success bool, reason string, meta LoginMeta, at time.Time) (*store.Event, error) {
	author := u.ID
	if !success {
		author = "anonymous"
	}
	event, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:   u.ID,
		AggregateType: AggregateType,
		EventType:     EventUserLogin,
		UserID:        author,
		Data: UserLogin{
			Success:   success,
			LoginTime: at,
			Reason:    reason,
			Email:     u.Email,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		},
		ExpectedVersion: store.AnyVersion,
	})
	if err != nil {
		log.Error().Err(err).Str("component", "user").Str("user_id", u.ID).Bool("success", success).
			Msg("failed to record login attempt")
		return nil, err
	}
	if !success {
		log.Warn().Str("component", "user").Str("user_id", u.ID).Str("reason", reason).Msg("login rejected")
	}
	return event, nil
}

// Get returns a user that exists and is not deleted
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, found, err := aggregate.LoadAggregate(ctx, s.eventStore, id, func() *User { return New(id) })
	if err != nil {
		return nil, err
	}
	if !found || u.Deleted {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// GetByEmail finds the live account registered with email
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}
	registrations, err := s.eventStore.GetEventsByType(ctx, EventUserRegistered)
	if err != nil {
		return nil, err
	}
	for _, e := range registrations {
		var data UserRegistered
		if err := e.Decode(&data); err != nil {
			log.Error().Err(err).Str("component", "user").Str("event_id", e.ID).
				Msg("skipping undecodable registration")
			continue
		}
		if normalizeEmail(data.Email) != email {
			continue
		}
		u, err := s.Get(ctx, e.AggregateID)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		return u, err
	}
	return nil, ErrUserNotFound
}

// EmailAvailable reports whether no live account uses email
func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return true, nil
	}
	return false, err
}

// ListActive returns every user that is not deleted, in registration order
func (s *Service) ListActive(ctx context.Context) ([]*User, error) {
	registrations, err := s.eventStore.GetEventsByType(ctx, EventUserRegistered)
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(registrations))
	for _, e := range registrations {
		u, err := s.Get(ctx, e.AggregateID)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// Update merges the provided profile fields
func (s *Service) Update(ctx context.Context, id string, in UserUpdated, author string) error {
	if in.IsEmpty() {
		return ErrNoFieldsToUpdate
	}
	if err := aggregate.Validate(in); err != nil {
		return err
	}
	if in.Phone != nil && *in.Phone != "" && !isValidPhone(*in.Phone) {
		return ErrInvalidPhone
	}
	return s.appendTo(ctx, id, EventUserUpdated, in, author)
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword, author string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(currentPassword, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return aggregate.Invalid(err.Error())
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.appendLoaded(ctx, u, EventUserPasswordChanged, UserPasswordChanged{
		NewPasswordHash: hash,
		ChangedAt:       s.now().UTC(),
	}, author)
}

// Lock suspends an account. A nil until suspends it indefinitely.
func (s *Service) Lock(ctx context.Context, id string, until *time.Time, reason, author string) error {
	return s.appendTo(ctx, id, EventUserLocked, UserLocked{LockedUntil: until, Reason: reason}, author)
}

// Delete tombstones an account. Its events are kept.
func (s *Service) Delete(ctx context.Context, id, author string) error {
	return s.appendTo(ctx, id, EventUserDeleted, UserDeleted{DeletedAt: s.now().UTC()}, author)
}

// Stats counts live accounts by status and role
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	weekAgo := s.now().Add(-7 * 24 * time.Hour)
	stats := &Stats{UsersByRole: make(map[string]int)}
	for _, u := range users {
		stats.TotalUsers++
		if u.Status == StatusActive {
			stats.ActiveUsers++
		}
		stats.UsersByRole[u.Role]++
		if u.CreatedAt.After(weekAgo) {
			stats.RecentRegistrations++
		}
	}
	return stats, nil
}

// EnsureAdmin registers an administrator when no live admin exists.
// It returns the new admin, or nil when one already existed.
func (s *Service) EnsureAdmin(ctx context.Context, reg Registration) (*User, error) {
	users, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Role == RoleAdmin {
			return nil, nil
		}
	}
	reg.Role = RoleAdmin
	return s.Register(ctx, reg, "system")
}

func (s *Service) appendTo(ctx context.Context, id, eventType string, data any, author string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.appendLoaded(ctx, u, eventType, data, author)
}

func (s *Service) appendLoaded(ctx context.Context, u *User, eventType string, data any, author string) error {
	event, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:     u.ID,
		AggregateType:   AggregateType,
		EventType:       eventType,
		UserID:          author,
		Data:            data,
		ExpectedVersion: u.Version,
	})
	if err != nil {
		return err
	}
	aggregate.SnapshotAfterAppend(ctx, s.eventStore, u, event, AggregateType, s.snapshotThreshold)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '-' || r == ' ' || r == '+' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= minPhoneDigits
}
