package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/infrastructure/store"
)

const (
	MaxFailedLoginAttempts = 5
	LockoutDuration        = 30 * time.Minute
)

// User is the current state of an account, rebuilt from its events
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Phone               string     `json:"phone"`
	PasswordHash        string     `json:"password_hash"`
	Role                string     `json:"role"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	Deleted             bool       `json:"deleted"`
	Version             int        `json:"version"`
}

// New returns the zero state of a user
func New(id string) *User {
	return &User{ID: id, Role: RoleCustomer, Status: StatusActive}
}

func (u *User) GetID() string                  { return u.ID }
func (u *User) GetVersion() int                { return u.Version }
func (u *User) SetVersion(v int)               { u.Version = v }
func (u *User) ApplyEvent(e store.Event) error { return Apply(u, e) }

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsLocked reports whether a lock is still in force at now
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// CanLogin is recomputed on every attempt; an expired lock no longer blocks
func (u *User) CanLogin(now time.Time) bool {
	return !u.Deleted && u.Status == StatusActive && !u.IsLocked(now)
}

// Apply folds one event into the user state. Once deleted, a user
// ignores every later event.
func Apply(u *User, event store.Event) error {
	if u.Deleted {
		return nil
	}

	switch event.EventType {
	case EventUserRegistered:
		var data UserRegistered
		if err := event.Decode(&data); err != nil {
			return err
		}
		u.Email = strings.ToLower(data.Email)
		u.FirstName = data.FirstName
		u.LastName = data.LastName
		u.Phone = data.Phone
		u.PasswordHash = data.PasswordHash
		u.Role = data.Role
		if u.Role == "" {
			u.Role = RoleCustomer
		}
		u.Status = StatusActive
		u.CreatedAt = event.Timestamp
		u.UpdatedAt = event.Timestamp

	case EventUserLogin:
		var data UserLogin
		if err := event.Decode(&data); err != nil {
			return err
		}
		at := data.LoginTime
		if at.IsZero() {
			at = event.Timestamp
		}
		if data.Success {
			u.LastLogin = &at
			u.FailedLoginAttempts = 0
			u.LockedUntil = nil
		} else {
			u.FailedLoginAttempts++
			if u.FailedLoginAttempts >= MaxFailedLoginAttempts {
				until := at.Add(LockoutDuration)
				u.LockedUntil = &until
			}
		}

	case EventUserUpdated:
		var data UserUpdated
		if err := event.Decode(&data); err != nil {
			return err
		}
		if data.FirstName != nil {
			u.FirstName = *data.FirstName
		}
		if data.LastName != nil {
			u.LastName = *data.LastName
		}
		if data.Phone != nil {
			u.Phone = *data.Phone
		}
		if data.Role != nil {
			u.Role = *data.Role
		}
		if data.Status != nil {
			u.Status = *data.Status
		}
		u.UpdatedAt = event.Timestamp

	case EventUserPasswordChanged:
		var data UserPasswordChanged
		if err := event.Decode(&data); err != nil {
			return err
		}
		u.PasswordHash = data.NewPasswordHash
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.UpdatedAt = event.Timestamp

	case EventUserLocked:
		var data UserLocked
		if err := event.Decode(&data); err != nil {
			return err
		}
		u.Status = StatusSuspended
		u.LockedUntil = data.LockedUntil
		u.UpdatedAt = event.Timestamp

	case EventUserDeleted:
		u.Deleted = true
		u.Status = StatusInactive
		u.UpdatedAt = event.Timestamp

	default:
		return fmt.Errorf("%w %q for user %s", aggregate.ErrUnknownEvent, event.EventType, event.AggregateID)
	}
	return nil
}

// Project folds an aggregate's events into a user. The boolean is false
// when there were no events at all.
func Project(id string, events []store.Event) (*User, bool) {
	u := New(id)
	aggregate.Replay(u, events)
	return u, len(events) > 0
}
