package user

import "time"

const (
	EventUserRegistered      = "user_registered"
	EventUserLogin           = "user_login"
	EventUserUpdated         = "user_updated"
	EventUserPasswordChanged = "user_password_changed"
	EventUserLocked          = "user_locked"
	EventUserDeleted         = "user_deleted"
)

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleCustomer = "customer"
	RoleEmployee = "employee"
)

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// UserRegistered is emitted when a new user is registered
type UserRegistered struct {
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
}

// UserLogin is emitted for every login attempt, successful or not
type UserLogin struct {
	Success   bool      `json:"success"`
	LoginTime time.Time `json:"login_time"`
	Reason    string    `json:"reason,omitempty"`
	Email     string    `json:"email"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// UserUpdated carries only the fields that changed
type UserUpdated struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,min=2"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,min=2"`
	Phone     *string `json:"phone,omitempty"`
	Role      *string `json:"role,omitempty" validate:"omitempty,oneof=admin manager customer employee"`
	Status    *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive suspended"`
}

// IsEmpty reports whether no field is set
func (u UserUpdated) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil && u.Role == nil && u.Status == nil
}

// UserPasswordChanged is emitted when a user's password is replaced
type UserPasswordChanged struct {
	NewPasswordHash string    `json:"new_password_hash"`
	ChangedAt       time.Time `json:"changed_at"`
}

// UserLocked is emitted when an administrator suspends an account.
// A nil LockedUntil suspends it until its status is changed back.
type UserLocked struct {
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// UserDeleted is emitted when an account is removed
type UserDeleted struct {
	DeletedAt time.Time `json:"deleted_at"`
}
