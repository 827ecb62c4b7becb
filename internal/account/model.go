package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue/internal/auth"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountNotFound    = errors.New("account not found")
)

// ValidationError reports a missing or malformed registration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         auth.Role
	Name         string
	CreatedAt    time.Time
}

// Identity is what gets signed into the account's credential.
func (a *Account) Identity() auth.Identity {
	return auth.Identity{
		AccountID: a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      a.Role,
	}
}

// Profile carries the role-specific fields stored next to the account.
// Patients use the demographic fields, doctors use Specialization.
type Profile struct {
	Specialization      string
	Age                 *int
	Gender              *string
	ContactInfo         *string
	DietaryRestrictions *string
	Allergies           *string
}

// NewAccount is the insert payload. A patient or doctor profile row is
// created in the same transaction for those roles.
type NewAccount struct {
	Email        string
	PasswordHash string
	Role         auth.Role
	Name         string
	Profile      Profile
}
