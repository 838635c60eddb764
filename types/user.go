package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents an account in the system.
// It contains identity, credential, and audit metadata.
type User struct {
	// ID is the unique identifier of the account. It is assigned at
	// registration and never changes afterwards.
	ID int `json:"id" db:"id"`

	// Name is the account's display name.
	Name string `json:"name" db:"name"`

	// Email is the account's email address. It is unique across all
	// accounts and doubles as the login identifier.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the account's password.
	// The plaintext is never persisted or logged, and this field is
	// never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// MonthlyBudget is the optional spending limit the account set for a
	// calendar month. When unset, no budget condition is evaluated.
	MonthlyBudget decimal.NullDecimal `json:"monthly_budget" db:"monthly_budget"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
