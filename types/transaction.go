package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Transaction represents a single income or expense record owned by
// exactly one account. Every read and mutation of a transaction is
// scoped to its owning account.
type Transaction struct {
	// ID is the unique identifier of the transaction, a UUID assigned
	// at creation.
	ID string `json:"id" db:"id"`

	// UserID is the identifier of the owning account. It is set from the
	// authenticated identity at creation and is immutable afterwards.
	UserID int `json:"user_id" db:"user_id"`

	// Title is a free-text label for the transaction.
	Title string `json:"title" db:"title"`

	// Amount is the non-negative monetary value of the transaction.
	Amount decimal.Decimal `json:"amount" db:"amount"`

	// Type is either TypeIncome or TypeExpense.
	Type string `json:"type" db:"type"`

	// Category is optional free-text classification.
	Category string `json:"category,omitempty" db:"category"`

	// ReceiptKey is the object storage key of an uploaded receipt, or
	// empty when no receipt is attached.
	ReceiptKey string `json:"receipt_key,omitempty" db:"receipt_key"`

	// CreatedAt is the timestamp assigned at creation. It drives the
	// newest-first list order and monthly aggregation.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TransactionPatch carries a partial update. Nil fields are left
// unchanged by the update.
type TransactionPatch struct {
	Title    *string          `json:"title"`
	Amount   *decimal.Decimal `json:"amount"`
	Type     *string          `json:"type"`
	Category *string          `json:"category"`
}
