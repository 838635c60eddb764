package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fintrack/apiserver/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRepository handles persistence for transactions. Every read
// and mutation filters on both the transaction id and the owning user id
// in a single statement, so ownership is never checked separately from use.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// ListByUser returns the owner's transactions, newest-created first.
// The id tiebreak keeps the order stable for equal timestamps.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID int) ([]types.Transaction, error) {
	const query = `
		SELECT id, user_id, title, amount, type, category, receipt_key, created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]types.Transaction, 0)
	for rows.Next() {
		var tx types.Transaction
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Title,
			&tx.Amount,
			&tx.Type,
			&tx.Category,
			&tx.ReceiptKey,
			&tx.CreatedAt,
			&tx.UpdatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

// GetByUser returns a single transaction, scoped to its owner.
func (r *TransactionRepository) GetByUser(ctx context.Context, userID int, id string) (types.Transaction, error) {
	const query = `
		SELECT id, user_id, title, amount, type, category, receipt_key, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND user_id = $2`
	var tx types.Transaction
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Title,
		&tx.Amount,
		&tx.Type,
		&tx.Category,
		&tx.ReceiptKey,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Transaction{}, ErrNotFound
		}
		return types.Transaction{}, err
	}
	return tx, nil
}

func (r *TransactionRepository) Create(ctx context.Context, tx types.Transaction) (types.Transaction, error) {
	now := time.Now()
	tx.ID = uuid.New().String()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	const query = `
		INSERT INTO transactions (id, user_id, title, amount, type, category, receipt_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		tx.ID,
		tx.UserID,
		tx.Title,
		tx.Amount,
		tx.Type,
		tx.Category,
		tx.ReceiptKey,
		tx.CreatedAt,
		tx.UpdatedAt,
	); err != nil {
		return types.Transaction{}, err
	}
	return tx, nil
}

// Update applies the non-nil patch fields to the owner's transaction and
// returns the updated record. Absent and not-owned are both ErrNotFound.
func (r *TransactionRepository) Update(ctx context.Context, userID int, id string, patch types.TransactionPatch) (types.Transaction, error) {
	amount := decimal.NullDecimal{}
	if patch.Amount != nil {
		amount = decimal.NullDecimal{Decimal: *patch.Amount, Valid: true}
	}

	const query = `
		UPDATE transactions
		SET title = COALESCE($1, title),
			amount = COALESCE($2, amount),
			type = COALESCE($3, type),
			category = COALESCE($4, category),
			updated_at = $5
		WHERE id = $6 AND user_id = $7
		RETURNING id, user_id, title, amount, type, category, receipt_key, created_at, updated_at`
	var tx types.Transaction
	err := r.db.QueryRowContext(
		ctx,
		query,
		patch.Title,
		amount,
		patch.Type,
		patch.Category,
		time.Now(),
		id,
		userID,
	).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Title,
		&tx.Amount,
		&tx.Type,
		&tx.Category,
		&tx.ReceiptKey,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Transaction{}, ErrNotFound
		}
		return types.Transaction{}, err
	}
	return tx, nil
}

func (r *TransactionRepository) Delete(ctx context.Context, userID int, id string) error {
	const query = `DELETE FROM transactions WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReceiptKey records the object storage key of an uploaded receipt.
func (r *TransactionRepository) SetReceiptKey(ctx context.Context, userID int, id, key string) error {
	const query = `
		UPDATE transactions
		SET receipt_key = $1,
			updated_at = $2
		WHERE id = $3 AND user_id = $4`
	result, err := r.db.ExecContext(ctx, query, key, time.Now(), id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
