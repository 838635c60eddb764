package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fintrack/apiserver/internal/storage"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
)

// EventChannel is the broker channel transaction events are published to.
const EventChannel = "transaction-events"

// Transaction event names.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
)

// TransactionRepository defines persistence operations for transactions.
// Every operation is scoped to the owning user id.
type TransactionRepository interface {
	ListByUser(ctx context.Context, userID int) ([]types.Transaction, error)
	GetByUser(ctx context.Context, userID int, id string) (types.Transaction, error)
	Create(ctx context.Context, tx types.Transaction) (types.Transaction, error)
	Update(ctx context.Context, userID int, id string, patch types.TransactionPatch) (types.Transaction, error)
	Delete(ctx context.Context, userID int, id string) error
	SetReceiptKey(ctx context.Context, userID int, id, key string) error
}

// EventPublisher publishes transaction events to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// TransactionService encapsulates transaction use-cases. The event
// publisher and receipt storage are optional; when nil, the corresponding
// features are disabled and the core CRUD semantics are unaffected.
type TransactionService struct {
	repo     TransactionRepository
	events   EventPublisher
	receipts *storage.Storage
}

func NewTransactionService(repo TransactionRepository, events EventPublisher, receipts *storage.Storage) *TransactionService {
	return &TransactionService{
		repo:     repo,
		events:   events,
		receipts: receipts,
	}
}

// List returns the owner's transactions, newest-created first.
func (s *TransactionService) List(ctx context.Context, ownerID int) ([]types.Transaction, error) {
	return s.repo.ListByUser(ctx, ownerID)
}

// Get returns a single owned transaction.
func (s *TransactionService) Get(ctx context.Context, ownerID int, id string) (types.Transaction, error) {
	return s.repo.GetByUser(ctx, ownerID, id)
}

// Create validates and persists a new transaction owned by ownerID.
func (s *TransactionService) Create(ctx context.Context, ownerID int, input types.Transaction) (types.Transaction, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)

	if input.Title == "" {
		return types.Transaction{}, &ValidationError{Field: "title", Message: "title is required"}
	}
	if input.Amount.IsNegative() {
		return types.Transaction{}, &ValidationError{Field: "amount", Message: "amount must be a non-negative number"}
	}
	if input.Type != types.TypeIncome && input.Type != types.TypeExpense {
		return types.Transaction{}, &ValidationError{Field: "type", Message: "type must be income or expense"}
	}

	input.UserID = ownerID
	input.ReceiptKey = ""

	created, err := s.repo.Create(ctx, input)
	if err != nil {
		return types.Transaction{}, err
	}

	s.publishEvent(ctx, EventTransactionCreated, created.ID, ownerID)
	return created, nil
}

// Update applies a partial patch to an owned transaction. Supplied fields
// follow the Create validation rules; nil fields are left unchanged.
func (s *TransactionService) Update(ctx context.Context, ownerID int, id string, patch types.TransactionPatch) (types.Transaction, error) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			return types.Transaction{}, &ValidationError{Field: "title", Message: "title is required"}
		}
		patch.Title = &trimmed
	}
	if patch.Amount != nil && patch.Amount.IsNegative() {
		return types.Transaction{}, &ValidationError{Field: "amount", Message: "amount must be a non-negative number"}
	}
	if patch.Type != nil && *patch.Type != types.TypeIncome && *patch.Type != types.TypeExpense {
		return types.Transaction{}, &ValidationError{Field: "type", Message: "type must be income or expense"}
	}

	updated, err := s.repo.Update(ctx, ownerID, id, patch)
	if err != nil {
		return types.Transaction{}, err
	}

	s.publishEvent(ctx, EventTransactionUpdated, updated.ID, ownerID)
	return updated, nil
}

// Delete permanently removes an owned transaction.
func (s *TransactionService) Delete(ctx context.Context, ownerID int, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	s.publishEvent(ctx, EventTransactionDeleted, id, ownerID)
	return nil
}

// ReceiptsEnabled reports whether receipt storage is configured.
func (s *TransactionService) ReceiptsEnabled() bool {
	return s.receipts != nil
}

// AttachReceipt uploads a receipt for an owned transaction and records
// its object key. The ownership check rides on the scoped lookup.
func (s *TransactionService) AttachReceipt(ctx context.Context, ownerID int, id, filename, contentType string, data []byte) (types.Transaction, error) {
	tx, err := s.repo.GetByUser(ctx, ownerID, id)
	if err != nil {
		return types.Transaction{}, err
	}

	key := fmt.Sprintf("receipts/%s/%s", tx.ID, filename)
	if err := s.receipts.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return types.Transaction{}, err
	}

	if err := s.repo.SetReceiptKey(ctx, ownerID, id, key); err != nil {
		return types.Transaction{}, err
	}

	return s.repo.GetByUser(ctx, ownerID, id)
}

// OpenReceipt streams a previously uploaded receipt for an owned
// transaction. A transaction without a receipt reads as not found.
func (s *TransactionService) OpenReceipt(ctx context.Context, ownerID int, id string) (io.ReadCloser, error) {
	tx, err := s.repo.GetByUser(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if tx.ReceiptKey == "" {
		return nil, store.ErrNotFound
	}
	return s.receipts.Get(ctx, tx.ReceiptKey)
}

type transactionEvent struct {
	Event         string    `json:"event"`
	TransactionID string    `json:"transaction_id"`
	UserID        int       `json:"user_id"`
	At            time.Time `json:"at"`
}

// publishEvent emits a transaction event when a broker is configured.
// Publishing is best-effort and never fails the API call.
func (s *TransactionService) publishEvent(ctx context.Context, event, transactionID string, userID int) {
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(transactionEvent{
		Event:         event,
		TransactionID: transactionID,
		UserID:        userID,
		At:            time.Now(),
	})
	if err != nil {
		return
	}

	if _, err := s.events.Publish(ctx, EventChannel, payload, map[string]string{"event": event}); err != nil {
		slog.Warn("failed to publish transaction event", "event", event, "err", err)
	}
}
