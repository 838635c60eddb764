package services

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeTransactionRepo is an in-memory TransactionRepository that enforces
// the same owner scoping and ordering as the postgres implementation.
type fakeTransactionRepo struct {
	transactions map[string]types.Transaction
	seq          int
	base         time.Time
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{
		transactions: make(map[string]types.Transaction),
		base:         time.Now(),
	}
}

// nextTime returns strictly increasing timestamps so the newest-first
// order is deterministic in fast-running tests.
func (r *fakeTransactionRepo) nextTime() time.Time {
	r.seq++
	return r.base.Add(time.Duration(r.seq) * time.Millisecond)
}

func (r *fakeTransactionRepo) ListByUser(ctx context.Context, userID int) ([]types.Transaction, error) {
	owned := make([]types.Transaction, 0)
	for _, tx := range r.transactions {
		if tx.UserID == userID {
			owned = append(owned, tx)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})
	return owned, nil
}

func (r *fakeTransactionRepo) GetByUser(ctx context.Context, userID int, id string) (types.Transaction, error) {
	tx, ok := r.transactions[id]
	if !ok || tx.UserID != userID {
		return types.Transaction{}, store.ErrNotFound
	}
	return tx, nil
}

func (r *fakeTransactionRepo) Create(ctx context.Context, tx types.Transaction) (types.Transaction, error) {
	now := r.nextTime()
	tx.ID = uuid.New().String()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.transactions[tx.ID] = tx
	return tx, nil
}

func (r *fakeTransactionRepo) Update(ctx context.Context, userID int, id string, patch types.TransactionPatch) (types.Transaction, error) {
	tx, ok := r.transactions[id]
	if !ok || tx.UserID != userID {
		return types.Transaction{}, store.ErrNotFound
	}
	if patch.Title != nil {
		tx.Title = *patch.Title
	}
	if patch.Amount != nil {
		tx.Amount = *patch.Amount
	}
	if patch.Type != nil {
		tx.Type = *patch.Type
	}
	if patch.Category != nil {
		tx.Category = *patch.Category
	}
	tx.UpdatedAt = r.nextTime()
	r.transactions[id] = tx
	return tx, nil
}

func (r *fakeTransactionRepo) Delete(ctx context.Context, userID int, id string) error {
	tx, ok := r.transactions[id]
	if !ok || tx.UserID != userID {
		return store.ErrNotFound
	}
	delete(r.transactions, id)
	return nil
}

func (r *fakeTransactionRepo) SetReceiptKey(ctx context.Context, userID int, id, key string) error {
	tx, ok := r.transactions[id]
	if !ok || tx.UserID != userID {
		return store.ErrNotFound
	}
	tx.ReceiptKey = key
	tx.UpdatedAt = r.nextTime()
	r.transactions[id] = tx
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	channels []string
	events   []string
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	var event transactionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	p.channels = append(p.channels, channel)
	p.events = append(p.events, event.Event)
	return event.TransactionID, nil
}

type TransactionServiceSuite struct {
	suite.Suite
	repo      *fakeTransactionRepo
	publisher *fakePublisher
	svc       *TransactionService
}

func (s *TransactionServiceSuite) SetupTest() {
	s.repo = newFakeTransactionRepo()
	s.publisher = &fakePublisher{}
	s.svc = NewTransactionService(s.repo, s.publisher, nil)
}

func TestTransactionServiceSuite(t *testing.T) {
	suite.Run(t, new(TransactionServiceSuite))
}

func (s *TransactionServiceSuite) create(ownerID int, title string, amount int64, txType string) types.Transaction {
	tx, err := s.svc.Create(context.Background(), ownerID, types.Transaction{
		Title:  title,
		Amount: decimal.NewFromInt(amount),
		Type:   txType,
	})
	require.NoError(s.T(), err)
	return tx
}

func (s *TransactionServiceSuite) TestCreateValidation() {
	ctx := context.Background()

	cases := []struct {
		name  string
		input types.Transaction
		field string
	}{
		{"empty title", types.Transaction{Title: "  ", Amount: decimal.NewFromInt(10), Type: types.TypeIncome}, "title"},
		{"negative amount", types.Transaction{Title: "Rent", Amount: decimal.NewFromInt(-1), Type: types.TypeExpense}, "amount"},
		{"bad type", types.Transaction{Title: "Rent", Amount: decimal.NewFromInt(10), Type: "transfer"}, "type"},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.svc.Create(ctx, 1, tc.input)
			var validationErr *ValidationError
			require.ErrorAs(s.T(), err, &validationErr)
			assert.Equal(s.T(), tc.field, validationErr.Field)
		})
	}
}

func (s *TransactionServiceSuite) TestCreateAssignsOwnerIdAndTimestamp() {
	tx, err := s.svc.Create(context.Background(), 7, types.Transaction{
		Title:  "Rent",
		Amount: decimal.NewFromInt(1200),
		Type:   types.TypeExpense,
		// A forged owner id in the payload must be ignored.
		UserID: 999,
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 7, tx.UserID)
	assert.NotEmpty(s.T(), tx.ID)
	assert.False(s.T(), tx.CreatedAt.IsZero())
}

func (s *TransactionServiceSuite) TestListIsNewestFirstAndIdempotent() {
	ctx := context.Background()
	s.create(1, "First", 100, types.TypeIncome)
	s.create(1, "Second", 200, types.TypeIncome)
	s.create(1, "Third", 300, types.TypeIncome)

	list, err := s.svc.List(ctx, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), list, 3)
	assert.Equal(s.T(), "Third", list[0].Title)
	assert.Equal(s.T(), "Second", list[1].Title)
	assert.Equal(s.T(), "First", list[2].Title)

	again, err := s.svc.List(ctx, 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), list, again)
}

func (s *TransactionServiceSuite) TestUpdateAppliesOnlySuppliedFields() {
	ctx := context.Background()
	tx := s.create(1, "Groceries", 80, types.TypeExpense)

	newTitle := "Weekly groceries"
	updated, err := s.svc.Update(ctx, 1, tx.ID, types.TransactionPatch{Title: &newTitle})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "Weekly groceries", updated.Title)
	assert.True(s.T(), decimal.NewFromInt(80).Equal(updated.Amount))
	assert.Equal(s.T(), types.TypeExpense, updated.Type)
}

func (s *TransactionServiceSuite) TestUpdateValidatesSuppliedFields() {
	ctx := context.Background()
	tx := s.create(1, "Groceries", 80, types.TypeExpense)

	empty := " "
	_, err := s.svc.Update(ctx, 1, tx.ID, types.TransactionPatch{Title: &empty})
	var validationErr *ValidationError
	require.ErrorAs(s.T(), err, &validationErr)
	assert.Equal(s.T(), "title", validationErr.Field)

	negative := decimal.NewFromInt(-5)
	_, err = s.svc.Update(ctx, 1, tx.ID, types.TransactionPatch{Amount: &negative})
	require.ErrorAs(s.T(), err, &validationErr)
	assert.Equal(s.T(), "amount", validationErr.Field)

	badType := "transfer"
	_, err = s.svc.Update(ctx, 1, tx.ID, types.TransactionPatch{Type: &badType})
	require.ErrorAs(s.T(), err, &validationErr)
	assert.Equal(s.T(), "type", validationErr.Field)
}

func (s *TransactionServiceSuite) TestOperationsAreOwnerScoped() {
	ctx := context.Background()
	tx := s.create(1, "Salary", 5000, types.TypeIncome)

	// Another account never sees the record.
	list, err := s.svc.List(ctx, 2)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), list)

	newTitle := "Hijacked"
	_, err = s.svc.Update(ctx, 2, tx.ID, types.TransactionPatch{Title: &newTitle})
	assert.ErrorIs(s.T(), err, store.ErrNotFound)

	err = s.svc.Delete(ctx, 2, tx.ID)
	assert.ErrorIs(s.T(), err, store.ErrNotFound)

	// The rightful owner still can.
	updated, err := s.svc.Update(ctx, 1, tx.ID, types.TransactionPatch{Title: &newTitle})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Hijacked", updated.Title)

	require.NoError(s.T(), s.svc.Delete(ctx, 1, tx.ID))
}

func (s *TransactionServiceSuite) TestEventsArePublished() {
	ctx := context.Background()
	tx := s.create(1, "Salary", 5000, types.TypeIncome)

	newTitle := "Monthly salary"
	_, err := s.svc.Update(ctx, 1, tx.ID, types.TransactionPatch{Title: &newTitle})
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.svc.Delete(ctx, 1, tx.ID))

	assert.Equal(s.T(), []string{
		EventTransactionCreated,
		EventTransactionUpdated,
		EventTransactionDeleted,
	}, s.publisher.events)
	for _, channel := range s.publisher.channels {
		assert.Equal(s.T(), EventChannel, channel)
	}
}
