package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// In-memory repositories with the same error and scoping semantics as
// the postgres implementations, so the full HTTP surface can be tested
// without a database.

type fakeUserRepo struct {
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]types.User)}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrDuplicateEmail
	}
	r.nextID++
	user.ID = r.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateBudget(ctx context.Context, id int, budget decimal.NullDecimal) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.MonthlyBudget = budget
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return user, nil
}

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

// testEnv wires the real services and routers over the fakes, mirroring
// the wiring in internal/server.
type testEnv struct {
	router *chi.Mux
}

func newTestEnv() *testEnv {
	userRepo := newFakeUserRepo()
	txRepo := newFakeTransactionRepo()

	authService := services.NewAuthService(userRepo, "test-secret", time.Hour)
	userService := services.NewUserService(userRepo)
	txService := services.NewTransactionService(txRepo, nil, nil)

	authMiddleware := RequireAuth(authService)

	router := chi.NewRouter()
	router.Route("/api/users", func(r chi.Router) {
		AuthRouter(r, authService, userService, authMiddleware)
	})
	router.Route("/api/transactions", func(r chi.Router) {
		TransactionRouter(r, txService, userService, authMiddleware)
	})

	return &testEnv{router: router}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

func (e *testEnv) register(t *testing.T, name, email string) string {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "Str0ng!pass",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var auth AuthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &auth))
	require.NotEmpty(t, auth.Token)
	return auth.Token
}

func decodeJSON[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &value))
	return value
}
