package services

import (
	"context"

	"github.com/fintrack/apiserver/types"
	"github.com/shopspring/decimal"
)

// UserRepository defines persistence operations for user accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateBudget(ctx context.Context, id int, budget decimal.NullDecimal) (types.User, error)
}

// UserService encapsulates account use-cases outside of authentication.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// SetBudget validates and persists the account's monthly budget.
// An invalid (unset) budget clears it.
func (s *UserService) SetBudget(ctx context.Context, id int, budget decimal.NullDecimal) (types.User, error) {
	if budget.Valid && budget.Decimal.IsNegative() {
		return types.User{}, &ValidationError{Field: "budget", Message: "budget must be a non-negative number"}
	}
	return s.repo.UpdateBudget(ctx, id, budget)
}
