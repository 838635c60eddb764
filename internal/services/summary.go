package services

import (
	"time"

	"github.com/fintrack/apiserver/types"
	"github.com/shopspring/decimal"
)

// Summary is the derived aggregate view over an account's transactions.
// Nothing here is persisted; it is recomputed from the transaction list.
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`

	// SavingsRate is (income - expense) / income * 100, or 0 when the
	// account has no income.
	SavingsRate float64 `json:"savings_rate"`

	// LargestExpense is the expense transaction with the maximum amount,
	// or nil when no expenses exist.
	LargestExpense *types.Transaction `json:"largest_expense"`

	// MonthExpense is the sum of expense amounts created in the current
	// calendar month of the reference clock.
	MonthExpense decimal.Decimal `json:"month_expense"`

	// Budget echoes the account's monthly budget when one is set.
	Budget *decimal.Decimal `json:"budget,omitempty"`

	// BudgetExceeded is true when a budget is set and MonthExpense
	// exceeds it.
	BudgetExceeded bool `json:"budget_exceeded"`
}

// Summarize derives the aggregate figures from a transaction list.
// The current calendar month is evaluated in now's location, so callers
// control the time zone the month boundary is judged in.
func Summarize(transactions []types.Transaction, budget decimal.NullDecimal, now time.Time) Summary {
	income := decimal.Zero
	expense := decimal.Zero
	monthExpense := decimal.Zero
	var largest *types.Transaction

	for i := range transactions {
		tx := &transactions[i]
		switch tx.Type {
		case types.TypeIncome:
			income = income.Add(tx.Amount)
		case types.TypeExpense:
			expense = expense.Add(tx.Amount)
			if largest == nil || tx.Amount.GreaterThan(largest.Amount) {
				largest = tx
			}
			if sameMonth(tx.CreatedAt.In(now.Location()), now) {
				monthExpense = monthExpense.Add(tx.Amount)
			}
		}
	}

	balance := income.Sub(expense)

	savingsRate := 0.0
	if income.IsPositive() {
		savingsRate, _ = balance.Div(income).Mul(decimal.NewFromInt(100)).Float64()
	}

	summary := Summary{
		Income:         income,
		Expense:        expense,
		Balance:        balance,
		SavingsRate:    savingsRate,
		LargestExpense: largest,
		MonthExpense:   monthExpense,
	}

	if budget.Valid {
		b := budget.Decimal
		summary.Budget = &b
		summary.BudgetExceeded = monthExpense.GreaterThan(b)
	}

	return summary
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
