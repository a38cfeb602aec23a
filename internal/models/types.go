package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Account is the wire form of an account. Balance is a plain JSON number.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Balance   float64   `json:"balance"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is the wire form of a transaction.
type Transaction struct {
	ID                string  `json:"id"`
	AccountID         string  `json:"account_id"`
	Type              string  `json:"type"`
	Amount            float64 `json:"amount"`
	Date              string  `json:"date"`
	Description       string  `json:"description,omitempty"`
	Category          string  `json:"category"`
	IsRecurring       bool    `json:"is_recurring"`
	RecurringInterval *string `json:"recurring_interval"`
	NextRecurringDate *string `json:"next_recurring_date"`
}

// AccountWithTransactions is the account detail view.
type AccountWithTransactions struct {
	Account
	Transactions []Transaction `json:"transactions"`
	Count        int           `json:"transaction_count"`
}

// TransactionRequest is the payload for create and update.
type TransactionRequest struct {
	AccountID         string          `json:"account_id"`
	Type              string          `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	Date              string          `json:"date"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	IsRecurring       bool            `json:"is_recurring"`
	RecurringInterval string          `json:"recurring_interval"`
}

// AccountRequest is the payload for account creation.
type AccountRequest struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	IsDefault bool            `json:"is_default"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type BulkDeleteResponse struct {
	Success            bool     `json:"success"`
	Deleted            int      `json:"deleted"`
	AffectedAccountIDs []string `json:"affected_account_ids"`
}

// Input converts the request into domain input. Dates may be YYYY-MM-DD or RFC 3339.
func (r TransactionRequest) Input() (domain.TransactionInput, error) {
	date, err := ParseDate(r.Date)
	if err != nil {
		return domain.TransactionInput{}, err
	}
	return domain.TransactionInput{
		AccountID:         r.AccountID,
		Type:              domain.TransactionType(r.Type),
		Amount:            r.Amount,
		Date:              date,
		Description:       r.Description,
		Category:          r.Category,
		IsRecurring:       r.IsRecurring,
		RecurringInterval: domain.RecurringInterval(r.RecurringInterval),
	}, nil
}

func (r AccountRequest) Input() domain.AccountInput {
	return domain.AccountInput{Name: r.Name, Type: r.Type, Balance: r.Balance, IsDefault: r.IsDefault}
}

func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return domain.CalendarDate(t), nil
}

// Amount converts an exact decimal to a JSON number. Values that fit a float64
// mantissa, which covers ordinary currency amounts, round-trip unchanged.
func Amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func FromAccount(a *domain.Account) Account {
	return Account{
		ID:        a.ID,
		Name:      a.Name,
		Type:      a.Type,
		Balance:   Amount(a.Balance),
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt,
	}
}

func FromAccounts(accounts []domain.Account) []Account {
	out := make([]Account, 0, len(accounts))
	for i := range accounts {
		out = append(out, FromAccount(&accounts[i]))
	}
	return out
}

func FromTransaction(t *domain.Transaction) Transaction {
	out := Transaction{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Type:        string(t.Type),
		Amount:      Amount(t.Amount),
		Date:        t.Date.Format(DateLayout),
		Description: t.Description,
		Category:    t.Category,
		IsRecurring: t.IsRecurring,
	}
	if t.RecurringInterval != domain.IntervalNone {
		interval := string(t.RecurringInterval)
		out.RecurringInterval = &interval
	}
	if t.NextRecurringDate != nil {
		next := t.NextRecurringDate.Format(DateLayout)
		out.NextRecurringDate = &next
	}
	return out
}

func FromAccountWithTransactions(v *domain.AccountWithTransactions) AccountWithTransactions {
	txns := make([]Transaction, 0, len(v.Transactions))
	for i := range v.Transactions {
		txns = append(txns, FromTransaction(&v.Transactions[i]))
	}
	return AccountWithTransactions{
		Account:      FromAccount(&v.Account),
		Transactions: txns,
		Count:        v.Count,
	}
}
