package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits the SQL stores keep for
// amounts and balances (NUMERIC(19,4) / decimal(19,4)).
const MoneyScale = 4

// FitsMoneyScale reports whether d can be stored without rounding.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// TransactionType tells whether a transaction adds to or draws from its account.
type TransactionType string

const (
	TransactionTypeExpense TransactionType = "EXPENSE"
	TransactionTypeIncome  TransactionType = "INCOME"
)

func (t TransactionType) Valid() bool {
	return t == TransactionTypeExpense || t == TransactionTypeIncome
}

// RecurringInterval is the cadence of a recurring transaction. The zero value means none.
type RecurringInterval string

const (
	IntervalNone    RecurringInterval = ""
	IntervalDaily   RecurringInterval = "DAILY"
	IntervalWeekly  RecurringInterval = "WEEKLY"
	IntervalMonthly RecurringInterval = "MONTHLY"
	IntervalYearly  RecurringInterval = "YEARLY"
)

func (i RecurringInterval) Valid() bool {
	switch i {
	case IntervalNone, IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// Account is an owner's financial account. Balance is only ever moved by the ledger service.
type Account struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	IsDefault bool            `json:"is_default"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is a single income or expense posted against exactly one account.
type Transaction struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"owner_id"`
	AccountID         string            `json:"account_id"`
	Type              TransactionType   `json:"type"`
	Amount            decimal.Decimal   `json:"amount"`
	Date              time.Time         `json:"date"`
	Description       string            `json:"description"`
	Category          string            `json:"category"`
	IsRecurring       bool              `json:"is_recurring"`
	RecurringInterval RecurringInterval `json:"recurring_interval"`
	NextRecurringDate *time.Time        `json:"next_recurring_date"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Contribution is the signed effect of the transaction on its account balance.
func (t *Transaction) Contribution() decimal.Decimal {
	return SignedContribution(t.Type, t.Amount)
}

// SignedContribution returns +amount for INCOME and -amount for EXPENSE.
func SignedContribution(typ TransactionType, amount decimal.Decimal) decimal.Decimal {
	if typ == TransactionTypeExpense {
		return amount.Neg()
	}
	return amount
}

// TransactionInput carries the caller-editable fields of a transaction.
type TransactionInput struct {
	AccountID         string
	Type              TransactionType
	Amount            decimal.Decimal
	Date              time.Time
	Description       string
	Category          string
	IsRecurring       bool
	RecurringInterval RecurringInterval
}

func (in TransactionInput) Validate() error {
	if in.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("unknown transaction type %q", in.Type)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if !FitsMoneyScale(in.Amount) {
		return fmt.Errorf("amount has more than %d decimal places", MoneyScale)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if in.Category == "" {
		return fmt.Errorf("category is required")
	}
	if !in.RecurringInterval.Valid() {
		return fmt.Errorf("unknown recurring interval %q", in.RecurringInterval)
	}
	return nil
}

// Apply copies the input fields onto t and rederives NextRecurringDate.
func (in TransactionInput) Apply(t *Transaction) {
	t.AccountID = in.AccountID
	t.Type = in.Type
	t.Amount = in.Amount
	t.Date = CalendarDate(in.Date)
	t.Description = in.Description
	t.Category = in.Category
	t.IsRecurring = in.IsRecurring
	t.RecurringInterval = in.RecurringInterval
	t.NextRecurringDate = NextRecurringDate(t.IsRecurring, t.Date, t.RecurringInterval)
}

// AccountInput describes a new account.
type AccountInput struct {
	Name      string
	Type      string
	Balance   decimal.Decimal
	IsDefault bool
}

func (in AccountInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !FitsMoneyScale(in.Balance) {
		return fmt.Errorf("balance has more than %d decimal places", MoneyScale)
	}
	return nil
}

// AccountWithTransactions is an account with its transactions, newest first.
type AccountWithTransactions struct {
	Account      Account
	Transactions []Transaction
	Count        int
}

// BulkDeleteResult reports which accounts had their balance moved by a bulk delete.
type BulkDeleteResult struct {
	Deleted            int
	AffectedAccountIDs []string
}
