package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
)

// Store runs groups of reads and writes as one atomic unit.
//
// InTx commits only when fn returns nil; any error discards every pending
// change. View runs fn against a consistent read-only snapshot.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close()
}

// Tx is the set of operations available inside an atomic unit. Every lookup is
// scoped by owner and returns domain.ErrNotFound for rows the owner cannot see.
type Tx interface {
	GetAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error)
	CountAccounts(ctx context.Context, ownerID string) (int, error)
	InsertAccount(ctx context.Context, acc *domain.Account) error
	ClearDefault(ctx context.Context, ownerID string) error
	SetDefault(ctx context.Context, ownerID, accountID string) error

	// AdjustBalance adds delta to the stored balance in place. It never reads
	// the balance into the application first.
	AdjustBalance(ctx context.Context, ownerID, accountID string, delta decimal.Decimal) error

	GetTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error)
	// LockTransaction and LockTransactions hold the returned rows against
	// concurrent writers until the unit ends. Missing ids are silently skipped
	// by LockTransactions.
	LockTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error)
	LockTransactions(ctx context.Context, ownerID string, ids []string) ([]domain.Transaction, error)
	ListAccountTransactions(ctx context.Context, ownerID, accountID string) ([]domain.Transaction, error)
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransactions(ctx context.Context, ownerID string, ids []string) (int64, error)
}
