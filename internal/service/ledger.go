package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
	"github.com/punchamoorthee/finance-ledger/internal/store"
)

const (
	OpCreate        = "create"
	OpUpdate        = "update"
	OpBulkDelete    = "bulk_delete"
	OpCreateAccount = "create_account"
	OpSetDefault    = "set_default"
)

var ledgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_operations_total",
	Help: "Ledger mutations, labeled by operation and outcome kind",
}, []string{"op", "result"})

// LedgerService keeps every account balance equal to its opening balance plus
// the signed contributions of its transactions. Each mutation runs as a single
// store unit; balances are only moved with in-place increments.
type LedgerService struct {
	store       store.Store
	invalidator Invalidator
	log         zerolog.Logger
	now         func() time.Time
}

func NewLedgerService(s store.Store, inv Invalidator, log zerolog.Logger) *LedgerService {
	if inv == nil {
		inv = NopInvalidator{}
	}
	return &LedgerService{
		store:       s,
		invalidator: inv,
		log:         log.With().Str("component", "ledger").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateTransaction posts a new transaction and moves its account by the signed amount.
func (s *LedgerService) CreateTransaction(ctx context.Context, ownerID string, in domain.TransactionInput) (*domain.Transaction, error) {
	if ownerID == "" {
		return nil, s.finish(OpCreate, unauthorized(OpCreate))
	}
	if err := in.Validate(); err != nil {
		return nil, s.finish(OpCreate, invalid(OpCreate, err))
	}

	now := s.now()
	txn := &domain.Transaction{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.Apply(txn)
	delta := txn.Contribution()

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetAccount(ctx, ownerID, in.AccountID); err != nil {
			return stepError(OpCreate, "account", in.AccountID, err)
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return stepError(OpCreate, "transaction", txn.ID, err)
		}
		if err := tx.AdjustBalance(ctx, ownerID, in.AccountID, delta); err != nil {
			return stepError(OpCreate, "account", in.AccountID, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(OpCreate, commitError(OpCreate, err))
	}

	s.log.Debug().Str("owner_id", ownerID).Str("transaction_id", txn.ID).Str("account_id", txn.AccountID).Msg("transaction created")
	s.invalidator.Invalidate(ctx, ownerID, DashboardScope, AccountScope(txn.AccountID))
	return txn, s.finish(OpCreate, nil)
}

// UpdateTransaction rewrites a transaction. When the account changes, the old
// account loses the old contribution and the new account gains the new one;
// otherwise the single account moves by the net difference.
func (s *LedgerService) UpdateTransaction(ctx context.Context, ownerID, id string, in domain.TransactionInput) (*domain.Transaction, error) {
	if ownerID == "" {
		return nil, s.finish(OpUpdate, unauthorized(OpUpdate))
	}
	if err := in.Validate(); err != nil {
		return nil, s.finish(OpUpdate, invalid(OpUpdate, err))
	}

	var updated *domain.Transaction
	var previousAccount string

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		original, err := tx.LockTransaction(ctx, ownerID, id)
		if err != nil {
			return stepError(OpUpdate, "transaction", id, err)
		}
		previousAccount = original.AccountID

		oldDelta := original.Contribution()
		newDelta := domain.SignedContribution(in.Type, in.Amount)

		if in.AccountID != original.AccountID {
			// The destination must belong to the same owner.
			if _, err := tx.GetAccount(ctx, ownerID, in.AccountID); err != nil {
				return stepError(OpUpdate, "account", in.AccountID, err)
			}
			adjustments := []struct {
				account string
				delta   decimal.Decimal
			}{
				{original.AccountID, oldDelta.Neg()},
				{in.AccountID, newDelta},
			}
			// Ascending id order keeps row locks acquired in a stable order.
			sort.Slice(adjustments, func(i, j int) bool { return adjustments[i].account < adjustments[j].account })
			for _, adj := range adjustments {
				if err := tx.AdjustBalance(ctx, ownerID, adj.account, adj.delta); err != nil {
					return stepError(OpUpdate, "account", adj.account, err)
				}
			}
		} else {
			if err := tx.AdjustBalance(ctx, ownerID, in.AccountID, newDelta.Sub(oldDelta)); err != nil {
				return stepError(OpUpdate, "account", in.AccountID, err)
			}
		}

		next := *original
		in.Apply(&next)
		next.UpdatedAt = s.now()
		if err := tx.UpdateTransaction(ctx, &next); err != nil {
			return stepError(OpUpdate, "transaction", id, err)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, s.finish(OpUpdate, commitError(OpUpdate, err))
	}

	s.log.Debug().Str("owner_id", ownerID).Str("transaction_id", id).
		Str("account_id", updated.AccountID).Str("previous_account_id", previousAccount).
		Msg("transaction updated")

	scopes := []string{DashboardScope, AccountScope(updated.AccountID)}
	if previousAccount != updated.AccountID {
		scopes = append(scopes, AccountScope(previousAccount))
	}
	s.invalidator.Invalidate(ctx, ownerID, scopes...)
	return updated, s.finish(OpUpdate, nil)
}

// BulkDeleteTransactions removes every named transaction or none of them. Each
// affected account is adjusted once by the negated sum of its removed contributions.
func (s *LedgerService) BulkDeleteTransactions(ctx context.Context, ownerID string, ids []string) (*domain.BulkDeleteResult, error) {
	if ownerID == "" {
		return nil, s.finish(OpBulkDelete, unauthorized(OpBulkDelete))
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, s.finish(OpBulkDelete, invalid(OpBulkDelete, errors.New("no transaction ids supplied")))
	}

	var result domain.BulkDeleteResult

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.LockTransactions(ctx, ownerID, ids)
		if err != nil {
			return stepError(OpBulkDelete, "transaction", "", err)
		}
		if len(found) != len(ids) {
			return &domain.LedgerError{
				Op:     OpBulkDelete,
				Kind:   domain.ErrPartialOwnershipMismatch,
				Entity: "transaction",
				ID:     firstMissing(ids, found),
			}
		}

		accumulated := make(map[string]decimal.Decimal)
		for i := range found {
			accumulated[found[i].AccountID] = accumulated[found[i].AccountID].Add(found[i].Contribution())
		}
		accounts := make([]string, 0, len(accumulated))
		for id := range accumulated {
			accounts = append(accounts, id)
		}
		sort.Strings(accounts)

		deleted, err := tx.DeleteTransactions(ctx, ownerID, ids)
		if err != nil {
			return stepError(OpBulkDelete, "transaction", "", err)
		}
		if int(deleted) != len(ids) {
			return &domain.LedgerError{Op: OpBulkDelete, Kind: domain.ErrPartialOwnershipMismatch, Entity: "transaction"}
		}

		for _, accountID := range accounts {
			if err := tx.AdjustBalance(ctx, ownerID, accountID, accumulated[accountID].Neg()); err != nil {
				return stepError(OpBulkDelete, "account", accountID, err)
			}
		}

		result = domain.BulkDeleteResult{Deleted: int(deleted), AffectedAccountIDs: accounts}
		return nil
	})
	if err != nil {
		return nil, s.finish(OpBulkDelete, commitError(OpBulkDelete, err))
	}

	s.log.Debug().Str("owner_id", ownerID).Int("deleted", result.Deleted).
		Strs("account_ids", result.AffectedAccountIDs).Msg("transactions deleted")

	scopes := []string{DashboardScope, TransactionsScope}
	for _, id := range result.AffectedAccountIDs {
		scopes = append(scopes, AccountScope(id))
	}
	s.invalidator.Invalidate(ctx, ownerID, scopes...)
	return &result, s.finish(OpBulkDelete, nil)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func firstMissing(requested []string, found []domain.Transaction) string {
	have := make(map[string]struct{}, len(found))
	for i := range found {
		have[found[i].ID] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			return id
		}
	}
	return ""
}

// GetTransaction returns one of the owner's transactions.
func (s *LedgerService) GetTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	const op = "get_transaction"
	if ownerID == "" {
		return nil, unauthorized(op)
	}

	var txn *domain.Transaction
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		txn, err = tx.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return stepError(op, "transaction", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, commitError(op, err)
	}
	return txn, nil
}

// GetAccountWithTransactions returns the account with its transactions, newest
// first, read from one snapshot. It returns nil, nil when the owner has no such account.
func (s *LedgerService) GetAccountWithTransactions(ctx context.Context, ownerID, accountID string) (*domain.AccountWithTransactions, error) {
	const op = "get_account"
	if ownerID == "" {
		return nil, unauthorized(op)
	}

	var out *domain.AccountWithTransactions
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.GetAccount(ctx, ownerID, accountID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return stepError(op, "account", accountID, err)
		}
		txns, err := tx.ListAccountTransactions(ctx, ownerID, accountID)
		if err != nil {
			return stepError(op, "account", accountID, err)
		}
		out = &domain.AccountWithTransactions{Account: *acc, Transactions: txns, Count: len(txns)}
		return nil
	})
	if err != nil {
		return nil, commitError(op, err)
	}
	return out, nil
}

func (s *LedgerService) finish(op string, err error) error {
	result := "ok"
	if err != nil {
		result = kindLabel(err)
		if errors.Is(err, domain.ErrStoreFailure) {
			s.log.Error().Err(err).Str("op", op).Msg("ledger operation failed")
		}
	}
	ledgerOpsTotal.WithLabelValues(op, result).Inc()
	return err
}

func kindLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPartialOwnershipMismatch):
		return "ownership_mismatch"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "store_failure"
	}
}

func unauthorized(op string) error {
	return &domain.LedgerError{Op: op, Kind: domain.ErrUnauthorized}
}

func invalid(op string, cause error) error {
	return &domain.LedgerError{Op: op, Kind: domain.ErrInvalidInput, Err: cause}
}

// stepError classifies an error from a store call made inside a unit.
func stepError(op, entity, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.LedgerError{Op: op, Kind: domain.ErrNotFound, Entity: entity, ID: id}
	}
	return &domain.LedgerError{Op: op, Kind: domain.ErrStoreFailure, Entity: entity, ID: id, Err: err}
}

// commitError passes classified errors through and treats anything else
// (begin, commit, cancellation) as a store failure.
func commitError(op string, err error) error {
	var le *domain.LedgerError
	if errors.As(err, &le) {
		return err
	}
	return &domain.LedgerError{Op: op, Kind: domain.ErrStoreFailure, Err: err}
}
