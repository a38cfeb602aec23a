package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
	"github.com/punchamoorthee/finance-ledger/internal/store"
)

// CreateAccount opens an account with an opening balance. An owner's first
// account is always the default; asking for default clears the previous one.
func (s *LedgerService) CreateAccount(ctx context.Context, ownerID string, in domain.AccountInput) (*domain.Account, error) {
	if ownerID == "" {
		return nil, s.finish(OpCreateAccount, unauthorized(OpCreateAccount))
	}
	if err := in.Validate(); err != nil {
		return nil, s.finish(OpCreateAccount, invalid(OpCreateAccount, err))
	}

	now := s.now()
	acc := &domain.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Type:      in.Type,
		Balance:   in.Balance,
		IsDefault: in.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.CountAccounts(ctx, ownerID)
		if err != nil {
			return stepError(OpCreateAccount, "account", "", err)
		}
		if n == 0 {
			acc.IsDefault = true
		}
		if acc.IsDefault {
			if err := tx.ClearDefault(ctx, ownerID); err != nil {
				return stepError(OpCreateAccount, "account", acc.ID, err)
			}
		}
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return stepError(OpCreateAccount, "account", acc.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(OpCreateAccount, commitError(OpCreateAccount, err))
	}

	s.invalidator.Invalidate(ctx, ownerID, DashboardScope)
	return acc, s.finish(OpCreateAccount, nil)
}

// SetDefaultAccount makes accountID the owner's only default account.
func (s *LedgerService) SetDefaultAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error) {
	if ownerID == "" {
		return nil, s.finish(OpSetDefault, unauthorized(OpSetDefault))
	}

	var acc *domain.Account
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetAccount(ctx, ownerID, accountID); err != nil {
			return stepError(OpSetDefault, "account", accountID, err)
		}
		if err := tx.ClearDefault(ctx, ownerID); err != nil {
			return stepError(OpSetDefault, "account", accountID, err)
		}
		if err := tx.SetDefault(ctx, ownerID, accountID); err != nil {
			return stepError(OpSetDefault, "account", accountID, err)
		}
		var err error
		acc, err = tx.GetAccount(ctx, ownerID, accountID)
		if err != nil {
			return stepError(OpSetDefault, "account", accountID, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(OpSetDefault, commitError(OpSetDefault, err))
	}

	s.invalidator.Invalidate(ctx, ownerID, DashboardScope)
	return acc, s.finish(OpSetDefault, nil)
}

// ListAccounts returns the owner's accounts, default first.
func (s *LedgerService) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	const op = "list_accounts"
	if ownerID == "" {
		return nil, unauthorized(op)
	}

	var accounts []domain.Account
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, ownerID)
		if err != nil {
			return stepError(op, "account", "", err)
		}
		return nil
	})
	if err != nil {
		return nil, commitError(op, err)
	}
	return accounts, nil
}
