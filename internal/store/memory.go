package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
)

var errReadOnly = errors.New("write attempted in read-only unit")

// Memory is an in-process Store. Units are serialized by a single lock and
// operate on a private copy that replaces the live state only on commit.
type Memory struct {
	mu    sync.RWMutex
	state memState
}

type memState struct {
	accounts map[string]domain.Account
	txns     map[string]domain.Transaction
}

func NewMemory() *Memory {
	return &Memory{state: memState{
		accounts: make(map[string]domain.Account),
		txns:     make(map[string]domain.Transaction),
	}}
}

func (s memState) clone() memState {
	c := memState{
		accounts: make(map[string]domain.Account, len(s.accounts)),
		txns:     make(map[string]domain.Transaction, len(s.txns)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	return c
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, &memTx{st: &m.state, readOnly: true})
}

func (m *Memory) Close() {}

type memTx struct {
	st       *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) GetAccount(_ context.Context, ownerID, accountID string) (*domain.Account, error) {
	acc, ok := t.st.accounts[accountID]
	if !ok || acc.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return &acc, nil
}

func (t *memTx) ListAccounts(_ context.Context, ownerID string) ([]domain.Account, error) {
	var out []domain.Account
	for _, acc := range t.st.accounts {
		if acc.OwnerID == ownerID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) CountAccounts(_ context.Context, ownerID string) (int, error) {
	n := 0
	for _, acc := range t.st.accounts {
		if acc.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertAccount(_ context.Context, acc *domain.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.st.accounts[acc.ID]; exists {
		return errors.New("duplicate account id")
	}
	t.st.accounts[acc.ID] = *acc
	return nil
}

func (t *memTx) ClearDefault(_ context.Context, ownerID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, acc := range t.st.accounts {
		if acc.OwnerID == ownerID && acc.IsDefault {
			acc.IsDefault = false
			t.st.accounts[id] = acc
		}
	}
	return nil
}

func (t *memTx) SetDefault(_ context.Context, ownerID, accountID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	acc, ok := t.st.accounts[accountID]
	if !ok || acc.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	acc.IsDefault = true
	t.st.accounts[accountID] = acc
	return nil
}

func (t *memTx) AdjustBalance(_ context.Context, ownerID, accountID string, delta decimal.Decimal) error {
	if err := t.writable(); err != nil {
		return err
	}
	acc, ok := t.st.accounts[accountID]
	if !ok || acc.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	acc.Balance = acc.Balance.Add(delta)
	t.st.accounts[accountID] = acc
	return nil
}

func (t *memTx) GetTransaction(_ context.Context, ownerID, id string) (*domain.Transaction, error) {
	txn, ok := t.st.txns[id]
	if !ok || txn.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return &txn, nil
}

func (t *memTx) LockTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	return t.GetTransaction(ctx, ownerID, id)
}

func (t *memTx) LockTransactions(_ context.Context, ownerID string, ids []string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, id := range ids {
		if txn, ok := t.st.txns[id]; ok && txn.OwnerID == ownerID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (t *memTx) ListAccountTransactions(_ context.Context, ownerID, accountID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, txn := range t.st.txns {
		if txn.OwnerID == ownerID && txn.AccountID == accountID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *domain.Transaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.st.txns[txn.ID]; exists {
		return errors.New("duplicate transaction id")
	}
	acc, ok := t.st.accounts[txn.AccountID]
	if !ok || acc.OwnerID != txn.OwnerID {
		return domain.ErrNotFound
	}
	t.st.txns[txn.ID] = *txn
	return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, txn *domain.Transaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.st.txns[txn.ID]
	if !ok || cur.OwnerID != txn.OwnerID {
		return domain.ErrNotFound
	}
	if acc, ok := t.st.accounts[txn.AccountID]; !ok || acc.OwnerID != txn.OwnerID {
		return domain.ErrNotFound
	}
	t.st.txns[txn.ID] = *txn
	return nil
}

func (t *memTx) DeleteTransactions(_ context.Context, ownerID string, ids []string) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if txn, ok := t.st.txns[id]; ok && txn.OwnerID == ownerID {
			delete(t.st.txns, id)
			n++
		}
	}
	return n, nil
}

var _ Store = (*Memory)(nil)
