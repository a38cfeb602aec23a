package service

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
	"github.com/punchamoorthee/finance-ledger/internal/store"
)

var errInjected = errors.New("injected store fault")

type adjustment struct {
	AccountID string
	Delta     decimal.Decimal
}

// faultStore wraps a Store, records balance adjustments made inside units and
// can fail a chosen step.
type faultStore struct {
	store.Store

	mu          sync.Mutex
	failOn      string
	failWith    error
	adjustments []adjustment
}

func (f *faultStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &faultTx{Tx: tx, parent: f})
	})
}

func (f *faultStore) failStep(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = step
	f.failWith = nil
}

// failStepWith makes step return err instead of errInjected.
func (f *faultStore) failStepWith(step string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = step
	f.failWith = err
}

func (f *faultStore) injected() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	return errInjected
}

func (f *faultStore) resetAdjustments() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjustments = nil
}

func (f *faultStore) recorded() []adjustment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adjustment(nil), f.adjustments...)
}

func (f *faultStore) shouldFail(step string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOn == step
}

type faultTx struct {
	store.Tx
	parent *faultStore
}

func (t *faultTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	if t.parent.shouldFail("insert_account") {
		return t.parent.injected()
	}
	return t.Tx.InsertAccount(ctx, acc)
}

func (t *faultTx) AdjustBalance(ctx context.Context, ownerID, accountID string, delta decimal.Decimal) error {
	if t.parent.shouldFail("AdjustBalance") {
		return t.parent.injected()
	}
	if err := t.Tx.AdjustBalance(ctx, ownerID, accountID, delta); err != nil {
		return err
	}
	t.parent.mu.Lock()
	t.parent.adjustments = append(t.parent.adjustments, adjustment{AccountID: accountID, Delta: delta})
	t.parent.mu.Unlock()
	return nil
}

func (t *faultTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if t.parent.shouldFail("InsertTransaction") {
		return t.parent.injected()
	}
	return t.Tx.InsertTransaction(ctx, txn)
}

func (t *faultTx) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	if t.parent.shouldFail("UpdateTransaction") {
		return t.parent.injected()
	}
	return t.Tx.UpdateTransaction(ctx, txn)
}

func (t *faultTx) DeleteTransactions(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if t.parent.shouldFail("DeleteTransactions") {
		return 0, t.parent.injected()
	}
	return t.Tx.DeleteTransactions(ctx, ownerID, ids)
}

type recordingInvalidator struct {
	mu     sync.Mutex
	scopes []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, _ string, scopes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, scopes...)
}

func (r *recordingInvalidator) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.scopes
	r.scopes = nil
	return out
}
