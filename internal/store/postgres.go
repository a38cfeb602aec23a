package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// defaultAccountIndex enforces one default account per owner. A violation means
// a concurrent unit changed the default first, so the caller can resubmit.
const defaultAccountIndex = "accounts_one_default_idx"

const accountColumns = "id, user_id, name, type, balance, is_default, created_at, updated_at"

const transactionColumns = "id, user_id, account_id, type, amount, date, description, category, " +
	"is_recurring, recurring_interval, next_recurring_date, created_at, updated_at"

// Postgres is a Store backed by a pgx connection pool. Units run at REPEATABLE READ.
type Postgres struct {
	Db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func (s *Postgres) Close() {
	s.Db.Close()
}

// Migrate creates the accounts and transactions tables if they are missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

func (s *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

func (s *Postgres) View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Postgres) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", mapPgError(err))
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", mapPgError(err))
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		case pgUniqueViolation:
			if pgErr.ConstraintName == defaultAccountIndex {
				return fmt.Errorf("%w: %w", domain.ErrConflict, err)
			}
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	q querier
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.Balance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var interval *string
	err := row.Scan(&t.ID, &t.OwnerID, &t.AccountID, &t.Type, &t.Amount, &t.Date, &t.Description, &t.Category,
		&t.IsRecurring, &interval, &t.NextRecurringDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if interval != nil {
		t.RecurringInterval = domain.RecurringInterval(*interval)
	}
	return &t, nil
}

func nullInterval(i domain.RecurringInterval) any {
	if i == domain.IntervalNone {
		return nil
	}
	return string(i)
}

func (t *pgTx) GetAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error) {
	acc, err := scanAccount(t.q.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 AND user_id = $2", accountID, ownerID))
	if err != nil {
		return nil, mapPgError(err)
	}
	return acc, nil
}

func (t *pgTx) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	rows, err := t.q.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = $1 ORDER BY is_default DESC, created_at, id", ownerID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, mapPgError(rows.Err())
}

func (t *pgTx) CountAccounts(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := t.q.QueryRow(ctx, "SELECT COUNT(*) FROM accounts WHERE user_id = $1", ownerID).Scan(&n); err != nil {
		return 0, mapPgError(err)
	}
	return n, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	_, err := t.q.Exec(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		acc.ID, acc.OwnerID, acc.Name, acc.Type, acc.Balance, acc.IsDefault, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("account insert failed: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) ClearDefault(ctx context.Context, ownerID string) error {
	_, err := t.q.Exec(ctx,
		"UPDATE accounts SET is_default = FALSE, updated_at = now() WHERE user_id = $1 AND is_default", ownerID)
	return mapPgError(err)
}

func (t *pgTx) SetDefault(ctx context.Context, ownerID, accountID string) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE accounts SET is_default = TRUE, updated_at = now() WHERE id = $1 AND user_id = $2", accountID, ownerID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, ownerID, accountID string, delta decimal.Decimal) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE id = $2 AND user_id = $3",
		delta, accountID, ownerID)
	if err != nil {
		return fmt.Errorf("balance update failed: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) GetTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	txn, err := scanTransaction(t.q.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1 AND user_id = $2", id, ownerID))
	if err != nil {
		return nil, mapPgError(err)
	}
	return txn, nil
}

func (t *pgTx) LockTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	txn, err := scanTransaction(t.q.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1 AND user_id = $2 FOR UPDATE", id, ownerID))
	if err != nil {
		return nil, mapPgError(err)
	}
	return txn, nil
}

func (t *pgTx) LockTransactions(ctx context.Context, ownerID string, ids []string) ([]domain.Transaction, error) {
	return t.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = $1 AND id = ANY($2) ORDER BY id FOR UPDATE",
		ownerID, ids)
}

func (t *pgTx) ListAccountTransactions(ctx context.Context, ownerID, accountID string) ([]domain.Transaction, error) {
	return t.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = $1 AND account_id = $2 "+
			"ORDER BY date DESC, created_at DESC, id DESC",
		ownerID, accountID)
}

func (t *pgTx) queryTransactions(ctx context.Context, sql string, args ...any) ([]domain.Transaction, error) {
	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, mapPgError(rows.Err())
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.q.Exec(ctx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)",
		txn.ID, txn.OwnerID, txn.AccountID, string(txn.Type), txn.Amount, txn.Date, txn.Description, txn.Category,
		txn.IsRecurring, nullInterval(txn.RecurringInterval), txn.NextRecurringDate, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transaction insert failed: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE transactions SET account_id = $3, type = $4, amount = $5, date = $6, description = $7, category = $8,
			is_recurring = $9, recurring_interval = $10, next_recurring_date = $11, updated_at = $12
		 WHERE id = $1 AND user_id = $2`,
		txn.ID, txn.OwnerID, txn.AccountID, string(txn.Type), txn.Amount, txn.Date, txn.Description, txn.Category,
		txn.IsRecurring, nullInterval(txn.RecurringInterval), txn.NextRecurringDate, txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transaction update failed: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteTransactions(ctx context.Context, ownerID string, ids []string) (int64, error) {
	tag, err := t.q.Exec(ctx, "DELETE FROM transactions WHERE user_id = $1 AND id = ANY($2)", ownerID, ids)
	if err != nil {
		return 0, fmt.Errorf("transaction delete failed: %w", mapPgError(err))
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*Postgres)(nil)
