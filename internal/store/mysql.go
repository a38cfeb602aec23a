package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/punchamoorthee/finance-ledger/internal/domain"
)

// MySQLConfig holds the DSN and pool settings for the gorm-backed store.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string // silent, error, warn, info
}

type sqlAccount struct {
	ID        string          `gorm:"primaryKey;size:36"`
	UserID    string          `gorm:"size:64;index"`
	Name      string          `gorm:"size:255"`
	Type      string          `gorm:"size:32"`
	Balance   decimal.Decimal `gorm:"type:decimal(19,4);not null;default:0"`
	IsDefault bool

	// DefaultOwner is user_id on the default account and NULL elsewhere, so a
	// unique index on it allows one default per owner.
	DefaultOwner *string `gorm:"->;type:varchar(64) GENERATED ALWAYS AS (IF(is_default, user_id, NULL)) STORED;uniqueIndex:accounts_one_default_idx"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

type sqlTransaction struct {
	ID                string          `gorm:"primaryKey;size:36"`
	UserID            string          `gorm:"size:64;index"`
	AccountID         string          `gorm:"size:36;index:idx_account_date,priority:1"`
	Account           *sqlAccount     `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
	Type              string          `gorm:"size:16;check:chk_transactions_type,type IN ('EXPENSE', 'INCOME')"`
	Amount            decimal.Decimal `gorm:"type:decimal(19,4);not null;check:chk_transactions_amount,amount > 0"`
	Date              time.Time       `gorm:"type:date;index:idx_account_date,priority:2,sort:desc"`
	Description       string
	Category          string `gorm:"size:64"`
	IsRecurring       bool
	RecurringInterval *string    `gorm:"size:16"`
	NextRecurringDate *time.Time `gorm:"type:date"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// MySQL is a Store backed by gorm over MySQL.
type MySQL struct {
	db *gorm.DB
}

func NewMySQL(cfg MySQLConfig) (*MySQL, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newGormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("mysql ping failed: %w", err)
	}
	return &MySQL{db: db}, nil
}

func newGormLogger(level string) logger.Interface {
	return logger.Default.LogMode(gormLogLevel(level))
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}

// Migrate creates or updates the accounts and transactions tables. Accounts go
// first so the transactions foreign key has a target.
func (s *MySQL) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{}); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

func (s *MySQL) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (s *MySQL) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &gormTx{db: gtx})
	})
	return mapMySQLError(err)
}

// View runs in a regular unit; MySQL has no cheap read-only snapshot through gorm.
func (s *MySQL) View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.InTx(ctx, fn)
}

type gormTx struct {
	db *gorm.DB
}

const (
	myDuplicateEntry   = 1062
	myLockWaitTimeout  = 1205
	myDeadlockDetected = 1213
)

func mapGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return mapMySQLError(err)
}

// mapMySQLError marks lock failures and a second default account as conflicts
// the caller can resubmit.
func mapMySQLError(err error) error {
	if err == nil || errors.Is(err, domain.ErrConflict) {
		return err
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myDeadlockDetected, myLockWaitTimeout:
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		case myDuplicateEntry:
			if strings.Contains(myErr.Message, defaultAccountIndex) {
				return fmt.Errorf("%w: %w", domain.ErrConflict, err)
			}
		}
	}
	return err
}

func toAccount(a *sqlAccount) *domain.Account {
	return &domain.Account{
		ID:        a.ID,
		OwnerID:   a.UserID,
		Name:      a.Name,
		Type:      a.Type,
		Balance:   a.Balance,
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toTransaction(t *sqlTransaction) *domain.Transaction {
	out := &domain.Transaction{
		ID:                t.ID,
		OwnerID:           t.UserID,
		AccountID:         t.AccountID,
		Type:              domain.TransactionType(t.Type),
		Amount:            t.Amount,
		Date:              domain.CalendarDate(t.Date),
		Description:       t.Description,
		Category:          t.Category,
		IsRecurring:       t.IsRecurring,
		NextRecurringDate: t.NextRecurringDate,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if t.RecurringInterval != nil {
		out.RecurringInterval = domain.RecurringInterval(*t.RecurringInterval)
	}
	return out
}

func fromTransaction(t *domain.Transaction) *sqlTransaction {
	row := &sqlTransaction{
		ID:                t.ID,
		UserID:            t.OwnerID,
		AccountID:         t.AccountID,
		Type:              string(t.Type),
		Amount:            t.Amount,
		Date:              t.Date,
		Description:       t.Description,
		Category:          t.Category,
		IsRecurring:       t.IsRecurring,
		NextRecurringDate: t.NextRecurringDate,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if t.RecurringInterval != domain.IntervalNone {
		interval := string(t.RecurringInterval)
		row.RecurringInterval = &interval
	}
	return row
}

func (t *gormTx) GetAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error) {
	var row sqlAccount
	if err := t.db.Where("id = ? AND user_id = ?", accountID, ownerID).First(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	return toAccount(&row), nil
}

func (t *gormTx) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	var rows []sqlAccount
	if err := t.db.Where("user_id = ?", ownerID).Order("is_default DESC, created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, *toAccount(&rows[i]))
	}
	return out, nil
}

func (t *gormTx) CountAccounts(ctx context.Context, ownerID string) (int, error) {
	var n int64
	if err := t.db.Model(&sqlAccount{}).Where("user_id = ?", ownerID).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (t *gormTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	row := sqlAccount{
		ID:        acc.ID,
		UserID:    acc.OwnerID,
		Name:      acc.Name,
		Type:      acc.Type,
		Balance:   acc.Balance,
		IsDefault: acc.IsDefault,
		CreatedAt: acc.CreatedAt,
		UpdatedAt: acc.UpdatedAt,
	}
	if err := t.db.Create(&row).Error; err != nil {
		return fmt.Errorf("account insert failed: %w", mapMySQLError(err))
	}
	return nil
}

func (t *gormTx) ClearDefault(ctx context.Context, ownerID string) error {
	err := t.db.Model(&sqlAccount{}).
		Where("user_id = ? AND is_default = ?", ownerID, true).
		Update("is_default", false).Error
	return mapMySQLError(err)
}

func (t *gormTx) SetDefault(ctx context.Context, ownerID, accountID string) error {
	res := t.db.Model(&sqlAccount{}).
		Where("id = ? AND user_id = ?", accountID, ownerID).
		Update("is_default", true)
	if res.Error != nil {
		return mapMySQLError(res.Error)
	}
	return t.ensureAffected(res.RowsAffected, ownerID, accountID)
}

func (t *gormTx) AdjustBalance(ctx context.Context, ownerID, accountID string, delta decimal.Decimal) error {
	res := t.db.Model(&sqlAccount{}).
		Where("id = ? AND user_id = ?", accountID, ownerID).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("balance update failed: %w", mapMySQLError(res.Error))
	}
	return t.ensureAffected(res.RowsAffected, ownerID, accountID)
}

// ensureAffected tells a missing row apart from an unchanged one; MySQL
// reports zero affected rows for updates that leave the values as they were.
func (t *gormTx) ensureAffected(affected int64, ownerID, accountID string) error {
	if affected > 0 {
		return nil
	}
	var n int64
	if err := t.db.Model(&sqlAccount{}).Where("id = ? AND user_id = ?", accountID, ownerID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *gormTx) GetTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	var row sqlTransaction
	if err := t.db.Where("id = ? AND user_id = ?", id, ownerID).First(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	return toTransaction(&row), nil
}

func (t *gormTx) LockTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	var row sqlTransaction
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&row).Error
	if err != nil {
		return nil, mapGormError(err)
	}
	return toTransaction(&row), nil
}

func (t *gormTx) LockTransactions(ctx context.Context, ownerID string, ids []string) ([]domain.Transaction, error) {
	var rows []sqlTransaction
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND id IN ?", ownerID, ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTransactions(rows), nil
}

func (t *gormTx) ListAccountTransactions(ctx context.Context, ownerID, accountID string) ([]domain.Transaction, error) {
	var rows []sqlTransaction
	err := t.db.Where("user_id = ? AND account_id = ?", ownerID, accountID).
		Order("date DESC, created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTransactions(rows), nil
}

func toTransactions(rows []sqlTransaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, *toTransaction(&rows[i]))
	}
	return out
}

func (t *gormTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if err := t.db.Omit(clause.Associations).Create(fromTransaction(txn)).Error; err != nil {
		return fmt.Errorf("transaction insert failed: %w", mapMySQLError(err))
	}
	return nil
}

func (t *gormTx) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	row := fromTransaction(txn)
	res := t.db.Model(&sqlTransaction{}).
		Where("id = ? AND user_id = ?", txn.ID, txn.OwnerID).
		Select("account_id", "type", "amount", "date", "description", "category",
			"is_recurring", "recurring_interval", "next_recurring_date", "updated_at").
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("transaction update failed: %w", mapMySQLError(res.Error))
	}
	return nil
}

func (t *gormTx) DeleteTransactions(ctx context.Context, ownerID string, ids []string) (int64, error) {
	res := t.db.Where("user_id = ? AND id IN ?", ownerID, ids).Delete(&sqlTransaction{})
	if res.Error != nil {
		return 0, fmt.Errorf("transaction delete failed: %w", mapMySQLError(res.Error))
	}
	return res.RowsAffected, nil
}

var _ Store = (*MySQL)(nil)
