package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrStateChanged = errors.New("row not in expected state")
	ErrDuplicate    = errors.New("record already exists")
)

// Store groups the finance repositories behind a single unit of work. A Store
// obtained inside ExecuteInTransaction shares that transaction across every
// repository it hands out.
type Store interface {
	Wallets() WalletRepository
	Withdrawals() WithdrawalRepository
	BankAccounts() BankAccountRepository
	Coupons() CouponRepository
	Referrals() ReferralRepository
	Invoices() InvoiceRepository
	Settings() SettingRepository

	ExecuteInTransaction(ctx context.Context, fn func(Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Wallets() WalletRepository           { return NewWalletRepository(s.db) }
func (s *gormStore) Withdrawals() WithdrawalRepository   { return &withdrawalRepository{db: s.db} }
func (s *gormStore) BankAccounts() BankAccountRepository { return &bankAccountRepository{db: s.db} }
func (s *gormStore) Coupons() CouponRepository           { return &couponRepository{db: s.db} }
func (s *gormStore) Referrals() ReferralRepository       { return &referralRepository{db: s.db} }
func (s *gormStore) Invoices() InvoiceRepository         { return &invoiceRepository{db: s.db} }
func (s *gormStore) Settings() SettingRepository         { return &settingRepository{db: s.db} }

func (s *gormStore) ExecuteInTransaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// transition performs a compare-and-set on the status column. Zero affected
// rows means another caller moved the row first.
func transition(db *gorm.DB, model interface{}, id uint, from, to string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	res := db.Model(model).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStateChanged
	}
	return nil
}
