package repositories

import (
	"context"
	"fmt"

	"sayan/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) CreateIfAbsent(ctx context.Context, owner models.Owner, currency string) error {
	wallet := &models.Wallet{
		OwnerType: owner.Type,
		OwnerID:   owner.ID,
		Currency:  currency,
		Status:    models.WalletActive,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
			DoNothing: true,
		}).
		Create(wallet).Error
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) getByOwner(db *gorm.DB, owner models.Owner) (*models.Wallet, error) {
	var wallet models.Wallet
	err := db.Where("owner_type = ? AND owner_id = ?", owner.Type, owner.ID).First(&wallet).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByOwner(ctx context.Context, owner models.Owner) (*models.Wallet, error) {
	return r.getByOwner(r.db.WithContext(ctx), owner)
}

func (r *walletRepository) GetByOwnerForUpdate(ctx context.Context, owner models.Owner) (*models.Wallet, error) {
	return r.getByOwner(forUpdate(r.db.WithContext(ctx)), owner)
}

func (r *walletRepository) GetByID(ctx context.Context, id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := forUpdate(r.db.WithContext(ctx)).First(&wallet, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &wallet, nil
}

func (r *walletRepository) UpdateBalance(ctx context.Context, walletID uint, balance decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", walletID).Update("balance", balance)
	if res.Error != nil {
		return fmt.Errorf("failed to update wallet balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *walletRepository) UpdateStatus(ctx context.Context, walletID uint, status models.WalletStatus, reason string) error {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", walletID).
		Updates(map[string]interface{}{"status": status, "status_reason": reason})
	if res.Error != nil {
		return fmt.Errorf("failed to update wallet status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *walletRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Wallet{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return ids, nil
}

func (r *walletRepository) AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}
	return nil
}

func (f TransactionFilter) apply(db *gorm.DB) *gorm.DB {
	if f.SourceType != "" {
		db = db.Where("source_type = ?", f.SourceType)
	}
	if f.Direction != "" {
		db = db.Where("direction = ?", f.Direction)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("created_at < ?", *f.To)
	}
	return db
}

func (r *walletRepository) ListTransactions(ctx context.Context, walletID uint, filter TransactionFilter, limit, offset int) ([]models.WalletTransaction, int64, error) {
	var total int64
	q := filter.apply(r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID))
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	var txs []models.WalletTransaction
	err := filter.apply(r.db.WithContext(ctx).Where("wallet_id = ?", walletID)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get transaction history: %w", err)
	}
	return txs, total, nil
}

func (r *walletRepository) AllTransactions(ctx context.Context, walletID uint, filter TransactionFilter) ([]models.WalletTransaction, error) {
	var txs []models.WalletTransaction
	err := filter.apply(r.db.WithContext(ctx).Where("wallet_id = ?", walletID)).Order("id ASC").Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet transactions: %w", err)
	}
	return txs, nil
}
