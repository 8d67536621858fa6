package bankaccount

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/payout"
)

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)

// Sealer is satisfied by utils.Sealer.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type CreateInput struct {
	HolderName string `json:"holder_name" validate:"required,max=120"`
	BankName   string `json:"bank_name" validate:"required,max=120"`
	IBAN       string `json:"iban" validate:"required"`
	SwiftCode  string `json:"swift_code" validate:"omitempty,min=8,max=11"`
	IsDefault  bool   `json:"is_default"`
}

type Service interface {
	Create(ctx context.Context, owner models.Owner, in CreateInput) (*models.BankAccount, error)
	List(ctx context.Context, owner models.Owner) ([]models.BankAccount, error)
	Deactivate(ctx context.Context, owner models.Owner, id uint) error
	// Usable returns the account if it belongs to owner and is active.
	Usable(ctx context.Context, store repositories.Store, owner models.Owner, id uint) (*models.BankAccount, error)
	Destination(ctx context.Context, id uint) (payout.Destination, error)
}

type service struct {
	store  repositories.Store
	sealer Sealer
	logger logger.Logger
}

func NewService(store repositories.Store, sealer Sealer, log logger.Logger) Service {
	return &service{store: store, sealer: sealer, logger: log}
}

// NormalizeIBAN strips spaces and upper-cases.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}

func (s *service) Create(ctx context.Context, owner models.Owner, in CreateInput) (*models.BankAccount, error) {
	if !owner.Valid() || owner.Type == models.OwnerSystem {
		return nil, apperrors.ErrInvalidOwner
	}
	iban := NormalizeIBAN(in.IBAN)
	if !ibanPattern.MatchString(iban) {
		return nil, apperrors.ErrValidation.WithMessage("invalid IBAN")
	}

	sealed, err := s.sealer.Seal(iban)
	if err != nil {
		return nil, fmt.Errorf("failed to seal account number: %w", err)
	}

	account := &models.BankAccount{
		OwnerType:  owner.Type,
		OwnerID:    owner.ID,
		HolderName: strings.TrimSpace(in.HolderName),
		BankName:   strings.TrimSpace(in.BankName),
		SealedIBAN: sealed,
		IBANLast4:  iban[len(iban)-4:],
		SwiftCode:  strings.ToUpper(strings.TrimSpace(in.SwiftCode)),
		IsDefault:  in.IsDefault,
		IsActive:   true,
	}

	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		existing, err := tx.BankAccounts().ListByOwner(ctx, owner)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			account.IsDefault = true
		}
		if account.IsDefault {
			if err := tx.BankAccounts().ClearDefault(ctx, owner); err != nil {
				return err
			}
		}
		return tx.BankAccounts().Create(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bank_account", "bank account added", map[string]interface{}{
		"owner":      owner.String(),
		"account_id": account.ID,
		"last4":      account.IBANLast4,
	})
	return account, nil
}

func (s *service) List(ctx context.Context, owner models.Owner) ([]models.BankAccount, error) {
	return s.store.BankAccounts().ListByOwner(ctx, owner)
}

func (s *service) Deactivate(ctx context.Context, owner models.Owner, id uint) error {
	if _, err := s.owned(ctx, s.store, owner, id); err != nil {
		return err
	}
	return s.store.BankAccounts().SetActive(ctx, id, false)
}

func (s *service) Usable(ctx context.Context, store repositories.Store, owner models.Owner, id uint) (*models.BankAccount, error) {
	account, err := s.owned(ctx, store, owner, id)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperrors.ErrBankAccountInactive
	}
	return account, nil
}

func (s *service) owned(ctx context.Context, store repositories.Store, owner models.Owner, id uint) (*models.BankAccount, error) {
	account, err := store.BankAccounts().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrBankAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	// Another owner's account is reported as missing.
	if account.Owner() != owner {
		return nil, apperrors.ErrBankAccountNotFound
	}
	return account, nil
}

func (s *service) Destination(ctx context.Context, id uint) (payout.Destination, error) {
	account, err := s.store.BankAccounts().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return payout.Destination{}, apperrors.ErrBankAccountNotFound
	}
	if err != nil {
		return payout.Destination{}, err
	}
	iban, err := s.sealer.Open(account.SealedIBAN)
	if err != nil {
		return payout.Destination{}, fmt.Errorf("failed to open account %d: %w", id, err)
	}
	return payout.Destination{
		AccountID:       account.ID,
		HolderName:      account.HolderName,
		BankName:        account.BankName,
		IBAN:            iban,
		SwiftCode:       account.SwiftCode,
		ProviderAccount: account.PayoutDestination,
	}, nil
}
