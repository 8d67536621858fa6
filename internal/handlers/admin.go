package handlers

import (
	"context"

	"sayan/internal/models"
	"sayan/internal/services/referral"
	"sayan/internal/services/settings"
	"sayan/internal/services/wallet"
	"sayan/internal/services/withdrawal"
	"sayan/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// SettingsService is the part of settings.Service the admin API needs.
type SettingsService interface {
	Current(ctx context.Context) (*settings.Settings, error)
	Update(ctx context.Context, key, value string, updatedBy *uint) (*settings.Settings, error)
}

// AdminHandler serves finance operations. Every route sits behind
// AdminAuthMiddleware.
type AdminHandler struct {
	wallets     wallet.Service
	withdrawals withdrawal.Service
	referrals   referral.Service
	settings    SettingsService
}

func NewAdminHandler(wallets wallet.Service, withdrawals withdrawal.Service, referrals referral.Service, settings SettingsService) *AdminHandler {
	return &AdminHandler{
		wallets:     wallets,
		withdrawals: withdrawals,
		referrals:   referrals,
		settings:    settings,
	}
}

func (h *AdminHandler) ListWithdrawals(c *fiber.Ctx) error {
	p := utils.GetPagination(c, withdrawal.DefaultListLimit, withdrawal.MaxListLimit)
	items, total, err := h.withdrawals.List(c.UserContext(), withdrawal.Filter{
		Status: models.WithdrawalStatus(c.Query("status")),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return utils.Error(c, err)
	}

	p.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(items, p))
}

func (h *AdminHandler) GetWithdrawal(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid withdrawal id")
	}

	req, err := h.withdrawals.Get(c.UserContext(), id)
	if err != nil {
		return utils.Error(c, err)
	}
	logs, err := h.withdrawals.PayoutLogs(c.UserContext(), id)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"withdrawal": req, "payout_logs": logs})
}

func (h *AdminHandler) ApproveWithdrawal(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid withdrawal id")
	}

	req, err := h.withdrawals.Approve(c.UserContext(), id, claims.UserID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"withdrawal": req})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *AdminHandler) RejectWithdrawal(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid withdrawal id")
	}

	var input rejectRequest
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	req, err := h.withdrawals.Reject(c.UserContext(), id, claims.UserID, input.Reason)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"withdrawal": req})
}

// ProcessWithdrawal debits the wallet and submits the payout. A provider
// failure is compensated inside Process, so the response carries the
// failed request rather than an error.
func (h *AdminHandler) ProcessWithdrawal(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid withdrawal id")
	}

	req, err := h.withdrawals.Process(c.UserContext(), id)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"withdrawal": req})
}

func (h *AdminHandler) ReconcileWallet(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid wallet id")
	}

	report, err := h.wallets.Reconcile(c.UserContext(), id)
	if err != nil && report == nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{
		"report":     report,
		"consistent": err == nil,
	})
}

func (h *AdminHandler) ReconcileAll(c *fiber.Ctx) error {
	reports, err := h.wallets.ReconcileAll(c.UserContext())
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"inconsistent": reports})
}

type adjustmentRequest struct {
	OwnerType   models.OwnerType `json:"owner_type" validate:"required,oneof=student academy system"`
	OwnerID     uint             `json:"owner_id"`
	Direction   models.Direction `json:"direction" validate:"required,oneof=in out"`
	Amount      decimal.Decimal  `json:"amount"`
	Description string           `json:"description" validate:"required,max=255"`
}

// AdjustWallet posts a manual credit or debit. Credits are recorded as
// admin entries, debits as adjustments.
func (h *AdminHandler) AdjustWallet(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input adjustmentRequest
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	entry := wallet.Entry{
		Owner:       models.Owner{Type: input.OwnerType, ID: input.OwnerID},
		Amount:      input.Amount,
		SourceType:  models.SourceAdmin,
		SourceID:    "admin-" + utils.MustGenerateSecureCode(),
		Description: input.Description,
	}

	var tx *models.WalletTransaction
	if input.Direction == models.DirectionIn {
		tx, err = h.wallets.Credit(c.UserContext(), entry)
	} else {
		entry.SourceType = models.SourceAdjustment
		tx, err = h.wallets.Debit(c.UserContext(), entry)
	}
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"transaction": tx, "posted_by": claims.UserID})
}

type deactivateRequest struct {
	OwnerType models.OwnerType `json:"owner_type" validate:"required,oneof=student academy"`
	OwnerID   uint             `json:"owner_id" validate:"required"`
	Reason    string           `json:"reason" validate:"required,max=255"`
}

func (h *AdminHandler) DeactivateWallet(c *fiber.Ctx) error {
	var input deactivateRequest
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	owner := models.Owner{Type: input.OwnerType, ID: input.OwnerID}
	if err := h.wallets.Deactivate(c.UserContext(), owner, input.Reason); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"message": "Wallet deactivated"})
}

func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	current, err := h.settings.Current(c.UserContext())
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"settings": current})
}

type settingRequest struct {
	Value string `json:"value" validate:"required,max=64"`
}

func (h *AdminHandler) UpdateSetting(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input settingRequest
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	updated, err := h.settings.Update(c.UserContext(), c.Params("key"), input.Value, &claims.UserID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"settings": updated})
}

type awardRequest struct {
	ReferrerID     uint              `json:"referrer_id" validate:"required"`
	ReferredUserID uint              `json:"referred_user_id" validate:"required"`
	Type           models.RewardType `json:"type" validate:"required,oneof=signup first_purchase course_completed"`
}

func (h *AdminHandler) AwardReferral(c *fiber.Ctx) error {
	var input awardRequest
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	reward, err := h.referrals.Award(c.UserContext(), referral.Grant{
		ReferrerID:     input.ReferrerID,
		ReferredUserID: input.ReferredUserID,
		Type:           input.Type,
	})
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"reward": reward})
}

func (h *AdminHandler) PayReferral(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid reward id")
	}

	reward, err := h.referrals.PayReward(c.UserContext(), id)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"reward": reward})
}

func (h *AdminHandler) SweepReferrals(c *fiber.Ctx) error {
	res, err := h.referrals.Sweep(c.UserContext())
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, res)
}
