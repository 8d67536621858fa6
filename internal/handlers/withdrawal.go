package handlers

import (
	"sayan/internal/models"
	"sayan/internal/services/bankaccount"
	"sayan/internal/services/withdrawal"
	"sayan/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type WithdrawalHandler struct {
	withdrawals withdrawal.Service
	accounts    bankaccount.Service
}

func NewWithdrawalHandler(withdrawals withdrawal.Service, accounts bankaccount.Service) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, accounts: accounts}
}

type withdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankAccountID uint            `json:"bank_account_id" validate:"required"`
}

func (h *WithdrawalHandler) RequestWithdrawal(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input withdrawalRequest
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	req, err := h.withdrawals.Request(c.UserContext(), owner, input.Amount, input.BankAccountID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"withdrawal": req})
}

func (h *WithdrawalHandler) ListWithdrawals(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	p := utils.GetPagination(c, withdrawal.DefaultListLimit, withdrawal.MaxListLimit)
	items, total, err := h.withdrawals.List(c.UserContext(), withdrawal.Filter{
		Owner:  &owner,
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

func (h *WithdrawalHandler) GetWithdrawal(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid withdrawal id")
	}

	req, err := h.withdrawals.Get(c.UserContext(), id)
	if err != nil {
		return utils.Error(c, err)
	}
	if req.Requester() != owner {
		return utils.NotFound(c, "withdrawal request not found")
	}
	return utils.Success(c, fiber.Map{"withdrawal": req})
}

func (h *WithdrawalHandler) CreateBankAccount(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input bankaccount.CreateInput
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	account, err := h.accounts.Create(c.UserContext(), owner, input)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"bank_account": account})
}

func (h *WithdrawalHandler) ListBankAccounts(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	accounts, err := h.accounts.List(c.UserContext(), owner)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"bank_accounts": accounts})
}

func (h *WithdrawalHandler) DeactivateBankAccount(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid bank account id")
	}

	if err := h.accounts.Deactivate(c.UserContext(), owner, id); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"message": "Bank account deactivated"})
}
