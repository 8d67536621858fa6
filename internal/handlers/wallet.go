package handlers

import (
	"errors"
	"strconv"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/wallet"
	"sayan/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type WalletHandler struct {
	walletService wallet.Service
}

func NewWalletHandler(walletService wallet.Service) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
	}
}

// extractUserClaims is a helper function to reduce duplication
func extractUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, ok := c.Locals(utils.ClaimsKey).(*models.UserClaims)
	if !ok || claims == nil {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}

// extractOwner resolves the wallet owner the caller acts for.
func extractOwner(c *fiber.Ctx) (*models.UserClaims, models.Owner, error) {
	claims, err := extractUserClaims(c)
	if err != nil {
		return nil, models.Owner{}, err
	}
	owner, ok := claims.Owner()
	if !ok {
		return nil, models.Owner{}, fiber.ErrUnauthorized
	}
	return claims, owner, nil
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	balance, err := h.walletService.GetBalance(c.UserContext(), owner)
	if err != nil {
		return utils.Error(c, err)
	}

	// Wallets are created on first credit.
	w, err := h.walletService.GetWallet(c.UserContext(), owner)
	if err != nil && !errors.Is(err, apperrors.ErrWalletNotFound) {
		return utils.Error(c, err)
	}

	return utils.Success(c, fiber.Map{
		"wallet":  w,
		"balance": balance,
	})
}

func (h *WalletHandler) GetTransactions(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	filter := repositories.TransactionFilter{
		SourceType: models.SourceType(c.Query("source_type")),
		Direction:  models.Direction(c.Query("direction")),
	}
	if filter.From, err = utils.QueryTime(c, "from", false); err != nil {
		return utils.BadRequest(c, err.Error())
	}
	if filter.To, err = utils.QueryTime(c, "to", true); err != nil {
		return utils.BadRequest(c, err.Error())
	}

	p := utils.GetPagination(c, defaultPageSize, maxPageSize)
	txs, total, err := h.walletService.History(c.UserContext(), owner, filter, p.Limit, p.Offset)
	if err != nil {
		return utils.Error(c, err)
	}

	p.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(txs, p))
}

// statsRange resolves ?from=&to= or, failing that, ?period=day|week|month|year
// ending now. The default is the last month.
func statsRange(c *fiber.Ctx, now time.Time) (time.Time, time.Time, error) {
	from, err := utils.QueryTime(c, "from", false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := utils.QueryTime(c, "to", true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := now
	if to != nil {
		end = *to
	}
	if from != nil {
		return *from, end, nil
	}

	switch c.Query("period", "month") {
	case "day":
		return end.AddDate(0, 0, -1), end, nil
	case "week":
		return end.AddDate(0, 0, -7), end, nil
	case "month":
		return end.AddDate(0, -1, 0), end, nil
	case "year":
		return end.AddDate(-1, 0, 0), end, nil
	}
	return time.Time{}, time.Time{}, errors.New("period must be one of day, week, month, year")
}

func (h *WalletHandler) GetStats(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	from, to, err := statsRange(c, time.Now())
	if err != nil {
		return utils.BadRequest(c, err.Error())
	}

	stats, err := h.walletService.Stats(c.UserContext(), owner, from, to)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"stats": stats})
}
