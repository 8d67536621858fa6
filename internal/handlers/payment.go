package handlers

import (
	"errors"

	apperrors "sayan/internal/errors"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/coupon"
	"sayan/internal/services/payment"
	"sayan/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// PaymentHandler serves checkout: invoices, payments and coupons.
type PaymentHandler struct {
	payments payment.Service
	coupons  coupon.Service
}

func NewPaymentHandler(payments payment.Service, coupons coupon.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments, coupons: coupons}
}

func studentClaims(c *fiber.Ctx) (*models.UserClaims, bool) {
	claims, err := extractUserClaims(c)
	if err != nil || claims.Role != models.RoleStudent || claims.StudentID == 0 {
		return nil, false
	}
	return claims, true
}

// canSee reports whether the caller is a party to the invoice or payment.
func canSee(claims *models.UserClaims, studentID, academyID uint) bool {
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent:
		return claims.StudentID == studentID
	case models.RoleAcademy:
		return claims.AcademyID == academyID
	}
	return false
}

func (h *PaymentHandler) CreateInvoice(c *fiber.Ctx) error {
	claims, ok := studentClaims(c)
	if !ok {
		return utils.Forbidden(c, "Only students can check out")
	}

	var input payment.InvoiceInput
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}
	input.StudentID = claims.StudentID

	invoice, err := h.payments.CreateInvoice(c.UserContext(), input)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"invoice": invoice})
}

func (h *PaymentHandler) GetInvoice(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid invoice id")
	}

	invoice, err := h.payments.GetInvoice(c.UserContext(), id)
	if err != nil {
		return utils.Error(c, err)
	}
	if !canSee(claims, invoice.StudentID, invoice.AcademyID) {
		return utils.NotFound(c, "invoice not found")
	}
	return utils.Success(c, fiber.Map{"invoice": invoice})
}

func (h *PaymentHandler) StartPayment(c *fiber.Ctx) error {
	claims, ok := studentClaims(c)
	if !ok {
		return utils.Forbidden(c, "Only students can pay invoices")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid invoice id")
	}

	var input payment.PaymentInput
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}
	input.InvoiceID = id
	input.StudentID = claims.StudentID

	p, err := h.payments.StartPayment(c.UserContext(), input)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"payment": p})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid payment id")
	}

	p, err := h.payments.GetPayment(c.UserContext(), id)
	if err != nil {
		return utils.Error(c, err)
	}
	if !canSee(claims, p.StudentID, p.AcademyID) {
		return utils.NotFound(c, "payment not found")
	}
	return utils.Success(c, fiber.Map{"payment": p})
}

type couponCheck struct {
	Code      string          `json:"code" validate:"required,max=32"`
	AcademyID uint            `json:"academy_id" validate:"required"`
	Total     decimal.Decimal `json:"total"`
}

func (h *PaymentHandler) ValidateCoupon(c *fiber.Ctx) error {
	claims, ok := studentClaims(c)
	if !ok {
		return utils.Forbidden(c, "Only students can apply coupons")
	}

	var input couponCheck
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	res, err := h.coupons.Validate(c.UserContext(), input.Code, coupon.Purchase{
		StudentID: claims.StudentID,
		AcademyID: input.AcademyID,
		Total:     input.Total,
	})
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, res)
}

func (h *PaymentHandler) CreateCoupon(c *fiber.Ctx) error {
	_, owner, err := extractOwner(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input coupon.CreateInput
	if handled, err := utils.BindAndValidate(c, &input); handled {
		return err
	}

	created, err := h.coupons.Create(c.UserContext(), owner, input)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"coupon": created})
}

// checkoutScope limits a listing to what the caller is a party to. Admins may
// narrow by ?student_id= and ?academy_id=.
func checkoutScope(c *fiber.Ctx) (repositories.CheckoutFilter, error) {
	claims, err := extractUserClaims(c)
	if err != nil {
		return repositories.CheckoutFilter{}, err
	}

	filter := repositories.CheckoutFilter{Status: c.Query("status")}
	if filter.From, err = utils.QueryTime(c, "from", false); err != nil {
		return filter, apperrors.ErrValidation.WithMessage("%s", err.Error())
	}
	if filter.To, err = utils.QueryTime(c, "to", true); err != nil {
		return filter, apperrors.ErrValidation.WithMessage("%s", err.Error())
	}

	switch claims.Role {
	case models.RoleStudent:
		filter.StudentID = claims.StudentID
	case models.RoleAcademy:
		filter.AcademyID = claims.AcademyID
	case models.RoleAdmin:
		if filter.StudentID, err = utils.QueryUint(c, "student_id"); err != nil {
			return filter, apperrors.ErrValidation.WithMessage("%s", err.Error())
		}
		if filter.AcademyID, err = utils.QueryUint(c, "academy_id"); err != nil {
			return filter, apperrors.ErrValidation.WithMessage("%s", err.Error())
		}
	default:
		return filter, fiber.ErrForbidden
	}
	return filter, nil
}

func (h *PaymentHandler) scopeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, fiber.ErrUnauthorized):
		return utils.Unauthorized(c, "invalid claims")
	case errors.Is(err, fiber.ErrForbidden):
		return utils.Forbidden(c, "Access denied")
	}
	return utils.Error(c, err)
}

func (h *PaymentHandler) ListInvoices(c *fiber.Ctx) error {
	filter, err := checkoutScope(c)
	if err != nil {
		return h.scopeError(c, err)
	}

	p := utils.GetPagination(c, defaultPageSize, maxPageSize)
	invoices, total, err := h.payments.ListInvoices(c.UserContext(), filter, p.Limit, p.Offset)
	if err != nil {
		return utils.Error(c, err)
	}
	p.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(invoices, p))
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	filter, err := checkoutScope(c)
	if err != nil {
		return h.scopeError(c, err)
	}

	p := utils.GetPagination(c, defaultPageSize, maxPageSize)
	payments, total, err := h.payments.ListPayments(c.UserContext(), filter, p.Limit, p.Offset)
	if err != nil {
		return utils.Error(c, err)
	}
	p.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(payments, p))
}

// CompletedPayments lists the academy's settled payments with commission
// totals.
func (h *PaymentHandler) CompletedPayments(c *fiber.Ctx) error {
	if claims, err := extractUserClaims(c); err == nil && claims.Role == models.RoleStudent {
		return utils.Forbidden(c, "Only academies have settlements")
	}
	filter, err := checkoutScope(c)
	if err != nil {
		return h.scopeError(c, err)
	}
	if filter.AcademyID == 0 {
		return utils.BadRequest(c, "academy_id is required")
	}
	filter.StudentID = 0
	filter.Status = string(models.PaymentCompleted)

	p := utils.GetPagination(c, defaultPageSize, maxPageSize)
	payments, total, err := h.payments.ListPayments(c.UserContext(), filter, p.Limit, p.Offset)
	if err != nil {
		return utils.Error(c, err)
	}
	summary, err := h.payments.SettlementSummary(c.UserContext(), filter.AcademyID)
	if err != nil {
		return utils.Error(c, err)
	}

	p.SetTotal(total)
	return utils.Success(c, fiber.Map{
		"data":       payments,
		"pagination": p,
		"summary":    summary,
	})
}
