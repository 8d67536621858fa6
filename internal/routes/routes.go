// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"net/http"

	"sayan/internal/handlers"
	"sayan/internal/middleware"
	"sayan/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// Handlers bundles everything SetupRoutes mounts.
type Handlers struct {
	Health     *handlers.HealthHandler
	Wallet     *handlers.WalletHandler
	Withdrawal *handlers.WithdrawalHandler
	Payment    *handlers.PaymentHandler
	Webhook    *handlers.WebhookHandler
	Admin      *handlers.AdminHandler
	Metrics    http.Handler
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, h Handlers, auth *middleware.AuthMiddleware) {
	app.Get("/health", h.Health.HealthCheck)
	app.Get("/health/cache", h.Health.CacheStats)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics))
	}

	api := app.Group("/api")

	// Provider callbacks authenticate by signature.
	webhooks := api.Group("/webhooks")
	webhooks.Post("/payments", h.Webhook.PaymentWebhook)
	webhooks.Post("/payouts", h.Webhook.PayoutWebhook)

	protected := api.Group("", auth.Handler)

	setupWalletRoutes(protected, h)
	setupCheckoutRoutes(protected, h)
	setupAdminRoutes(protected, h)
}

func setupWalletRoutes(router fiber.Router, h Handlers) {
	wallet := router.Group("/wallet", middleware.HasPermission(models.PermissionWalletRead))
	wallet.Get("/", h.Wallet.GetWallet)
	wallet.Get("/transactions", h.Wallet.GetTransactions)
	wallet.Get("/stats", h.Wallet.GetStats)
	wallet.Get("/completed-payments", h.Payment.CompletedPayments)

	withdrawals := router.Group("/withdrawals", middleware.HasPermission(models.PermissionWithdrawalWrite))
	withdrawals.Post("/", h.Withdrawal.RequestWithdrawal)
	withdrawals.Get("/", h.Withdrawal.ListWithdrawals)
	withdrawals.Get("/:id", h.Withdrawal.GetWithdrawal)

	accounts := router.Group("/bank-accounts", middleware.HasPermission(models.PermissionBankAccountWrite))
	accounts.Post("/", h.Withdrawal.CreateBankAccount)
	accounts.Get("/", h.Withdrawal.ListBankAccounts)
	accounts.Delete("/:id", h.Withdrawal.DeactivateBankAccount)
}

func setupCheckoutRoutes(router fiber.Router, h Handlers) {
	router.Post("/coupons/validate", middleware.HasPermission(models.PermissionCheckout), h.Payment.ValidateCoupon)
	router.Post("/coupons", middleware.HasPermission(models.PermissionCouponWrite), h.Payment.CreateCoupon)

	checkout := router.Group("/checkout")
	checkout.Post("/invoices", middleware.HasPermission(models.PermissionCheckout), h.Payment.CreateInvoice)
	checkout.Get("/invoices", h.Payment.ListInvoices)
	checkout.Get("/invoices/:id", h.Payment.GetInvoice)
	checkout.Post("/invoices/:id/payments", middleware.HasPermission(models.PermissionCheckout), h.Payment.StartPayment)
	checkout.Get("/payments", h.Payment.ListPayments)
	checkout.Get("/payments/:id", h.Payment.GetPayment)
}

func setupAdminRoutes(router fiber.Router, h Handlers) {
	admin := router.Group("/admin", middleware.AdminAuthMiddleware)

	withdrawals := admin.Group("/withdrawals", middleware.HasPermission(models.PermissionFinanceApprove))
	withdrawals.Get("/", h.Admin.ListWithdrawals)
	withdrawals.Get("/:id", h.Admin.GetWithdrawal)
	withdrawals.Post("/:id/approve", h.Admin.ApproveWithdrawal)
	withdrawals.Post("/:id/reject", h.Admin.RejectWithdrawal)
	withdrawals.Post("/:id/process", h.Admin.ProcessWithdrawal)

	finance := admin.Group("", middleware.HasPermission(models.PermissionFinanceAdmin))
	finance.Post("/wallets/credit", h.Admin.AdjustWallet)
	finance.Post("/wallets/deactivate", h.Admin.DeactivateWallet)
	finance.Post("/wallets/reconcile", h.Admin.ReconcileAll)
	finance.Post("/wallets/:id/reconcile", h.Admin.ReconcileWallet)
	finance.Post("/coupons", h.Payment.CreateCoupon)
	finance.Get("/settings", h.Admin.GetSettings)
	finance.Put("/settings/:key", h.Admin.UpdateSetting)
	finance.Post("/referrals", h.Admin.AwardReferral)
	finance.Post("/referrals/sweep", h.Admin.SweepReferrals)
	finance.Post("/referrals/:id/pay", h.Admin.PayReferral)
}
