package errors

var (
	ErrInvoiceNotFound   = newError(KindNotFound, "INVOICE_NOT_FOUND", "invoice not found")
	ErrInvoiceNotPayable = newError(KindConflict, "INVOICE_NOT_PAYABLE", "invoice is not awaiting payment")
	ErrPaymentNotFound   = newError(KindNotFound, "PAYMENT_NOT_FOUND", "payment not found")
	ErrPaymentState      = newError(KindConflict, "PAYMENT_STATE", "payment is not in the expected state")
	ErrAmountMismatch    = newError(KindValidation, "AMOUNT_MISMATCH", "gateway amount does not match the payment")
	ErrInvalidSignature  = newError(KindValidation, "INVALID_SIGNATURE", "invalid webhook signature")
	ErrInvalidWebhook    = newError(KindValidation, "INVALID_WEBHOOK", "malformed webhook payload")
	ErrEmptyInvoice      = newError(KindValidation, "EMPTY_INVOICE", "invoice needs at least one item")
)
