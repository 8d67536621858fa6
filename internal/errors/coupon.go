package errors

var (
	ErrCouponNotFound          = newError(KindValidation, "COUPON_NOT_FOUND", "coupon code is not valid")
	ErrCouponInactive          = newError(KindValidation, "COUPON_INACTIVE", "coupon is not active")
	ErrCouponNotStarted        = newError(KindValidation, "COUPON_NOT_STARTED", "coupon is not valid yet")
	ErrCouponExpired           = newError(KindValidation, "COUPON_EXPIRED", "coupon has expired")
	ErrCouponUsageLimitReached = newError(KindConflict, "COUPON_USAGE_LIMIT_REACHED", "coupon usage limit reached")
	ErrCouponMinAmountNotMet   = newError(KindValidation, "COUPON_MIN_AMOUNT_NOT_MET", "cart total is below the coupon minimum")
	ErrCouponNotApplicable     = newError(KindValidation, "COUPON_NOT_APPLICABLE", "coupon cannot be used for this purchase")
	ErrCouponCodeTaken         = newError(KindConflict, "COUPON_CODE_TAKEN", "coupon code already exists")
	ErrRewardNotFound          = newError(KindNotFound, "REWARD_NOT_FOUND", "referral reward not found")
	ErrRewardExpired           = newError(KindConflict, "REWARD_EXPIRED", "referral reward has expired")
)
