package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusPending       = "PENDING"
	OrderStatusInProgress    = "IN_PROGRESS"
	OrderStatusCompleted     = "COMPLETED"
	OrderStatusCancelled     = "CANCELLED"
	OrderStatusRefundPending = "REFUND_PENDING"
	OrderStatusRefunded      = "REFUNDED"
)

// OrderStatusCodes maps statuses to the numeric codes the legacy clients
// still display (1..6, in lifecycle order).
var OrderStatusCodes = map[string]int32{
	OrderStatusPending:       1,
	OrderStatusInProgress:    2,
	OrderStatusCompleted:     3,
	OrderStatusCancelled:     4,
	OrderStatusRefundPending: 5,
	OrderStatusRefunded:      6,
}

// IsValidOrderStatus reports whether s is a known order status.
func IsValidOrderStatus(s string) bool {
	_, ok := OrderStatusCodes[s]
	return ok
}

// ── Payment (CHECK constrained in DB) ──

const (
	PaymentMethodWechat = "WECHAT"
	PaymentMethodAlipay = "ALIPAY"
	PaymentMethodCash   = "CASH"
	PaymentMethodCard   = "CARD"
)

func IsValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodWechat, PaymentMethodAlipay, PaymentMethodCash, PaymentMethodCard:
		return true
	}
	return false
}

// ── Accounts (CHECK constrained in DB) ──

const (
	UserRoleAdmin = "ADMIN"
	UserRoleStaff = "STAFF"
)

func IsValidUserRole(s string) bool {
	return s == UserRoleAdmin || s == UserRoleStaff
}

// ── Configurable labels (no DB constraint) ──

const (
	UnitGram       = "g"
	UnitMilliliter = "ml"
	UnitPiece      = "pcs"
)
