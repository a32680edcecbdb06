package webhook

import "github.com/imrishuroy/storefront-payments/internal/orders"

// MapStatus maps a NOWPayments payment_status to the order status.
// Unrecognized statuses (waiting, confirming, sending, partially_paid, ...)
// keep the order pending.
func MapStatus(paymentStatus string) orders.Status {
	switch paymentStatus {
	case "finished", "confirmed":
		return orders.StatusPaid
	case "failed", "expired":
		return orders.StatusCancelled
	default:
		return orders.StatusPending
	}
}
