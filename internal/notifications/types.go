package notifications

import (
	"context"
	"time"
)

// Type names an admin notification event.
type Type string

const (
	TypePaymentConfirmed Type = "payment_confirmed"
	TypeNewOrder         Type = "new_order"
	TypePaymentFailed    Type = "payment_failed"
	TypeRefundRequested  Type = "refund_requested"
)

// Title maps an event type to the title shown to admins.
func Title(t Type) string {
	switch t {
	case TypePaymentConfirmed:
		return "Payment Confirmed"
	case TypeNewOrder:
		return "New Order"
	case TypePaymentFailed:
		return "Payment Failed"
	case TypeRefundRequested:
		return "Refund Requested"
	default:
		return "Notification"
	}
}

// Notification is one record per admin in the notifications table.
type Notification struct {
	NotificationID string                 `dynamodbav:"notification_id" json:"id"` // PK
	UserID         string                 `dynamodbav:"user_id" json:"user_id"`
	Type           Type                   `dynamodbav:"type" json:"type"`
	Title          string                 `dynamodbav:"title" json:"title"`
	Message        string                 `dynamodbav:"message" json:"message"`
	OrderID        string                 `dynamodbav:"order_id,omitempty" json:"order_id,omitempty"`
	Metadata       map[string]interface{} `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	Read           bool                   `dynamodbav:"read" json:"read"`
	CreatedAt      time.Time              `dynamodbav:"created_at" json:"created_at"`
}

// Event is broadcast to every admin. EventID, when set, makes delivery
// idempotent: re-sending the same event rewrites the same records.
type Event struct {
	EventID  string                 `json:"event_id,omitempty"`
	Type     Type                   `json:"type"`
	OrderID  string                 `json:"order_id"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Notifier delivers an Event to admins, directly or through a queue.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
