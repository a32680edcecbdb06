package orders

import "time"

// Status is the normalized order state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether nothing may move the order to another status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// admin transitions
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusProcessing, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCompleted, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an admin may move an order from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// callbackSources lists, for each status a provider callback can map to, the
// stored statuses it may overwrite. A callback never moves an order back:
// a late pending cannot undo paid, and paid cannot undo processing.
var callbackSources = map[Status][]Status{
	StatusPending:   {StatusPending},
	StatusPaid:      {StatusPending, StatusPaid},
	StatusCancelled: {StatusPending, StatusPaid, StatusProcessing, StatusCancelled},
	StatusCompleted: {StatusPaid, StatusProcessing, StatusCompleted},
}

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

const (
	MethodCreditCard  PaymentMethod = "credit_card"
	MethodPayPalFF    PaymentMethod = "paypal_ff"
	MethodNOWPayments PaymentMethod = "nowpayments"
	MethodCrypto      PaymentMethod = "crypto"
	MethodMoneyMotion PaymentMethod = "money_motion"
)

// PaymentStatusManualConfirmed is recorded when an admin confirms a PayPal
// friends-and-family transfer by hand.
const PaymentStatusManualConfirmed = "confirmed_manually"

// ShippingAddress is optional; digital goods usually have none.
type ShippingAddress struct {
	Street     string `dynamodbav:"street,omitempty" json:"street,omitempty"`
	City       string `dynamodbav:"city" json:"city"`
	State      string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	PostalCode string `dynamodbav:"postal_code" json:"postal_code"`
	Country    string `dynamodbav:"country" json:"country"`
}

// Order is the item stored in the orders table.
type Order struct {
	OrderID         string                 `dynamodbav:"order_id" json:"order_id"` // PK
	UserID          string                 `dynamodbav:"user_id" json:"user_id"`
	ProductID       string                 `dynamodbav:"product_id" json:"product_id"`
	Amount          string                 `dynamodbav:"amount,omitempty" json:"amount,omitempty"` // decimal string
	Currency        string                 `dynamodbav:"currency,omitempty" json:"currency,omitempty"`
	ShippingAddress *ShippingAddress       `dynamodbav:"shipping_address,omitempty" json:"shipping_address,omitempty"`
	Status          Status                 `dynamodbav:"status" json:"status"`
	PaymentStatus   string                 `dynamodbav:"payment_status,omitempty" json:"payment_status,omitempty"`
	PaymentMethod   PaymentMethod          `dynamodbav:"payment_method,omitempty" json:"payment_method,omitempty"`
	PaymentID       string                 `dynamodbav:"payment_id,omitempty" json:"payment_id,omitempty"`
	PaymentDetails  map[string]interface{} `dynamodbav:"payment_details,omitempty" json:"payment_details,omitempty"`
	CreatedAt       time.Time              `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time              `dynamodbav:"updated_at" json:"updated_at"`
}

// PaymentIntent is what a successful payment initiation writes onto an order.
// All four fields are written together, replacing any earlier intent.
type PaymentIntent struct {
	Method        PaymentMethod
	PaymentID     string
	PaymentStatus string
	Details       map[string]interface{}
}

// PaymentUpdate is what an asynchronous provider callback writes onto an order.
type PaymentUpdate struct {
	Status        Status
	PaymentStatus string
	Details       map[string]interface{}
}
