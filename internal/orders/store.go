package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/storefront-payments/internal/aws"
)

var (
	// ErrOrderNotFound is returned by writes that require an existing order.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusMismatch means the order was not in the expected status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrInvalidTransition means the requested admin transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTerminalState means the order already sits in a different terminal status.
	ErrTerminalState = errors.New("order is in a terminal state")
	// ErrStaleUpdate means a provider callback would move the order backwards.
	ErrStaleUpdate = errors.New("payment update would move order backwards")
	// ErrNotPending means a payment intent was attempted on an order that is no longer pending.
	ErrNotPending = errors.New("order is not pending")
	// ErrOrderExists is returned by Create for a duplicate order id.
	ErrOrderExists = errors.New("order already exists")
	// ErrIdempotencyConflict means the idempotency key of a transactional create is taken.
	ErrIdempotencyConflict = errors.New("idempotency key already used")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) stamp(o *Order) {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = StatusPending
	}
}

// Create stores a new order. It fails with ErrOrderExists if order_id is taken.
func (s *Store) Create(ctx context.Context, order Order) error {
	s.stamp(&order)
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrOrderExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in the orders table (with ConditionExpression attribute_not_exists(order_id))
//
// idempotencyItem must marshal to a map carrying idempotency_key. An
// expires_at TTL is added when absent and ttlWindow > 0.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	s.stamp(&order)
	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			if len(tce.CancellationReasons) > 1 && reasonCode(tce.CancellationReasons[1]) == "ConditionalCheckFailed" &&
				reasonCode(tce.CancellationReasons[0]) != "ConditionalCheckFailed" {
				return ErrOrderExists
			}
			return fmt.Errorf("%w: %v", ErrIdempotencyConflict, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       orderKey(orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ApplyPaymentIntent writes payment_id, payment_status, payment_method and
// payment_details in one update, overwriting a previous intent. The order
// must exist and still be pending.
func (s *Store) ApplyPaymentIntent(ctx context.Context, orderID string, intent PaymentIntent) error {
	details, err := marshalDetails(intent.Details)
	if err != nil {
		return err
	}
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 orderKey(orderID),
		UpdateExpression:    awsString("SET payment_id = :pid, payment_status = :ps, payment_method = :pm, payment_details = :pd, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(order_id) AND #s = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid":     &types.AttributeValueMemberS{Value: intent.PaymentID},
			":ps":      &types.AttributeValueMemberS{Value: intent.PaymentStatus},
			":pm":      &types.AttributeValueMemberS{Value: string(intent.Method)},
			":pd":      details,
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
			":ua":      &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return s.explainConditionFailure(ctx, orderID, ErrNotPending)
		}
		return fmt.Errorf("update item (payment intent): %w", err)
	}
	return nil
}

// ApplyPaymentUpdate overwrites status, payment_status and payment_details
// from a provider callback. Replaying the same update leaves the same state.
// The stored status must be one the callback may move forward from (see
// callbackSources). Otherwise nothing changes and the error is
// ErrTerminalState for completed or cancelled orders, ErrStaleUpdate for the rest.
func (s *Store) ApplyPaymentUpdate(ctx context.Context, orderID string, update PaymentUpdate) error {
	sources, ok := callbackSources[update.Status]
	if !ok {
		return fmt.Errorf("%w: callback status %q", ErrInvalidTransition, update.Status)
	}
	details, err := marshalDetails(update.Details)
	if err != nil {
		return err
	}

	values := map[string]types.AttributeValue{
		":new": &types.AttributeValueMemberS{Value: string(update.Status)},
		":ps":  &types.AttributeValueMemberS{Value: update.PaymentStatus},
		":pd":  details,
		":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
	}
	placeholders := make([]string, 0, len(sources))
	for i, st := range sources {
		ph := fmt.Sprintf(":from%d", i)
		values[ph] = &types.AttributeValueMemberS{Value: string(st)}
		placeholders = append(placeholders, ph)
	}

	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 orderKey(orderID),
		UpdateExpression:    awsString("SET #s = :new, payment_status = :ps, payment_details = :pd, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(order_id) AND #s IN (" + strings.Join(placeholders, ", ") + ")"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: values,
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			o, getErr := s.Get(ctx, orderID)
			switch {
			case getErr != nil:
				return fmt.Errorf("conditional write failed, re-read: %w", getErr)
			case o == nil:
				return ErrOrderNotFound
			case o.Status.IsTerminal():
				return fmt.Errorf("%w (status %s)", ErrTerminalState, o.Status)
			default:
				return fmt.Errorf("%w: %s -> %s", ErrStaleUpdate, o.Status, update.Status)
			}
		}
		return fmt.Errorf("update item (payment update): %w", err)
	}
	return nil
}

// UpdateStatus conditionally moves the order from expected to newStatus.
// The move must be an allowed admin transition. Returns ErrStatusMismatch if
// the stored status is not expected, ErrOrderNotFound if there is no order.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expectedStatus, newStatus Status) error {
	if !CanTransition(expectedStatus, newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expectedStatus, newStatus)
	}
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
			":expected": &types.AttributeValueMemberS{Value: string(expectedStatus)},
			":ua":       &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return s.explainConditionFailure(ctx, orderID, ErrStatusMismatch)
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ConfirmManualPayment marks a pending PayPal friends-and-family order as paid.
// Returns ErrStatusMismatch if the order is not pending or not paid that way.
func (s *Store) ConfirmManualPayment(ctx context.Context, orderID string) error {
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 orderKey(orderID),
		UpdateExpression:    awsString("SET #s = :paid, payment_status = :ps, updated_at = :ua"),
		ConditionExpression: awsString("#s = :pending AND payment_method = :pm"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid":    &types.AttributeValueMemberS{Value: string(StatusPaid)},
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
			":pm":      &types.AttributeValueMemberS{Value: string(MethodPayPalFF)},
			":ps":      &types.AttributeValueMemberS{Value: PaymentStatusManualConfirmed},
			":ua":      &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return s.explainConditionFailure(ctx, orderID, ErrStatusMismatch)
		}
		return fmt.Errorf("update item (confirm manual payment): %w", err)
	}
	return nil
}

// explainConditionFailure distinguishes a missing order from an order in
// the wrong state after a conditional write fails.
func (s *Store) explainConditionFailure(ctx context.Context, orderID string, stateErr error) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("conditional write failed, re-read: %w", err)
	}
	if o == nil {
		return ErrOrderNotFound
	}
	return fmt.Errorf("%w (status %s)", stateErr, o.Status)
}

func marshalDetails(details map[string]interface{}) (types.AttributeValue, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	av, err := attributevalue.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal payment details: %w", err)
	}
	return av, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func reasonCode(r types.CancellationReason) string {
	if r.Code == nil {
		return ""
	}
	return *r.Code
}

func awsString(s string) *string { return &s }
