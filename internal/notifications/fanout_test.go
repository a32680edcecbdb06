package notifications

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws/awstest"
	"github.com/imrishuroy/storefront-payments/internal/retry"
	"github.com/imrishuroy/storefront-payments/internal/users"
)

type stubAdmins struct {
	admins []users.User
	err    error
	calls  int
}

func (s *stubAdmins) ListAdmins(ctx context.Context) ([]users.User, error) {
	s.calls++
	return s.admins, s.err
}

func fastRetrier() *retry.Retrier {
	return retry.New(retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}, nil)
}

func newTestFanOut(admins AdminLister) (*FanOut, *Store, *awstest.Dynamo) {
	db := awstest.NewDynamo().AddTable("notifications", "notification_id")
	store := NewStore(db, "notifications")
	f := NewFanOut(admins, store, fastRetrier(), nil, zap.NewNop())
	f.nowFunc = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return f, store, db
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Payment Confirmed", Title(TypePaymentConfirmed))
	assert.Equal(t, "New Order", Title(TypeNewOrder))
	assert.Equal(t, "Payment Failed", Title(TypePaymentFailed))
	assert.Equal(t, "Refund Requested", Title(TypeRefundRequested))
	assert.Equal(t, "Notification", Title("something_else"))
}

func TestSend_OneRecordPerAdmin(t *testing.T) {
	admins := &stubAdmins{admins: []users.User{{UserID: "a1", IsAdmin: true}, {UserID: "a2", IsAdmin: true}}}
	f, store, db := newTestFanOut(admins)

	n, err := f.Send(context.Background(), Event{
		Type:     TypePaymentConfirmed,
		OrderID:  "o1",
		Message:  "Crypto payment confirmed for order #o1",
		Metadata: map[string]interface{}{"paymentId": "p1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, db.Len("notifications"))
	assert.Equal(t, 1, db.Calls("BatchWriteItem"))

	list, err := store.ListForUser(context.Background(), "a1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, "Payment Confirmed", got.Title)
	assert.Equal(t, "o1", got.OrderID)
	assert.False(t, got.Read)
	assert.Equal(t, "p1", got.Metadata["paymentId"])
}

func TestSend_EventIDMakesRedeliveryIdempotent(t *testing.T) {
	admins := &stubAdmins{admins: []users.User{{UserID: "a1"}, {UserID: "a2"}}}
	f, store, db := newTestFanOut(admins)
	ctx := context.Background()

	ev := Event{EventID: "nowpayments:p1:finished", Type: TypePaymentConfirmed, OrderID: "o1"}
	_, err := f.Send(ctx, ev)
	require.NoError(t, err)

	list, err := store.ListForUser(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	updated, err := store.MarkRead(ctx, "a1", []string{list[0].NotificationID})
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	f.nowFunc = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	n, err := f.Send(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 2, db.Len("notifications"))
	assert.Zero(t, db.Calls("BatchWriteItem"))
	list, err = store.ListForUser(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read, "redelivery must keep the read flag")
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), list[0].CreatedAt.UTC())
}

func TestStore_InsertNewSkipsExisting(t *testing.T) {
	db := awstest.NewDynamo().AddTable("notifications", "notification_id")
	s := NewStore(db, "notifications")
	ctx := context.Background()

	n, err := s.InsertNew(ctx, []Notification{{NotificationID: "n1", UserID: "a1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.InsertNew(ctx, []Notification{{NotificationID: "n1", UserID: "a1"}, {NotificationID: "n2", UserID: "a1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, db.Len("notifications"))

	db.FailWith("PutItem", errors.New("throttled"))
	_, err = s.InsertNew(ctx, []Notification{{NotificationID: "n3"}})
	assert.Error(t, err)
}

func TestSend_ChunksLargeAdminLists(t *testing.T) {
	var list []users.User
	for i := 0; i < 60; i++ {
		list = append(list, users.User{UserID: fmt.Sprintf("a%02d", i)})
	}
	f, _, db := newTestFanOut(&stubAdmins{admins: list})

	n, err := f.Send(context.Background(), Event{Type: TypeNewOrder, OrderID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, 60, n)
	assert.Equal(t, 3, db.Calls("BatchWriteItem"))
	assert.Equal(t, 60, db.Len("notifications"))
}

func TestSend_AdminLookupFailed(t *testing.T) {
	admins := &stubAdmins{err: errors.New("scan throttled")}
	f, _, db := newTestFanOut(admins)

	_, err := f.Send(context.Background(), Event{Type: TypeNewOrder})
	assert.ErrorIs(t, err, ErrAdminLookupFailed)
	assert.Equal(t, 3, admins.calls)
	assert.Equal(t, 0, db.Calls("BatchWriteItem"))
}

func TestSend_AdminLookupPermanentErrorNotRetried(t *testing.T) {
	msg := "users table missing"
	admins := &stubAdmins{err: &types.ResourceNotFoundException{Message: &msg}}
	f, _, _ := newTestFanOut(admins)

	_, err := f.Send(context.Background(), Event{Type: TypeNewOrder})
	assert.ErrorIs(t, err, ErrAdminLookupFailed)
	assert.Equal(t, 1, admins.calls)
}

func TestSend_InsertFailed(t *testing.T) {
	f, _, db := newTestFanOut(&stubAdmins{admins: []users.User{{UserID: "a1"}}})
	db.FailWith("BatchWriteItem", errors.New("provisioned throughput exceeded"))

	err := f.Notify(context.Background(), Event{Type: TypePaymentConfirmed})
	assert.ErrorIs(t, err, ErrNotificationInsertFailed)
}

func TestSend_NoAdmins(t *testing.T) {
	f, _, db := newTestFanOut(&stubAdmins{})

	n, err := f.Send(context.Background(), Event{Type: TypeNewOrder})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, db.Calls("BatchWriteItem"))
}

func TestStore_MarkReadOnlyOwnRecords(t *testing.T) {
	db := awstest.NewDynamo().AddTable("notifications", "notification_id")
	for _, n := range []Notification{
		{NotificationID: "n1", UserID: "a1"},
		{NotificationID: "n2", UserID: "a1"},
		{NotificationID: "n3", UserID: "a2"},
	} {
		item, err := attributevalue.MarshalMap(n)
		require.NoError(t, err)
		db.Seed("notifications", item)
	}
	s := NewStore(db, "notifications")

	updated, err := s.MarkRead(context.Background(), "a1", []string{"n1", "n3", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	list, err := s.ListForUser(context.Background(), "a1", 0)
	require.NoError(t, err)
	read := map[string]bool{}
	for _, n := range list {
		read[n.NotificationID] = n.Read
	}
	assert.Equal(t, map[string]bool{"n1": true, "n2": false}, read)
	assert.Nil(t, db.Item("notifications", "missing"))
}

func TestStore_ListForUserNewestFirst(t *testing.T) {
	db := awstest.NewDynamo().AddTable("notifications", "notification_id")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "newest", "mid"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		item, err := attributevalue.MarshalMap(Notification{NotificationID: id, UserID: "a1", CreatedAt: base.Add(offsets[i])})
		require.NoError(t, err)
		db.Seed("notifications", item)
	}

	list, err := NewStore(db, "notifications").ListForUser(context.Background(), "a1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newest", list[0].NotificationID)
	assert.Equal(t, "mid", list[1].NotificationID)
}

func TestQueueNotifier(t *testing.T) {
	q := &awstest.SQS{}
	n := NewQueueNotifier(awsPublisher(q), zap.NewNop())

	err := n.Notify(context.Background(), Event{Type: TypeNewOrder, OrderID: "o9", Message: "New order #o9"})
	require.NoError(t, err)

	bodies := q.Bodies()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], `"type":"new_order"`)
	assert.Contains(t, bodies[0], `"event_id":"`)
	assert.Contains(t, q.Sent[0].MessageAttributes, "event_type")
}
