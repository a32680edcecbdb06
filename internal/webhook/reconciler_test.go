package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws/awstest"
	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/retry"
	"github.com/imrishuroy/storefront-payments/internal/users"
)

const secret = "ipn-secret"

type staticAdmins []users.User

func (s staticAdmins) ListAdmins(ctx context.Context) ([]users.User, error) { return s, nil }

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(ctx context.Context, ev notifications.Event) error {
	f.calls++
	return errors.New("notifications table unavailable")
}

type harness struct {
	rec    *Reconciler
	orders *orders.Store
	db     *awstest.Dynamo
}

func newHarness(t *testing.T, notifier notifications.Notifier) *harness {
	t.Helper()
	db := awstest.NewDynamo().
		AddTable("orders", "order_id").
		AddTable("notifications", "notification_id")
	store := orders.NewStore(db, "orders")

	if notifier == nil {
		notifier = notifications.NewFanOut(
			staticAdmins{{UserID: "admin-1", IsAdmin: true}, {UserID: "admin-2", IsAdmin: true}},
			notifications.NewStore(db, "notifications"),
			retry.New(retry.Policy{Attempts: 1}, nil),
			nil,
			zap.NewNop(),
		)
	}
	rec := NewReconciler(secret, store, notifier, nil, zap.NewNop())
	rec.nowFunc = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }
	return &harness{rec: rec, orders: store, db: db}
}

func (h *harness) seed(t *testing.T, o orders.Order) {
	t.Helper()
	item, err := attributevalue.MarshalMap(o)
	require.NoError(t, err)
	h.db.Seed("orders", item)
}

func deliver(h *harness, body string) (*Result, error) {
	return h.rec.Handle(context.Background(), []byte(body), Sign(secret, []byte(body)))
}

func TestMapStatus(t *testing.T) {
	cases := map[string]orders.Status{
		"finished":       orders.StatusPaid,
		"confirmed":      orders.StatusPaid,
		"failed":         orders.StatusCancelled,
		"expired":        orders.StatusCancelled,
		"waiting":        orders.StatusPending,
		"confirming":     orders.StatusPending,
		"partially_paid": orders.StatusPending,
		"":               orders.StatusPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), in)
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"order_id":"o1"}`)
	sig := Sign(secret, body)

	assert.True(t, Verify(secret, body, sig))
	assert.False(t, Verify(secret, []byte(`{"order_id":"o2"}`), sig))
	assert.False(t, Verify("other", body, sig))
	assert.False(t, Verify(secret, body, "not-hex"))
	assert.False(t, Verify("", body, Sign("", body)))
}

func TestHandle_FinishedMarksPaidAndNotifiesEachAdmin(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusPending})

	res, err := deliver(h, `{"order_id":"o1","payment_id":123,"payment_status":"finished","price_amount":10,"price_currency":"usd"}`)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, res.Status)
	assert.True(t, res.Notified)

	got, err := h.orders.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, got.Status)
	assert.Equal(t, "finished", got.PaymentStatus)
	assert.Equal(t, "123", got.PaymentDetails["paymentId"])
	assert.Equal(t, "10", got.PaymentDetails["priceAmount"])
	assert.Nil(t, got.PaymentDetails["payAmount"])

	assert.Equal(t, 2, h.db.Len("notifications"))
	list, err := notifications.NewStore(h.db, "notifications").ListForUser(context.Background(), "admin-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notifications.TypePaymentConfirmed, list[0].Type)
	assert.Equal(t, "Crypto payment confirmed for order #o1", list[0].Message)
}

func TestHandle_FailedCancelsWithoutNotification(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusPending})

	res, err := deliver(h, `{"order_id":"o1","payment_id":"p1","payment_status":"failed"}`)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, res.Status)
	assert.False(t, res.Notified)
	assert.Equal(t, 0, h.db.Len("notifications"))

	got, _ := h.orders.Get(context.Background(), "o1")
	assert.Equal(t, orders.StatusCancelled, got.Status)
}

func TestHandle_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusPending})
	body := `{"order_id":"o1","payment_id":77,"payment_status":"confirmed","pay_address":"addr","price_amount":"10.00","price_currency":"usd","pay_amount":0.0002,"pay_currency":"btc","updated_at":1714521600000}`

	_, err := deliver(h, body)
	require.NoError(t, err)
	first, _ := h.orders.Get(context.Background(), "o1")

	h.rec.nowFunc = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = deliver(h, body)
	require.NoError(t, err)
	second, _ := h.orders.Get(context.Background(), "o1")

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.PaymentStatus, second.PaymentStatus)
	assert.Equal(t, first.PaymentDetails, second.PaymentDetails)
	assert.Equal(t, "2024-05-01T00:00:00Z", second.PaymentDetails["updatedAt"])
	assert.Equal(t, 2, h.db.Len("notifications"), "redelivery must not duplicate notifications")
}

func TestHandle_SignatureErrorsNeverMutate(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusPending})
	body := []byte(`{"order_id":"o1","payment_status":"finished"}`)

	_, err := h.rec.Handle(context.Background(), body, "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = h.rec.Handle(context.Background(), body, Sign("wrong", body))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Zero(t, h.db.Calls("UpdateItem"))
	got, _ := h.orders.Get(context.Background(), "o1")
	assert.Equal(t, orders.StatusPending, got.Status)
}

func TestHandle_PayloadErrors(t *testing.T) {
	h := newHarness(t, nil)

	_, err := deliver(h, `{not json`)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = deliver(h, `{"payment_status":"finished"}`)
	assert.ErrorIs(t, err, ErrMissingOrderID)
}

func TestHandle_UnknownOrder(t *testing.T) {
	h := newHarness(t, nil)

	_, err := deliver(h, `{"order_id":"ghost","payment_status":"finished"}`)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Nil(t, h.db.Item("orders", "ghost"))
	assert.Equal(t, 0, h.db.Len("notifications"))
}

func TestHandle_PersistFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusPending})
	h.db.FailWith("UpdateItem", errors.New("dynamo down"))

	_, err := deliver(h, `{"order_id":"o1","payment_status":"finished"}`)
	assert.ErrorIs(t, err, ErrPersistFailed)
	assert.Equal(t, 0, h.db.Len("notifications"))
}

func TestHandle_NotificationFailureDoesNotFailDelivery(t *testing.T) {
	n := &failingNotifier{}
	h := newHarness(t, n)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusPending})

	res, err := deliver(h, `{"order_id":"o1","payment_status":"finished"}`)
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Equal(t, 1, n.calls)
}

func TestHandle_TerminalOrderIsAcknowledgedUnchanged(t *testing.T) {
	n := &failingNotifier{}
	h := newHarness(t, n)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusCompleted, PaymentStatus: "finished"})

	res, err := deliver(h, `{"order_id":"o1","payment_status":"expired"}`)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Zero(t, n.calls)

	got, _ := h.orders.Get(context.Background(), "o1")
	assert.Equal(t, orders.StatusCompleted, got.Status)
	assert.Equal(t, "finished", got.PaymentStatus)
}

func TestHandle_LateRetriesDoNotRewindOrder(t *testing.T) {
	n := &failingNotifier{}
	h := newHarness(t, n)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusProcessing, PaymentStatus: "finished"})

	res, err := deliver(h, `{"order_id":"o1","payment_status":"finished"}`)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Zero(t, n.calls)

	res, err = deliver(h, `{"order_id":"o1","payment_status":"waiting"}`)
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	got, _ := h.orders.Get(context.Background(), "o1")
	assert.Equal(t, orders.StatusProcessing, got.Status)
	assert.Equal(t, "finished", got.PaymentStatus)
}

func TestHandle_RedeliveryKeepsNotificationsRead(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, orders.Order{OrderID: "o1", Status: orders.StatusPending})
	body := `{"order_id":"o1","payment_id":5,"payment_status":"finished"}`

	_, err := deliver(h, body)
	require.NoError(t, err)

	store := notifications.NewStore(h.db, "notifications")
	list, err := store.ListForUser(context.Background(), "admin-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	updated, err := store.MarkRead(context.Background(), "admin-1", []string{list[0].NotificationID})
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	_, err = deliver(h, body)
	require.NoError(t, err)

	list, err = store.ListForUser(context.Background(), "admin-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)
	assert.Equal(t, 2, h.db.Len("notifications"))
}
