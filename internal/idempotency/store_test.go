package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/storefront-payments/internal/aws/awstest"
)

func newTestStore() (*Store, *awstest.Dynamo) {
	db := awstest.NewDynamo().AddTable("idempotency-table", "idempotency_key")
	s := NewStore(db, "idempotency-table", 48*time.Hour)
	s.nowFunc = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	return s, db
}

func TestCreateIfNotExists_Get_MarkDone(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	key := ScopedKey("payments.paypal", "client-key-1")

	created, err := s.CreateIfNotExists(ctx, key, "order-123")
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created, err = s.CreateIfNotExists(ctx, key, "order-123")
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil || rec == nil {
		t.Fatalf("Get: %v %v", rec, err)
	}
	if rec.Status != StatusInProgress || rec.OrderID != "order-123" {
		t.Fatalf("unexpected record %+v", rec)
	}
	wantExpiry := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC).Unix()
	if rec.ExpiresAt != wantExpiry {
		t.Fatalf("expires_at = %d, want %d", rec.ExpiresAt, wantExpiry)
	}

	if err := s.MarkDone(ctx, key, `{"success":true}`, 200); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	rec, _ = s.Get(ctx, key)
	if rec.Status != StatusDone || rec.ResponseBody != `{"success":true}` || rec.ResponseStatus != 200 {
		t.Fatalf("unexpected record after MarkDone: %+v", rec)
	}

	// a finished key is never reclaimed
	created, _ = s.CreateIfNotExists(ctx, key, "order-123")
	if created {
		t.Fatalf("DONE record must not be reclaimed")
	}
}

func TestMarkFailed_AllowsRetry(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, "k", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkFailed(ctx, "k", "provider_timeout"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	rec, _ := s.Get(ctx, "k")
	if rec.Status != StatusFailed || rec.Note != "provider_timeout" {
		t.Fatalf("unexpected record %+v", rec)
	}

	created, err := s.CreateIfNotExists(ctx, "k", "")
	if err != nil || !created {
		t.Fatalf("expected FAILED key to be reclaimed, got %v %v", created, err)
	}
	rec, _ = s.Get(ctx, "k")
	if rec.Status != StatusInProgress || rec.Note != "" {
		t.Fatalf("reclaimed record should be fresh: %+v", rec)
	}
}

func TestMarkDone_MissingRecord(t *testing.T) {
	s, db := newTestStore()
	if err := s.MarkDone(context.Background(), "ghost", "{}", 200); err == nil {
		t.Fatalf("expected error for missing record")
	}
	if db.Item("idempotency-table", "ghost") != nil {
		t.Fatalf("MarkDone must not create records")
	}
}

func TestGet_NotFoundAndErrors(t *testing.T) {
	s, db := newTestStore()
	rec, err := s.Get(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Fatalf("expected (nil, nil), got %v %v", rec, err)
	}

	db.FailWith("PutItem", errors.New("throttled"))
	if _, err := s.CreateIfNotExists(context.Background(), "x", ""); err == nil {
		t.Fatalf("expected put error to surface")
	}
}

func TestGet_SparseItem(t *testing.T) {
	s, db := newTestStore()
	db.Seed("idempotency-table", map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: "sparse"},
		"status":          &types.AttributeValueMemberS{Value: StatusDone},
		"response_status": &types.AttributeValueMemberN{Value: "201"},
	})
	rec, err := s.Get(context.Background(), "sparse")
	if err != nil || rec == nil || rec.ResponseStatus != 201 {
		t.Fatalf("unexpected %+v %v", rec, err)
	}
}
