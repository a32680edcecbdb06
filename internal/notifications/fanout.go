package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/retry"
	"github.com/imrishuroy/storefront-payments/internal/users"
)

var (
	ErrAdminLookupFailed        = errors.New("admin lookup failed")
	ErrNotificationInsertFailed = errors.New("notification insert failed")
)

// AdminLister returns every admin account.
type AdminLister interface {
	ListAdmins(ctx context.Context) ([]users.User, error)
}

// Inserter stores notification records. InsertBatch is for records with
// fresh ids; InsertNew skips ids that already exist.
type Inserter interface {
	InsertBatch(ctx context.Context, records []Notification) error
	InsertNew(ctx context.Context, records []Notification) (int, error)
}

// FanOut writes one notification per admin, synchronously.
type FanOut struct {
	admins  AdminLister
	store   Inserter
	retrier *retry.Retrier
	metrics *aws.Metrics
	logger  *zap.Logger
	nowFunc func() time.Time
}

func NewFanOut(admins AdminLister, store Inserter, retrier *retry.Retrier, metrics *aws.Metrics, logger *zap.Logger) *FanOut {
	return &FanOut{
		admins:  admins,
		store:   store,
		retrier: retrier,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "notifications")),
		nowFunc: time.Now,
	}
}

// Send builds and stores one record per admin and returns how many were written.
func (f *FanOut) Send(ctx context.Context, ev Event) (int, error) {
	admins, err := retry.Value(ctx, f.retrier, "users.list_admins", func(ctx context.Context) ([]users.User, error) {
		admins, err := f.admins.ListAdmins(ctx)
		if aws.IsPermanent(err) {
			return nil, retry.Permanent(err)
		}
		return admins, err
	})
	if err != nil {
		f.logger.Error("admin lookup failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrAdminLookupFailed, err)
	}
	if len(admins) == 0 {
		f.logger.Warn("no admins to notify", zap.String("type", string(ev.Type)), zap.String("order_id", ev.OrderID))
		return 0, nil
	}

	now := f.nowFunc().UTC()
	title := Title(ev.Type)
	records := make([]Notification, 0, len(admins))
	for _, a := range admins {
		records = append(records, Notification{
			NotificationID: notificationID(ev.EventID, a.UserID),
			UserID:         a.UserID,
			Type:           ev.Type,
			Title:          title,
			Message:        ev.Message,
			OrderID:        ev.OrderID,
			Metadata:       ev.Metadata,
			Read:           false,
			CreatedAt:      now,
		})
	}

	if ev.EventID == "" {
		err = f.store.InsertBatch(ctx, records)
	} else {
		var inserted int
		inserted, err = f.store.InsertNew(ctx, records)
		if err == nil && inserted < len(records) {
			f.logger.Info("skipped already delivered notifications",
				zap.String("event_id", ev.EventID),
				zap.Int("skipped", len(records)-inserted),
			)
		}
	}
	if err != nil {
		f.logger.Error("notification insert failed",
			zap.String("type", string(ev.Type)),
			zap.Int("admins", len(admins)),
			zap.Error(err),
		)
		return 0, fmt.Errorf("%w: %v", ErrNotificationInsertFailed, err)
	}

	f.metrics.Count(ctx, "AdminNotificationsSent", map[string]string{"type": string(ev.Type)})
	f.logger.Info("admin notifications sent",
		zap.String("type", string(ev.Type)),
		zap.String("order_id", ev.OrderID),
		zap.Int("count", len(records)),
	)
	return len(records), nil
}

// Notify implements Notifier.
func (f *FanOut) Notify(ctx context.Context, ev Event) error {
	_, err := f.Send(ctx, ev)
	return err
}

// notificationID is random for ad-hoc events and derived from the event id
// otherwise, so a redelivered event finds its own records already stored.
func notificationID(eventID, adminID string) string {
	if eventID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID+"/"+adminID)).String()
}
