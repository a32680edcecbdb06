package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

func registerAdminRoutes(admin *gin.RouterGroup, d Deps, v *validatorv10.Validate) {
	log := d.Logger.With(zap.String("component", "admin_handler"))

	registerAdminNotificationRoutes(admin, d, v, log)

	admin.PATCH("/orders/:id/status", func(c *gin.Context) {
		var req validation.UpdateOrderStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		orderID := c.Param("id")

		err := d.Orders.UpdateStatus(c.Request.Context(), orderID, req.From, req.To)
		if err != nil {
			writeOrderStateError(c, log, orderID, err)
			return
		}
		log.Info("order status changed",
			zap.String("order_id", orderID),
			zap.String("from", string(req.From)),
			zap.String("to", string(req.To)),
			zap.String("admin_id", c.GetString(ctxUserID)),
		)
		c.JSON(http.StatusOK, gin.H{"success": true, "orderId": orderID, "status": req.To})
	})

	admin.POST("/orders/:id/confirm-payment", Idempotent(d.Idempotency, "admin.confirm_payment", log), func(c *gin.Context) {
		ctx := c.Request.Context()
		orderID := c.Param("id")

		if err := d.Orders.ConfirmManualPayment(ctx, orderID); err != nil {
			writeOrderStateError(c, log, orderID, err)
			return
		}
		log.Info("manual payment confirmed",
			zap.String("order_id", orderID),
			zap.String("admin_id", c.GetString(ctxUserID)),
		)
		d.Metrics.Count(ctx, "ManualPaymentConfirmed", nil)

		if d.Notifier != nil {
			err := d.Notifier.Notify(ctx, notifications.Event{
				EventID: "paypal:" + orderID + ":" + orders.PaymentStatusManualConfirmed,
				Type:    notifications.TypePaymentConfirmed,
				OrderID: orderID,
				Message: fmt.Sprintf("PayPal payment confirmed for order #%s", orderID),
				Metadata: map[string]interface{}{
					"confirmedBy": c.GetString(ctxUserID),
				},
			})
			if err != nil {
				log.Warn("payment confirmation notification failed", zap.String("order_id", orderID), zap.Error(err))
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"orderId":       orderID,
			"status":        orders.StatusPaid,
			"paymentStatus": orders.PaymentStatusManualConfirmed,
		})
	})
}

func writeOrderStateError(c *gin.Context, log *zap.Logger, orderID string, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, orders.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status transition"})
	case errors.Is(err, orders.ErrStatusMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "Order status has changed"})
	default:
		log.Error("order update failed", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
	}
}
