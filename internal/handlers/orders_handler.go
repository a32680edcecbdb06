package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

func registerOrderRoutes(api *gin.RouterGroup, d Deps, v *validatorv10.Validate) {
	log := d.Logger.With(zap.String("component", "orders_handler"))

	api.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		clientKey := c.GetHeader(IdempotencyKeyHeader)
		if clientKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Idempotency-Key header"})
			return
		}
		idempKey := idempotency.ScopedKey("orders.create", clientKey)

		currency := strings.ToUpper(req.Currency)
		if currency == "" {
			currency = payments.DefaultCurrency
		}
		order := orders.Order{
			OrderID:   uuid.NewString(),
			UserID:    req.UserID,
			ProductID: req.ProductID,
			Amount:    req.Amount.String(),
			Currency:  currency,
			Status:    orders.StatusPending,
		}
		if req.ShippingAddress != nil {
			a := validation.FormatAddress(*req.ShippingAddress)
			order.ShippingAddress = &orders.ShippingAddress{
				Street:     a.Street,
				City:       a.City,
				State:      a.State,
				PostalCode: a.PostalCode,
				Country:    a.Country,
			}
		}

		rec := d.Idempotency.NewRecord(idempKey, order.OrderID)
		err := d.Orders.CreateWithIdempotencyTransaction(ctx, d.Idempotency.TableName(), rec, order, d.IdempotencyTTL)
		switch {
		case errors.Is(err, orders.ErrIdempotencyConflict):
			existing, getErr := d.Idempotency.Get(ctx, idempKey)
			if getErr != nil || existing == nil {
				log.Error("idempotency check failed", zap.String("idempotency_key", idempKey), zap.Error(errors.Join(err, getErr)))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			replay(c, existing)
			return
		case err != nil:
			log.Error("create order failed", zap.String("order_id", order.OrderID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
			return
		}

		log.Info("order created",
			zap.String("order_id", order.OrderID),
			zap.String("user_id", order.UserID),
			zap.String("amount", order.Amount),
			zap.String("currency", order.Currency),
		)
		d.Metrics.Count(ctx, "OrderCreated", nil)
		notifyNewOrder(ctx, d.Notifier, log, order)

		resp := gin.H{"success": true, "orderId": order.OrderID, "status": order.Status}
		if body, mErr := json.Marshal(resp); mErr == nil {
			if err := d.Idempotency.MarkDone(ctx, idempKey, string(body), http.StatusCreated); err != nil {
				log.Warn("failed to store checkout response", zap.String("order_id", order.OrderID), zap.Error(err))
			}
		}

		c.Header("Location", fmt.Sprintf("/api/orders/%s", order.OrderID))
		c.JSON(http.StatusCreated, resp)
	})

	// polled by the crypto checkout page
	api.GET("/orders/:id", func(c *gin.Context) {
		order, err := d.Orders.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			log.Error("get order failed", zap.String("order_id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"orderId":       order.OrderID,
			"status":        order.Status,
			"paymentStatus": order.PaymentStatus,
			"paymentMethod": order.PaymentMethod,
			"paymentId":     order.PaymentID,
			"amount":        order.Amount,
			"currency":      order.Currency,
			"updatedAt":     order.UpdatedAt,
		})
	})
}

// notifyNewOrder is best-effort; the order already exists.
func notifyNewOrder(ctx context.Context, n notifications.Notifier, log *zap.Logger, o orders.Order) {
	if n == nil {
		return
	}
	err := n.Notify(ctx, notifications.Event{
		EventID: "order:" + o.OrderID + ":new_order",
		Type:    notifications.TypeNewOrder,
		OrderID: o.OrderID,
		Message: fmt.Sprintf("New order #%s received", o.OrderID),
		Metadata: map[string]interface{}{
			"userId":    o.UserID,
			"productId": o.ProductID,
			"amount":    o.Amount,
			"currency":  o.Currency,
		},
	})
	if err != nil {
		log.Warn("new order notification failed", zap.String("order_id", o.OrderID), zap.Error(err))
	}
}
