package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

func registerPaymentRoutes(api *gin.RouterGroup, d Deps, v *validatorv10.Validate) {
	log := d.Logger.With(zap.String("component", "payments_handler"))
	g := api.Group("/payments")

	g.POST("/nowpayments", Idempotent(d.Idempotency, "payments.nowpayments", log), func(c *gin.Context) {
		var req validation.CryptoPaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		intent, err := d.Payments.InitiateCrypto(c.Request.Context(), payments.CryptoRequest{
			OrderID:        req.OrderID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			CryptoCurrency: req.CryptoCurrency,
		})
		if err != nil {
			writePaymentError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"paymentId":      intent.ID,
			"status":         intent.Status,
			"payAddress":     intent.PayAddress,
			"payAmount":      intent.PayAmount,
			"cryptoCurrency": intent.CryptoCurrency,
			"qrCodeUrl":      intent.QRCodeURL,
		})
	})

	g.POST("/money-motion", Idempotent(d.Idempotency, "payments.money_motion", log), func(c *gin.Context) {
		var req validation.CardPaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		intent, err := d.Payments.InitiateCard(c.Request.Context(), payments.CardRequest{
			OrderID:  req.OrderID,
			Amount:   req.Amount,
			Currency: req.Currency,
			Card: payments.CardData{
				Number: req.CardData.Number,
				Expiry: req.CardData.Expiry,
				CVV:    req.CardData.CVV,
				Name:   req.CardData.Name,
			},
		})
		if err != nil {
			writePaymentError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"paymentId":   intent.ID,
			"status":      intent.Status,
			"redirectUrl": intent.RedirectURL,
		})
	})

	g.POST("/paypal", Idempotent(d.Idempotency, "payments.paypal", log), func(c *gin.Context) {
		var req validation.PayPalPaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		intent, err := d.Payments.InitiateManualPayPal(c.Request.Context(), payments.PayPalRequest{
			OrderID:     req.OrderID,
			Amount:      req.Amount,
			Currency:    req.Currency,
			PayPalEmail: req.PayPalEmail,
		})
		if err != nil {
			writePaymentError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"paymentId":    intent.ID,
			"status":       intent.Status,
			"instructions": intent.Instructions,
		})
	})
}

func writePaymentError(c *gin.Context, log *zap.Logger, err error) {
	var perr *payments.ProviderError
	switch {
	case errors.Is(err, payments.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, payments.ErrOrderNotPayable):
		c.JSON(http.StatusConflict, gin.H{"error": "Order is not awaiting payment"})
	case errors.As(err, &perr):
		// already logged with the sanitized body by the service
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment processing failed"})
	case errors.Is(err, payments.ErrPersistFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
	case errors.Is(err, payments.ErrNotConfigured):
		log.Error("payment method not configured", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment method unavailable"})
	default:
		log.Error("payment initiation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
