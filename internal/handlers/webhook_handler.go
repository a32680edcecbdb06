package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/webhook"
)

func registerWebhookRoutes(api *gin.RouterGroup, d Deps) {
	log := d.Logger.With(zap.String("component", "webhook_handler"))

	api.POST("/webhooks/nowpayments", func(c *gin.Context) {
		// the signature covers these exact bytes
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, d.WebhookBodyLimit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		res, err := d.Webhooks.Handle(c.Request.Context(), body, c.GetHeader(webhook.SignatureHeader))
		switch {
		case errors.Is(err, webhook.ErrMissingSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing signature"})
		case errors.Is(err, webhook.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		case errors.Is(err, webhook.ErrMissingOrderID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing order ID"})
		case errors.Is(err, webhook.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		case errors.Is(err, webhook.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, webhook.ErrPersistFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
		case err != nil:
			log.Error("webhook processing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		case res.Ignored:
			c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		default:
			c.JSON(http.StatusOK, gin.H{"success": true})
		}
	})
}
