package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

func registerNotificationRoutes(api *gin.RouterGroup, d Deps, v *validatorv10.Validate) {
	log := d.Logger.With(zap.String("component", "notifications_handler"))

	api.POST("/notifications/admin", func(c *gin.Context) {
		var req validation.AdminNotificationRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		sent, err := d.Broadcaster.Send(c.Request.Context(), notifications.Event{
			Type:     notifications.Type(req.Type),
			OrderID:  req.OrderID,
			Message:  req.Message,
			Metadata: req.Metadata,
		})
		switch {
		case errors.Is(err, notifications.ErrAdminLookupFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch admins"})
		case errors.Is(err, notifications.ErrNotificationInsertFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notifications"})
		case err != nil:
			log.Error("admin notification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		default:
			c.JSON(http.StatusOK, gin.H{"success": true, "notificationsSent": sent})
		}
	})
}

func registerAdminNotificationRoutes(admin *gin.RouterGroup, d Deps, v *validatorv10.Validate, log *zap.Logger) {
	admin.GET("/notifications", func(c *gin.Context) {
		limit := defaultNotificationLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
				return
			}
			limit = min(n, maxNotificationLimit)
		}

		list, err := d.Notifications.ListForUser(c.Request.Context(), c.GetString(ctxUserID), limit)
		if err != nil {
			log.Error("list notifications failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		unread := 0
		for _, n := range list {
			if !n.Read {
				unread++
			}
		}
		c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
	})

	admin.POST("/notifications/read", func(c *gin.Context) {
		var req validation.MarkNotificationsReadRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		n, err := d.Notifications.MarkRead(c.Request.Context(), c.GetString(ctxUserID), req.IDs)
		if err != nil {
			log.Error("mark notifications read failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
	})
}
