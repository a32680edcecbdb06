package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/idempotency"
)

const ctxUserID = "user_id"

// RequireAdmin trusts X-User-Id from the upstream authorizer and checks the
// user is flagged admin.
func RequireAdmin(users UserGetter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		u, err := users.Get(c.Request.Context(), userID)
		if err != nil {
			logger.Error("admin lookup failed", zap.String("user_id", userID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if u == nil || !u.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// recordingWriter keeps a copy of the body so it can be stored for replay.
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotent replays the stored response when a request repeats an
// Idempotency-Key within scope. Requests without the header pass through.
// Responses below 500 are stored; a 5xx releases the key for a retry.
func Idempotent(store IdempotencyStore, scope string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetHeader(IdempotencyKeyHeader)
		if clientKey == "" || store == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := idempotency.ScopedKey(scope, clientKey)
		log := logger.With(zap.String("idempotency_key", key))

		created, err := store.CreateIfNotExists(ctx, key, c.Param("id"))
		if err != nil {
			log.Error("idempotency claim failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if !created {
			rec, err := store.Get(ctx, key)
			if err != nil || rec == nil {
				log.Error("idempotency record unreadable", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			replay(c, rec)
			c.Abort()
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status >= http.StatusInternalServerError {
			if err := store.MarkFailed(ctx, key, fmt.Sprintf("status %d", status)); err != nil {
				log.Warn("failed to release idempotency key", zap.Error(err))
			}
			return
		}
		if err := store.MarkDone(ctx, key, rw.body.String(), status); err != nil {
			log.Warn("failed to store idempotent response", zap.Error(err))
		}
	}
}

// replay answers a duplicate from its idempotency record.
func replay(c *gin.Context, rec *idempotency.Record) {
	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		status := rec.ResponseStatus
		if status == 0 {
			status = http.StatusOK
		}
		if rec.ResponseBody != "" {
			c.Data(status, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		}
		c.JSON(status, gin.H{"success": true, "orderId": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusConflict, gin.H{"error": "Request already in progress", "orderId": rec.OrderID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
