package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

type receiptWebhookRequest struct {
	ProviderMessageID string     `json:"provider_message_id" binding:"required"`
	DeliveredAt       *time.Time `json:"delivered_at"`
}

// ReceiptWebhook ingests a provider delivery receipt. Unknown
// references 404 so the provider retries later; replays are 200.
func (r *Router) ReceiptWebhook(c *gin.Context) {
	var req receiptWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var at time.Time
	if req.DeliveredAt != nil {
		at = req.DeliveredAt.UTC()
	}

	if err := r.webhookSvc.RecordReceipt(c.Request.Context(), req.ProviderMessageID, at); err != nil {
		if errors.Is(err, message.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider message id"})
			return
		}
		r.logger.Error("receipt_webhook_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type inboundWebhookRequest struct {
	TenantID   string     `json:"tenant_id" binding:"required"`
	Channel    string     `json:"channel" binding:"required"`
	Contact    string     `json:"contact" binding:"required"`
	ReceivedAt *time.Time `json:"received_at"`
}

// InboundWebhook registers a customer-initiated message, opening or
// refreshing the contact's session window.
func (r *Router) InboundWebhook(c *gin.Context) {
	var req inboundWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var at time.Time
	if req.ReceivedAt != nil {
		at = req.ReceivedAt.UTC()
	}

	err := r.webhookSvc.RecordInbound(c.Request.Context(), req.TenantID, message.Channel(req.Channel), req.Contact, at)
	if err != nil {
		r.logger.Error("inbound_webhook_failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
