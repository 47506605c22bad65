package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/usecase/messaging"
)

type createMessageRequest struct {
	TenantID       string         `json:"tenant_id" binding:"required"`
	Channel        string         `json:"channel" binding:"required"`
	Tier           string         `json:"tier"`
	Recipient      string         `json:"recipient" binding:"required"`
	TemplateCode   string         `json:"template_code"`
	Subject        string         `json:"subject"`
	Content        map[string]any `json:"content"`
	IdempotencyKey string         `json:"idempotency_key" binding:"required"`
	MaxAttempts    int            `json:"max_attempts"`
}

// CreateMessage accepts a send request. Replays of a known idempotency
// key return the existing message with 200 instead of 201.
func (r *Router) CreateMessage(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, created, err := r.messagingSvc.Enqueue(c.Request.Context(), messaging.EnqueueRequest{
		TenantID:       req.TenantID,
		Channel:        message.Channel(req.Channel),
		Tier:           message.Tier(req.Tier),
		Recipient:      req.Recipient,
		TemplateCode:   req.TemplateCode,
		Subject:        req.Subject,
		Content:        req.Content,
		IdempotencyKey: req.IdempotencyKey,
		MaxAttempts:    req.MaxAttempts,
	})
	if err != nil {
		r.logger.Error("enqueue_failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if created {
		c.JSON(http.StatusCreated, m)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (r *Router) GetMessage(c *gin.Context) {
	id, tenantID, ok := r.messageRef(c)
	if !ok {
		return
	}

	m, err := r.messagingSvc.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (r *Router) ListMessageAttempts(c *gin.Context) {
	id, tenantID, ok := r.messageRef(c)
	if !ok {
		return
	}

	attempts, err := r.messagingSvc.ListAttempts(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (r *Router) messageRef(c *gin.Context) (int64, string, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, "", false
	}
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return 0, "", false
	}
	return id, tenantID, true
}
