package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// PauseChannel stops dispatching on a channel. Messages stay queued and
// resume from where they left off; nothing is dead-lettered.
func (r *Router) PauseChannel(c *gin.Context) {
	ch, ok := r.channelParam(c)
	if !ok {
		return
	}
	r.disp.PauseChannel(ch)
	r.logger.Warn("channel_paused", zap.String("channel", string(ch)))
	c.JSON(http.StatusOK, gin.H{"status": "paused", "channel": ch})
}

func (r *Router) ResumeChannel(c *gin.Context) {
	ch, ok := r.channelParam(c)
	if !ok {
		return
	}
	r.disp.ResumeChannel(ch)
	r.logger.Info("channel_resumed", zap.String("channel", string(ch)))
	c.JSON(http.StatusOK, gin.H{"status": "resumed", "channel": ch})
}

func (r *Router) channelParam(c *gin.Context) (message.Channel, bool) {
	ch := message.Channel(c.Param("channel"))
	if !ch.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
		return "", false
	}
	return ch, true
}
