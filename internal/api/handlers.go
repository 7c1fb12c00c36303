package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskstream/integration-service/internal/models"
	"github.com/taskstream/integration-service/internal/services"
)

// sendMessageRequest is the body of POST /api/v1/messages.
type sendMessageRequest struct {
	Integration string                 `json:"integration" binding:"required"`
	Payload     map[string]interface{} `json:"payload" binding:"required"`
}

func (s *Server) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	err := s.sync.SendMessage(c.Request.Context(), req.Integration, req.Payload)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"integration": req.Integration,
			"status":      "sent",
		})
	case errors.Is(err, services.ErrIntegrationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrSyncFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.logger.Error("send message failed", map[string]interface{}{
			"integration": req.Integration,
			"error":       err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// getStatus returns a best-effort status snapshot. Individual adapter
// failures degrade the response rather than failing it.
func (s *Server) getStatus(c *gin.Context) {
	statuses, err := s.sync.GetStatus()

	resp := gin.H{"integrations": statuses}
	if err != nil {
		resp["degraded"] = true
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.sync.GetMetrics()})
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
