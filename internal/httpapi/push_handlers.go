package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kdlbs/sessiond/internal/pushsvc"
)

func (s *Server) handlePushPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": s.push.VAPIDPublicKey()})
}

func (s *Server) handlePushSubscribe(c *gin.Context) {
	var sub pushsvc.Subscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.push.Subscribe(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "PUSH_SUBSCRIBE_FAILED", "message": err.Error()}})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "subscribed"})
}

func (s *Server) handlePushUnsubscribe(c *gin.Context) {
	var body struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.push.Unsubscribe(c.Request.Context(), body.Endpoint); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "PUSH_SUBSCRIPTION_NOT_FOUND", "message": err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unsubscribed"})
}
