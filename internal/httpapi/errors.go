package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kdlbs/sessiond/internal/coordinator"
)

// writeError maps a coordinator error to an HTTP status and a uniform
// error body, per §7's propagation policy: typed coordinator errors are
// the only thing this layer ever translates.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, coordinator.ErrSessionNotFound):
		status, code = http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, coordinator.ErrPromptNotFound):
		status, code = http.StatusNotFound, "PROMPT_NOT_FOUND"
	case errors.Is(err, coordinator.ErrConcurrentSend):
		status, code = http.StatusConflict, "CONCURRENT_SEND"
	case errors.Is(err, coordinator.ErrSpawnFailed):
		status, code = http.StatusBadGateway, "SPAWN_FAILED"
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": message}})
}
