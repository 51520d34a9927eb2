// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vega-swarm/vega/internal/swarm"
)

// respondError maps a swarm error code onto an HTTP status and writes
// the standard error body.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := swarm.CodeOf(err)
	switch code {
	case swarm.ErrCodeNotFound:
		status = http.StatusNotFound
	case swarm.ErrCodeInvalidRequest, swarm.ErrCodeTriggerMisconfigured:
		status = http.StatusBadRequest
	case swarm.ErrCodeAgentUnavailable:
		status = http.StatusUnprocessableEntity
	case swarm.ErrCodeShuttingDown:
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"error": err.Error()}
	if code != "" {
		body["code"] = string(code)
	}
	c.JSON(status, body)
}
