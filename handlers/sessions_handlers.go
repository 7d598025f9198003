// api/handlers/sessions_handlers.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clickstream/api/analytics"
	"clickstream/api/utils"
)

type SessionsHandlers struct {
	Service *analytics.Service
	Timeout time.Duration
}

func NewSessionsHandlers(s *analytics.Service, timeout time.Duration) *SessionsHandlers {
	return &SessionsHandlers{
		Service: s,
		Timeout: timeout,
	}
}

func (h *SessionsHandlers) ListSessions(c *gin.Context) {
	page := utils.IntQueryOr(c.Query("page"), 1)
	limit := utils.IntQueryOr(c.Query("limit"), analytics.DefaultPageLimit)
	activeOnly := c.Query("activeOnly") == "true"

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	result, err := h.Service.ListSessions(ctx, page, limit, activeOnly)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       result.Sessions,
		"pagination": result.Pagination,
	})
}

func (h *SessionsHandlers) GetSessionEvents(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	timeline, err := h.Service.Timeline(ctx, c.Param("sessionId"))
	if err != nil {
		respondServiceError(c, err, "Failed to fetch session events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    timeline.Events,
		"session": timeline.Session,
	})
}

func (h *SessionsHandlers) GetSessionJourney(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	journey, err := h.Service.Journey(ctx, c.Param("sessionId"))
	if err != nil {
		respondServiceError(c, err, "Failed to fetch session journey")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": journey})
}
