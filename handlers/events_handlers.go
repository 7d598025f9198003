// api/handlers/events_handlers.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clickstream/api/analytics"
	"clickstream/api/models"
	"clickstream/api/utils"
)

type EventsHandlers struct {
	Service *analytics.Service
	Timeout time.Duration
}

func NewEventsHandlers(s *analytics.Service, timeout time.Duration) *EventsHandlers {
	return &EventsHandlers{
		Service: s,
		Timeout: timeout,
	}
}

// CreateEvents accepts one event object or an array of events. The raw body
// is read regardless of Content-Type since beacon deliveries arrive as text/plain.
func (h *EventsHandlers) CreateEvents(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", CodeValidation)
		return
	}

	batch, err := analytics.ParseBatch(body)
	if err != nil {
		respondServiceError(c, err, "Failed to create event")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	result, err := h.Service.Ingest(ctx, batch)
	if err != nil {
		respondServiceError(c, err, "Failed to create event")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

type heatmapParams struct {
	URL       string `form:"url" binding:"required"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

func (h *EventsHandlers) GetHeatmap(c *gin.Context) {
	var params heatmapParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondError(c, http.StatusBadRequest, "URL is required", CodeValidation)
		return
	}

	startDate, err := utils.ParseTimeParam(params.StartDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid 'startDate' format. Use ISO-8601 (e.g., 2006-01-02T15:04:05Z)", CodeValidation)
		return
	}
	endDate, err := utils.ParseTimeParam(params.EndDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid 'endDate' format. Use ISO-8601 (e.g., 2006-01-02T15:04:05Z)", CodeValidation)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	heatmap, err := h.Service.Heatmap(ctx, models.HeatmapQuery{
		URL:       params.URL,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		respondServiceError(c, err, "Failed to fetch heatmap data")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": heatmap})
}
