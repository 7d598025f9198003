package analytics

import (
	"context"

	"clickstream/api/models"
)

// Heatmap recomputes click density for q from the stored click events.
// No matches yields an empty heatmap, never an error.
func (s *Service) Heatmap(ctx context.Context, q models.HeatmapQuery) (*models.Heatmap, error) {
	if q.URL == "" {
		return nil, &ValidationError{Message: "URL is required"}
	}
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return nil, &ValidationError{Message: "endDate must not be before startDate"}
	}

	clicks, err := s.events.ListClickEvents(ctx, q)
	if err != nil {
		return nil, &PersistenceError{Op: "list click events", Err: err}
	}
	return BuildHeatmap(q, clicks), nil
}

type point struct{ x, y float64 }

// BuildHeatmap groups click events on q.URL inside q's range by exact (x, y).
// Events that do not match q are ignored, so callers may pass a superset.
func BuildHeatmap(q models.HeatmapQuery, events []models.Event) *models.Heatmap {
	counts := make(map[point]int)
	var order []point
	sessions := make(map[string]struct{})
	total := 0

	for i := range events {
		e := &events[i]
		if e.Type != models.EventTypeClick || e.URL != q.URL || !q.Contains(e.Timestamp) {
			continue
		}
		var p point
		if c := e.Click(); c != nil {
			p = point{x: c.X, y: c.Y}
		}
		if _, seen := counts[p]; !seen {
			order = append(order, p)
		}
		counts[p]++
		sessions[e.SessionID] = struct{}{}
		total++
	}

	heatmap := &models.Heatmap{
		URL:            q.URL,
		Clicks:         make([]models.HeatmapPoint, 0, len(order)),
		TotalClicks:    total,
		UniqueSessions: len(sessions),
	}
	for _, p := range order {
		heatmap.Clicks = append(heatmap.Clicks, models.HeatmapPoint{X: p.x, Y: p.y, Count: counts[p]})
	}
	return heatmap
}
