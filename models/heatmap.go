package models

import "time"

type HeatmapQuery struct {
	URL       string
	StartDate *time.Time
	EndDate   *time.Time
}

// Contains reports whether ts falls inside the inclusive query range.
func (q HeatmapQuery) Contains(ts time.Time) bool {
	if q.StartDate != nil && ts.Before(*q.StartDate) {
		return false
	}
	if q.EndDate != nil && ts.After(*q.EndDate) {
		return false
	}
	return true
}

type HeatmapPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Count int     `json:"count"`
}

type Heatmap struct {
	URL            string         `json:"url"`
	Clicks         []HeatmapPoint `json:"clicks"`
	TotalClicks    int            `json:"totalClicks"`
	UniqueSessions int            `json:"uniqueSessions"`
}
