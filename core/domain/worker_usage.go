package domain

import "time"

// UsageLog records one triage run reported by a client.
type UsageLog struct {
	ID               string    `json:"id" db:"id"`
	UserEmail        string    `json:"user_email" db:"user_email"`
	EmailsProcessed  int       `json:"emails_processed" db:"emails_processed"`
	TimeSavedMinutes float64   `json:"time_saved_minutes" db:"time_saved_minutes"`
	Date             time.Time `json:"date" db:"date"`
}

// GraphData is a day-by-day series, oldest first.
type GraphData struct {
	X []string  `json:"x"`
	Y []float64 `json:"y"`
}

// UsageStats aggregates all usage logs.
type UsageStats struct {
	TotalTimeSavedMinutes float64   `json:"total_time_saved_minutes"`
	TotalEmailsProcessed  int       `json:"total_emails_processed"`
	GraphData             GraphData `json:"graph_data"`
	ProductivityScore     int       `json:"productivity_score"`
}
