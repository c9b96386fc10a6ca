package models

import "time"

// Slot is a derived bookable window; it is never persisted.
type Slot struct {
	Date              string    `json:"date"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	StartTime         string    `json:"start_time"`
	DurationMinutes   int       `json:"duration_minutes"`
	Label             string    `json:"label,omitempty"`
	RemainingCapacity int       `json:"remaining_capacity"`
}
