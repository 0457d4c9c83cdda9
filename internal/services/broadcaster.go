package services

import "time"

// AlertEvent is the realtime payload pushed to connected caregiver
// dashboards when an alert is created or escalated.
type AlertEvent struct {
	AlertID     string    `json:"alert_id"`
	SharerEmail string    `json:"sharer_email"`
	AlertType   string    `json:"alert_type"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	Timestamp   time.Time `json:"timestamp"`
}

// Broadcaster pushes alert lifecycle events to live subscribers. Implemented
// by the websocket handler; a nil Broadcaster disables broadcasting.
type Broadcaster interface {
	SendAlertEvent(event *AlertEvent)
}
