package domain

import "time"

// Maximum length of an analytics event type
const maxEventTypeLen = 50

// AnalyticsRequest is the payload for POST /analytics
type AnalyticsRequest struct {
	EventType string                 `json:"eventType"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Validate checks the analytics payload
func (r *AnalyticsRequest) Validate() error {
	var details []string
	if r.EventType == "" {
		details = append(details, "eventType is required")
	} else if len(r.EventType) > maxEventTypeLen {
		details = append(details, "eventType must be at most 50 characters")
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// AnalyticsResult is returned by POST /analytics
type AnalyticsResult struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	CreatedAt time.Time `json:"createdAt"`
}

// AnalyticsEvent is an ingested event, either from the HTTP endpoint or
// from the Kafka pipeline.
type AnalyticsEvent struct {
	UserID    string                 `json:"userId"`
	EventType string                 `json:"eventType"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
