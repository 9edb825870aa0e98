package contracts

import "time"

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "navigation-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// StepBrief is the current instruction as shown on the fleet map.
type StepBrief struct {
	Index       int     `json:"index"`
	Count       int     `json:"count"`
	Instruction string  `json:"instruction"`
	Meters      float64 `json:"distance_meters"`
}
