package geo

import (
	"errors"
	"math"
	"strings"
	"time"
)

// LocationHistory is one archived technician position (`location_history` table).
type LocationHistory struct {
	ID             string
	TechnicianID   string
	SessionID      *string
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
	RecordedAt     time.Time
}

var (
	ErrMissingTechnicianID = errors.New("technician ID is missing")
	ErrNegativeAccuracy    = errors.New("accuracy_meters cannot be negative")
	ErrRecordedAtZeroTime  = errors.New("recorded_at must be a valid timestamp")
)

// NewLocationHistory builds a record for a technician sample. Accuracy and session are optional.
func NewLocationHistory(technicianID string, sessionID *string, at Coordinate, accuracyMeters *float64, recordedAt time.Time) (*LocationHistory, error) {
	record := &LocationHistory{
		TechnicianID:   strings.TrimSpace(technicianID),
		Latitude:       at.Lat,
		Longitude:      at.Lng,
		AccuracyMeters: accuracyMeters,
		RecordedAt:     recordedAt,
	}

	if sessionID != nil {
		sid := strings.TrimSpace(*sessionID)
		record.SessionID = &sid
	}

	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate checks invariants of the LocationHistory entity.
func (record LocationHistory) Validate() error {
	if record.TechnicianID == "" {
		return ErrMissingTechnicianID
	}

	if err := (Coordinate{Lat: record.Latitude, Lng: record.Longitude}).Validate(); err != nil {
		return err
	}

	if record.AccuracyMeters != nil {
		if *record.AccuracyMeters < 0 || math.IsNaN(*record.AccuracyMeters) {
			return ErrNegativeAccuracy
		}
	}

	if record.RecordedAt.IsZero() {
		return ErrRecordedAtZeroTime
	}
	return nil
}
