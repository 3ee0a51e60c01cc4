package models

import "time"

// Severity is the risk tier of a conflict
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
)

// AlertKind distinguishes proximity alerts from geofence intrusions
type AlertKind string

const (
	AlertKindProximity AlertKind = "proximity"
	AlertKindZone      AlertKind = "zone"
)

// ConflictTypeProximity is the only structured conflict type
const ConflictTypeProximity = "proximity"

// ConflictRecord is a loss of separation between two aircraft
type ConflictRecord struct {
	Type       string    `json:"type"`
	Flight1    string    `json:"flight1"`
	Flight2    string    `json:"flight2"`
	DistanceKm float64   `json:"distance_km"`
	Severity   Severity  `json:"severity"`
	Key        string    `json:"-"`
	DetectedAt time.Time `json:"detected_at"`
}

// Alert is a human-facing notification for a proximity conflict or a zone intrusion
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}
