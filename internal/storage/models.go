package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/indoor-localization/internal/localization"
)

// Device describes the reference model stored for one device.
type Device struct {
	ID        string
	ModelKind string // "heatmap" or "access-points"
	Entries   int    // Labeled locations or access points
	UpdatedAt time.Time
}

// StoredEstimate is a persisted localization result.
type StoredEstimate struct {
	RequestID string
	CreatedAt time.Time
	Record    localization.Record
}

type deviceData struct {
	ID        string
	ModelKind string
	Entries   int
	UpdatedAt int64
}

type accessPointData struct {
	ID        string
	SSID      string
	Latitude  float64
	Longitude float64
	A         float64
	N         sql.NullFloat64
}

type estimateData struct {
	RequestID string
	DeviceID  string
	CreatedAt int64
	Location  []byte
}
