package storage

import (
	_ "embed"
)

const (
	upsertDeviceSQL = `
INSERT INTO devices (id,
                     model_kind,
                     entries,
                     updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET model_kind = excluded.model_kind,
                               entries    = excluded.entries,
                               updated_at = excluded.updated_at`

	selectDeviceSQL = `
SELECT
    id,
    model_kind,
    entries,
    updated_at
FROM devices
WHERE
    id = ?`

	selectDevicesSQL = `
SELECT
    id,
    model_kind,
    entries,
    updated_at
FROM devices
ORDER BY id`

	deleteHeatmapAccessPointsSQL = `DELETE FROM heatmap_access_points WHERE device_id = ?`
	deleteHeatmapLocationsSQL    = `DELETE FROM heatmap_locations WHERE device_id = ?`
	deleteHeatmapFingerprintsSQL = `DELETE FROM heatmap_fingerprints WHERE device_id = ?`
	deleteAccessPointsSQL        = `DELETE FROM access_points WHERE device_id = ?`

	insertHeatmapAccessPointSQL = `
INSERT INTO heatmap_access_points (device_id, position, ap_id)
VALUES (?, ?, ?)`

	insertHeatmapLocationSQL = `
INSERT INTO heatmap_locations (device_id, position, label)
VALUES (?, ?, ?)`

	insertHeatmapFingerprintSQL = `
INSERT INTO heatmap_fingerprints (device_id, label, ap_id, rssi)
VALUES (?, ?, ?, ?)`

	insertAccessPointSQL = `
INSERT INTO access_points (device_id,
                           position,
                           ap_id,
                           ssid,
                           latitude,
                           longitude,
                           a,
                           n)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectHeatmapAccessPointsSQL = `
SELECT
    ap_id
FROM heatmap_access_points
WHERE
    device_id = ?
ORDER BY position`

	selectHeatmapLocationsSQL = `
SELECT
    label
FROM heatmap_locations
WHERE
    device_id = ?
ORDER BY position`

	selectHeatmapFingerprintsSQL = `
SELECT
    label,
    ap_id,
    rssi
FROM heatmap_fingerprints
WHERE
    device_id = ?`

	selectAccessPointsSQL = `
SELECT
    ap_id,
    ssid,
    latitude,
    longitude,
    a,
    n
FROM access_points
WHERE
    device_id = ?
ORDER BY position`

	insertEstimateSQL = `
INSERT INTO estimates (request_id,
                       device_id,
                       created_at,
                       kind,
                       location)
VALUES (?, ?, ?, ?, ?)`

	insertObservationSQL = `
INSERT INTO observations (request_id,
                          ap_id,
                          rssi)
VALUES `

	selectEstimatesSQL = `
SELECT
    request_id,
    device_id,
    created_at,
    location
FROM estimates
WHERE
    device_id = ?
  AND created_at >= ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?`

	selectObservationsSQL = `
SELECT
    ap_id,
    rssi
FROM observations
WHERE
    request_id = ?
ORDER BY ap_id`
)

//go:embed schema.sql
var initSchemaSQL string
