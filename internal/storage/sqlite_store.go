package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/indoor-localization/internal/localization"
	"github.com/roman-kulish/indoor-localization/internal/reference"
)

const (
	modelHeatmap      = "heatmap"
	modelAccessPoints = "access-points"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	now    func() time.Time

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath. The
// database and its schema are created on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath, now: time.Now}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the read-only connection cannot create the file or the schema
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) SaveHeatmap(ctx context.Context, deviceID string, h *reference.Heatmap) (err error) {
	if deviceID == "" {
		return errors.New("device ID required")
	}
	if h == nil {
		return errors.New("heatmap required")
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = s.replaceDevice(ctx, tx, deviceID, modelHeatmap, h.Len()); err != nil {
		return err
	}

	for i, id := range h.Universe() {
		if _, err = tx.ExecContext(ctx, insertHeatmapAccessPointSQL, deviceID, i, id); err != nil {
			return fmt.Errorf("inserting access point '%s': %w", id, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, insertHeatmapFingerprintSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i, fp := range h.Fingerprints() {
		if _, err = tx.ExecContext(ctx, insertHeatmapLocationSQL, deviceID, i, fp.Label); err != nil {
			return fmt.Errorf("inserting location '%s': %w", fp.Label, err)
		}
		for id, rssi := range fp.Expected {
			if _, err = stmt.ExecContext(ctx, deviceID, fp.Label, id, rssi); err != nil {
				return fmt.Errorf("inserting fingerprint '%s/%s': %w", fp.Label, id, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) SaveAccessPoints(ctx context.Context, deviceID string, t *reference.AccessPointTable) (err error) {
	if deviceID == "" {
		return errors.New("device ID required")
	}
	if t == nil {
		return errors.New("access point table required")
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = s.replaceDevice(ctx, tx, deviceID, modelAccessPoints, t.Len()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, insertAccessPointSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i, ap := range t.AccessPoints() {
		_, err = stmt.ExecContext(ctx, deviceID, i, ap.ID, ap.SSID, ap.Latitude, ap.Longitude, ap.A, toNullFloat64(ap.N))
		if err != nil {
			return fmt.Errorf("inserting access point '%s': %w", ap.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// replaceDevice drops any model previously stored for the device and records the new one.
func (s *SqliteStore) replaceDevice(ctx context.Context, tx *sql.Tx, deviceID, kind string, entries int) error {
	for _, q := range []string{
		deleteHeatmapFingerprintsSQL,
		deleteHeatmapLocationsSQL,
		deleteHeatmapAccessPointsSQL,
		deleteAccessPointsSQL,
	} {
		if _, err := tx.ExecContext(ctx, q, deviceID); err != nil {
			return fmt.Errorf("deleting previous model: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, upsertDeviceSQL, deviceID, kind, entries, toUnixNano(s.now())); err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

func (s *SqliteStore) device(ctx context.Context, db *sql.DB, deviceID string) (*deviceData, error) {
	var d deviceData
	err := db.QueryRowContext(ctx, selectDeviceSQL, deviceID).Scan(&d.ID, &d.ModelKind, &d.Entries, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return &d, nil
}

func (s *SqliteStore) Model(ctx context.Context, deviceID string) (reference.Model, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	d, err := s.device(ctx, db, deviceID)
	if err != nil {
		return nil, err
	}

	switch d.ModelKind {
	case modelHeatmap:
		return s.loadHeatmap(ctx, db, deviceID)
	case modelAccessPoints:
		return s.loadAccessPoints(ctx, db, deviceID)
	default:
		return nil, fmt.Errorf("unknown model kind '%s' stored for device '%s'", d.ModelKind, deviceID)
	}
}

func (s *SqliteStore) Heatmap(ctx context.Context, deviceID string) (*reference.Heatmap, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	d, err := s.device(ctx, db, deviceID)
	if err != nil {
		return nil, err
	}
	if d.ModelKind != modelHeatmap {
		return nil, fmt.Errorf("%w: device '%s' has a %s model", ErrNoData, deviceID, d.ModelKind)
	}
	return s.loadHeatmap(ctx, db, deviceID)
}

func (s *SqliteStore) AccessPoints(ctx context.Context, deviceID string) (*reference.AccessPointTable, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	d, err := s.device(ctx, db, deviceID)
	if err != nil {
		return nil, err
	}
	if d.ModelKind != modelAccessPoints {
		return nil, fmt.Errorf("%w: device '%s' has a %s model", ErrNoData, deviceID, d.ModelKind)
	}
	return s.loadAccessPoints(ctx, db, deviceID)
}

func (s *SqliteStore) loadHeatmap(ctx context.Context, db *sql.DB, deviceID string) (h *reference.Heatmap, err error) {
	universe, err := queryStrings(ctx, db, selectHeatmapAccessPointsSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying access points: %w", err)
	}

	labels, err := queryStrings(ctx, db, selectHeatmapLocationsSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying locations: %w", err)
	}

	fps := make([]reference.Fingerprint, len(labels))
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		fps[i] = reference.Fingerprint{Label: l, Expected: make(map[string]int)}
		index[l] = i
	}

	rows, err := db.QueryContext(ctx, selectHeatmapFingerprintsSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var label, id string
		var rssi int
		if err = rows.Scan(&label, &id, &rssi); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		i, ok := index[label]
		if !ok {
			return nil, fmt.Errorf("fingerprint for unknown location '%s'", label)
		}
		fps[i].Expected[id] = rssi
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading fingerprints: %w", err)
	}

	return reference.NewHeatmap(universe, fps...)
}

func (s *SqliteStore) loadAccessPoints(ctx context.Context, db *sql.DB, deviceID string) (t *reference.AccessPointTable, err error) {
	rows, err := db.QueryContext(ctx, selectAccessPointsSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying access points: %w", err)
	}
	defer closeWithError(rows, &err)

	var aps []reference.AccessPoint
	for rows.Next() {
		var d accessPointData
		if err = rows.Scan(&d.ID, &d.SSID, &d.Latitude, &d.Longitude, &d.A, &d.N); err != nil {
			return nil, fmt.Errorf("scanning access point: %w", err)
		}
		aps = append(aps, reference.AccessPoint{
			ID:        d.ID,
			SSID:      d.SSID,
			Latitude:  d.Latitude,
			Longitude: d.Longitude,
			A:         d.A,
			N:         d.N.Float64,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading access points: %w", err)
	}

	return reference.NewAccessPointTable(aps...)
}

func (s *SqliteStore) Devices(ctx context.Context) (devices []Device, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectDevicesSQL)
	if err != nil {
		err = fmt.Errorf("querying devices: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d deviceData
		if err = rows.Scan(&d.ID, &d.ModelKind, &d.Entries, &d.UpdatedAt); err != nil {
			err = fmt.Errorf("scanning device: %w", err)
			return
		}
		devices = append(devices, Device{
			ID:        d.ID,
			ModelKind: d.ModelKind,
			Entries:   d.Entries,
			UpdatedAt: fromUnixNano(d.UpdatedAt),
		})
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreEstimate(ctx context.Context, record localization.Record, set reference.MeasurementSet) (requestID string, err error) {
	location, err := json.Marshal(record.Location)
	if err != nil {
		err = fmt.Errorf("marshaling estimate: %w", err)
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, insertEstimateSQL,
		id,
		record.DeviceID,
		toUnixNano(s.now()),
		record.Location.Kind().String(),
		string(location),
	)
	if err != nil {
		err = fmt.Errorf("inserting estimate: %w", err)
		return
	}

	if readings := set.Readings(); len(readings) > 0 {
		values := make([]interface{}, 0, len(readings)*3)
		valuesPlaceholder := "(?, ?, ?)"

		var sb strings.Builder
		sb.WriteString(insertObservationSQL)

		for i, r := range readings {
			values = append(values, id, r.ID, r.RSSI)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		// Single batch insert
		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			err = fmt.Errorf("batch inserting observations: %w", err)
			return
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
		return
	}

	return id, nil
}

// Estimates creates a reader over the stored results of a device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - deviceID: Device whose results are read
//   - opts: Optional configuration parameters for the reader (WithLimit, WithSince)
//
// The returned reader must be closed after use to release database resources.
func (s *SqliteStore) Estimates(ctx context.Context, deviceID string, opts ...ReaderOption) (*SqliteEstimateReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteEstimateReader(ctx, db, deviceID, opts...)
}

func (s *SqliteStore) Observations(ctx context.Context, requestID string) (readings []reference.Reading, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectObservationsSQL, requestID)
	if err != nil {
		err = fmt.Errorf("querying observations: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r reference.Reading
		if err = rows.Scan(&r.ID, &r.RSSI); err != nil {
			err = fmt.Errorf("scanning observation: %w", err)
			return
		}
		readings = append(readings, r)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) (values []string, err error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var v string
		if err = rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	err = rows.Err()
	return
}
