package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ReaderOption configures an estimate reader with specific filtering criteria.
type ReaderOption func(*SqliteEstimateReader)

// WithLimit caps the number of estimates returned by the reader.
func WithLimit(n int) ReaderOption {
	return func(r *SqliteEstimateReader) {
		r.limit = n
	}
}

// WithSince sets the start time filter for the reader.
// Estimates stored before this time will be excluded.
func WithSince(t time.Time) ReaderOption {
	return func(r *SqliteEstimateReader) {
		r.since = t
	}
}

// SqliteEstimateReader iterates over stored estimates. A reader instance should
// only be used from a single goroutine.
type SqliteEstimateReader struct {
	db       *sql.DB
	deviceID string

	limit int
	since time.Time

	current *StoredEstimate
	rows    *sql.Rows
	err     error
}

func newSqliteEstimateReader(ctx context.Context, db *sql.DB, deviceID string, opts ...ReaderOption) (*SqliteEstimateReader, error) {
	r := &SqliteEstimateReader{
		db:       db,
		deviceID: deviceID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

func (r *SqliteEstimateReader) init(ctx context.Context) (err error) {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.deviceID == "" {
		return errors.New("device ID required")
	}
	if r.limit < 0 {
		return fmt.Errorf("limit must not be negative: %d", r.limit)
	}

	limit := int64(r.limit)
	if limit == 0 {
		limit = math.MaxInt64
	}

	r.rows, err = r.db.QueryContext(ctx, selectEstimatesSQL, r.deviceID, toUnixNano(r.since), limit)
	if err != nil {
		return fmt.Errorf("querying estimates: %w", err)
	}
	return nil
}

// Next advances the iterator and returns true if there is another estimate to read.
func (r *SqliteEstimateReader) Next(ctx context.Context) bool {
	if r.rows == nil || r.err != nil {
		return false
	}

	select {
	case <-ctx.Done():
		r.err = ctx.Err()
		return false
	default:
	}

	if !r.rows.Next() {
		return false
	}

	var d estimateData
	if r.err = r.rows.Scan(&d.RequestID, &d.DeviceID, &d.CreatedAt, &d.Location); r.err != nil {
		r.err = fmt.Errorf("scanning estimate: %w", r.err)
		return false
	}

	est := StoredEstimate{
		RequestID: d.RequestID,
		CreatedAt: fromUnixNano(d.CreatedAt),
	}
	est.Record.DeviceID = d.DeviceID
	if r.err = json.Unmarshal(d.Location, &est.Record.Location); r.err != nil {
		r.err = fmt.Errorf("decoding estimate '%s': %w", d.RequestID, r.err)
		return false
	}

	r.current = &est
	return true
}

// Current returns the current estimate in the iteration.
func (r *SqliteEstimateReader) Current() *StoredEstimate {
	return r.current
}

// Error returns any error that occurred during iteration.
func (r *SqliteEstimateReader) Error() error {
	if r.err != nil {
		return r.err
	}
	if r.rows != nil {
		return r.rows.Err()
	}
	return nil
}

func (r *SqliteEstimateReader) Close() error {
	if r.rows != nil {
		err := r.rows.Close()
		r.current = nil
		r.rows = nil
		return err
	}
	return nil
}
