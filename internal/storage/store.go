// Package storage persists reference models and localization results.
package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/indoor-localization/internal/localization"
	"github.com/roman-kulish/indoor-localization/internal/reference"
)

// ErrNoData indicates that nothing is stored for the requested device.
var ErrNoData = errors.New("no data available")

// Store provides an interface for managing reference models and localization history.
// All operations that write to the database are atomic.
type Store interface {
	// SaveHeatmap replaces the reference model of a device with a symbolic heatmap.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - deviceID: Opaque device identifier
	//   - h: Heatmap to store, label and access point order is preserved
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	SaveHeatmap(ctx context.Context, deviceID string, h *reference.Heatmap) error

	// SaveAccessPoints replaces the reference model of a device with a table of
	// geo-referenced access points.
	SaveAccessPoints(ctx context.Context, deviceID string, t *reference.AccessPointTable) error

	// Heatmap loads the symbolic heatmap of a device. Returns ErrNoData if the device
	// has no heatmap.
	Heatmap(ctx context.Context, deviceID string) (*reference.Heatmap, error)

	// AccessPoints loads the access point table of a device. Returns ErrNoData if the
	// device has no access point table.
	AccessPoints(ctx context.Context, deviceID string) (*reference.AccessPointTable, error)

	// Model loads whichever reference model is stored for the device.
	// Returns ErrNoData if there is none.
	Model(ctx context.Context, deviceID string) (reference.Model, error)

	// Devices returns every device with a stored reference model, ordered by id.
	Devices(ctx context.Context) ([]Device, error)

	// StoreEstimate saves a localization result together with the measurements it was
	// computed from, in a single transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - record: Result record as emitted by the engine
	//   - set: Measurement set consumed by the request
	//
	// Returns:
	//   - requestID: Unique identifier of the stored request
	//   - error: If storage fails or context is cancelled
	StoreEstimate(ctx context.Context, record localization.Record, set reference.MeasurementSet) (requestID string, err error)

	// Estimates returns a reader over the stored results of a device, newest first.
	// The returned reader must be closed after use.
	Estimates(ctx context.Context, deviceID string, opts ...ReaderOption) (*SqliteEstimateReader, error)

	// Observations returns the measurements stored with a request.
	Observations(ctx context.Context, requestID string) ([]reference.Reading, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
