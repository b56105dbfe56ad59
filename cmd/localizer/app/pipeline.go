package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/indoor-localization/internal/extract"
	"github.com/roman-kulish/indoor-localization/internal/localization"
	"github.com/roman-kulish/indoor-localization/internal/reference"
)

const scanBufferSize = 16

// EstimateStore persists the estimates produced by the pipeline.
type EstimateStore interface {
	StoreEstimate(ctx context.Context, record localization.Record, set reference.MeasurementSet) (string, error)
}

// WithEstimateStore stores every emitted record together with its measurements.
func WithEstimateStore(store EstimateStore) func(*Pipeline) {
	return func(p *Pipeline) {
		p.store = store
	}
}

// Pipeline extracts scans from a log, localizes every scan and writes one JSON
// record per line. Extraction and localization run in separate goroutines.
type Pipeline struct {
	deviceID  string
	model     reference.Model
	extractor *extract.Extractor
	engine    *localization.Engine
	store     EstimateStore
	logger    *slog.Logger

	mu      sync.Mutex
	emitted int
	skipped int
}

func NewPipeline(deviceID string, model reference.Model, extractor *extract.Extractor, engine *localization.Engine, logger *slog.Logger, options ...func(*Pipeline)) *Pipeline {
	p := Pipeline{
		deviceID:  deviceID,
		model:     model,
		extractor: extractor,
		engine:    engine,
		logger:    logger,
	}
	for _, option := range options {
		option(&p)
	}
	return &p
}

// Run reads the log until EOF or until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scans := make(chan extract.Scan, scanBufferSize)
	enc := json.NewEncoder(out)

	var wg sync.WaitGroup
	var handleErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		if handleErr = p.handleScans(ctx, scans, enc); handleErr != nil {
			cancel() // stop extraction as well
		}
	}()

	runErr := p.extractor.Run(ctx, in, func(scan extract.Scan) error {
		select {
		case scans <- scan:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	close(scans)
	wg.Wait()

	if handleErr != nil {
		return handleErr
	}
	return runErr
}

// Stats returns the number of emitted and skipped scans.
func (p *Pipeline) Stats() (emitted, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitted, p.skipped
}

func (p *Pipeline) handleScans(ctx context.Context, scans <-chan extract.Scan, enc *json.Encoder) error {
	for scan := range scans {
		if err := p.handleScan(ctx, scan, enc); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) handleScan(ctx context.Context, scan extract.Scan, enc *json.Encoder) error {
	record, err := p.engine.Estimate(ctx, p.deviceID, scan.Set, p.model)
	switch {
	case errors.Is(err, localization.ErrInvalidInput):
		p.logger.Warn("scan skipped",
			slog.Int("line", scan.Line),
			slog.String("source", scan.Source.String()),
			slog.String("reason", err.Error()))

		p.count(false)
		return nil

	case err != nil:
		return fmt.Errorf("localizing scan at line %d: %w", scan.Line, err)
	}

	if err = enc.Encode(record); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	p.count(true)

	if p.store != nil {
		requestID, err := p.store.StoreEstimate(ctx, record, scan.Set)
		if err != nil {
			p.logger.Error("storing estimate failed", slog.Int("line", scan.Line), slog.String("error", err.Error()))
			return nil
		}
		p.logger.Debug("estimate stored", slog.String("requestID", requestID))
	}

	return nil
}

func (p *Pipeline) count(emitted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if emitted {
		p.emitted++
	} else {
		p.skipped++
	}
}
