// Package extract scrapes access point readings from device log lines.
package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roman-kulish/indoor-localization/internal/reference"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5

	maxLineSize = 1 << 20
)

// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
var ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

// Scan is one set of readings reported by a single log line.
type Scan struct {
	Source Source
	Line   int
	Set    reference.MeasurementSet
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger for the extractor
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) Option {
	return func(e *Extractor) {
		e.parseErrorsThreshold = threshold
	}
}

// WithHandlers replaces the default Wi-Fi and BLE handlers.
func WithHandlers(handlers ...Handler) Option {
	return func(e *Extractor) {
		e.handlers = handlers
	}
}

// Extractor turns log lines into scans.
type Extractor struct {
	handlers             []Handler
	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewExtractor creates a new Extractor instance with a discard logger
func NewExtractor(opts ...Option) *Extractor {
	e := Extractor{
		handlers:             []Handler{NewWiFiHandler(), NewBLEHandler()},
		parseErrorsThreshold: ParseErrorsThreshold,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return &e
}

// Extract parses a single line. It reports false for lines no handler recognizes.
func (e *Extractor) Extract(line string) (Scan, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Scan{}, false, nil
	}

	for _, h := range e.handlers {
		if !h.Match(line) {
			continue
		}

		readings, err := h.Parse(line)
		if err != nil {
			return Scan{}, true, fmt.Errorf("%s: %w", h.Source(), err)
		}

		set, err := reference.NewMeasurementSet(readings...)
		if err != nil {
			return Scan{}, true, fmt.Errorf("%s: %w", h.Source(), err)
		}
		return Scan{Source: h.Source(), Set: set}, true, nil
	}

	return Scan{}, false, nil
}

// Run reads r line by line and calls fn for every scan. It stops at the end of
// input, when ctx is done, when fn fails, or after too many consecutive lines
// that were recognized but could not be parsed.
func (e *Extractor) Run(ctx context.Context, r io.Reader, fn func(Scan) error) error {
	var parseErrors uint8

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		scan, ok, err := e.Extract(scanner.Text())
		if err != nil {
			parseErrors++
			e.logger.Warn(fmt.Sprintf("error parsing scan: %s", err.Error()), slog.Int("line", n))

			if parseErrors >= e.parseErrorsThreshold {
				return ErrTooManyParseErrors
			}
			continue
		}
		if !ok {
			continue
		}

		parseErrors = 0 // reset counter

		scan.Line = n
		if err = fn(scan); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	return nil
}
