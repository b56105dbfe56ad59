package render

import (
	"context"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roman-kulish/indoor-localization/internal/localization"
)

// WithLogger sets the logger used to report plotting failures.
func WithLogger(logger *slog.Logger) func(*PlotObserver) {
	return func(o *PlotObserver) {
		o.logger = logger
	}
}

// PlotObserver writes a PNG plot of every geometric solve into a directory.
// Files are named <device>-<n>.png where n counts the plots of the device.
// Failures are logged and never reach the solve that triggered them.
type PlotObserver struct {
	dir      string
	renderer *Renderer
	logger   *slog.Logger

	mu       sync.Mutex
	counters map[string]int
}

var _ localization.Observer = (*PlotObserver)(nil)

// NewPlotObserver creates an observer writing into dir, which is created if missing.
func NewPlotObserver(dir string, renderer *Renderer, options ...func(*PlotObserver)) (*PlotObserver, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating plot directory '%s': %w", dir, err)
	}

	o := PlotObserver{
		dir:      dir,
		renderer: renderer,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		counters: make(map[string]int),
	}
	for _, option := range options {
		option(&o)
	}

	return &o, nil
}

func (o *PlotObserver) ObserveGeometry(ctx context.Context, g localization.Geometry) {
	if ctx.Err() != nil {
		return
	}

	path, err := o.plot(g)
	if err != nil {
		o.logger.Error("plotting geometry failed",
			slog.String("deviceID", g.DeviceID),
			slog.String("error", err.Error()))
		return
	}

	o.logger.Debug("geometry plotted", slog.String("deviceID", g.DeviceID), slog.String("path", path))
}

func (o *PlotObserver) plot(g localization.Geometry) (path string, err error) {
	img, err := o.renderer.Render(g)
	if err != nil {
		return "", fmt.Errorf("rendering: %w", err)
	}

	path = filepath.Join(o.dir, fmt.Sprintf("%s-%d.png", fileName(g.DeviceID), o.next(g.DeviceID)))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err = png.Encode(out, img); err != nil {
		return "", fmt.Errorf("encoding '%s': %w", path, err)
	}
	return path, nil
}

func (o *PlotObserver) next(deviceID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.counters[deviceID]++
	return o.counters[deviceID]
}

// fileName keeps device identifiers such as MAC addresses usable as file names.
func fileName(deviceID string) string {
	if deviceID == "" {
		return "device"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, deviceID)
}
