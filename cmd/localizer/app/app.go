package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roman-kulish/indoor-localization/internal/extract"
	"github.com/roman-kulish/indoor-localization/internal/localization"
	"github.com/roman-kulish/indoor-localization/internal/reference"
	"github.com/roman-kulish/indoor-localization/internal/render"
	"github.com/roman-kulish/indoor-localization/internal/storage"
)

// Run localizes every scan found in the log at logPath, or stdin when logPath
// is empty, and writes the records to out.
func Run(ctx context.Context, config *Config, logPath string, out io.Writer, logger *slog.Logger) error {
	deviceID := config.Model.DeviceID
	if deviceID == "" {
		return NewConfigError("device ID is required")
	}

	var store *storage.SqliteStore
	if config.Storage.DBPath != "" {
		store = storage.NewSqliteStore(config.Storage.DBPath)
		defer store.Close()
	}

	model, err := loadModel(ctx, config, store)
	if err != nil {
		return fmt.Errorf("loading reference model: %w", err)
	}

	logger.Info("reference model loaded",
		slog.String("deviceID", deviceID),
		slog.String("kind", reference.Kind(model)),
		slog.Int("entries", model.Len()))

	engine, err := createEngine(config, logger)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	var options []func(*Pipeline)
	if config.Storage.StoreEstimates {
		options = append(options, WithEstimateStore(store))
	}

	extractor := extract.NewExtractor(extract.WithLogger(logger))
	pipeline := NewPipeline(deviceID, model, extractor, engine, logger, options...)

	in, err := openLog(ctx, logPath)
	if err != nil {
		return err
	}
	defer in.Close()

	err = pipeline.Run(ctx, in, out)

	emitted, skipped := pipeline.Stats()
	logger.Info("finished", slog.Int("emitted", emitted), slog.Int("skipped", skipped))

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func createEngine(config *Config, logger *slog.Logger) (*localization.Engine, error) {
	options := []localization.Option{localization.WithLogger(logger)}

	if config.Render.Enabled {
		renderer, err := render.NewRenderer(config.Render.Config)
		if err != nil {
			return nil, fmt.Errorf("creating renderer: %w", err)
		}

		observer, err := render.NewPlotObserver(config.Render.Directory, renderer, render.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating plot observer: %w", err)
		}

		options = append(options, localization.WithObserver(observer))
	}

	return localization.NewEngine(config.Engine, options...)
}

func loadModel(ctx context.Context, config *Config, store *storage.SqliteStore) (reference.Model, error) {
	switch {
	case config.Model.Heatmap != "":
		return readCSV(config.Model.Heatmap, func(r io.Reader) (reference.Model, error) {
			return reference.ReadHeatmapCSV(r)
		})

	case config.Model.AccessPoints != "":
		return readCSV(config.Model.AccessPoints, func(r io.Reader) (reference.Model, error) {
			return reference.ReadAccessPointsCSV(r)
		})

	case store != nil:
		return store.Model(ctx, config.Model.DeviceID)

	default:
		return nil, NewConfigError("no reference model configured")
	}
}

func readCSV(path string, fn func(io.Reader) (reference.Model, error)) (reference.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	model, err := fn(f)
	if err != nil {
		return nil, fmt.Errorf("reading '%s': %w", path, err)
	}
	return model, nil
}

func openLog(ctx context.Context, path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}

	// unblock the reader on shutdown
	context.AfterFunc(ctx, func() { _ = f.Close() })
	return f, nil
}
