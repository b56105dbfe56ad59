package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/indoor-localization/internal/reference"
	"github.com/roman-kulish/indoor-localization/internal/storage"
)

func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.ModelFile != "" {
		if err := importModel(ctx, store, config.DeviceID, config.ModelFile, logger); err != nil {
			return fmt.Errorf("importing '%s': %w", config.ModelFile, err)
		}
	}
	if config.List {
		if err := listDevices(ctx, store, out); err != nil {
			return fmt.Errorf("listing devices: %w", err)
		}
	}
	if config.Estimates > 0 {
		if err := listEstimates(ctx, store, config.DeviceID, config.Estimates, out); err != nil {
			return fmt.Errorf("listing estimates: %w", err)
		}
	}

	return nil
}

func importModel(ctx context.Context, store storage.Store, deviceID, path string, logger *slog.Logger) error {
	kind, err := detectKind(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch kind {
	case reference.CSVHeatmap:
		h, err := reference.ReadHeatmapCSV(f)
		if err != nil {
			return err
		}
		if err = store.SaveHeatmap(ctx, deviceID, h); err != nil {
			return err
		}

		logger.Info("heatmap imported",
			slog.String("deviceID", deviceID),
			slog.String("locations", humanize.Comma(int64(h.Len()))),
			slog.String("accessPoints", humanize.Comma(int64(len(h.Universe())))))

	case reference.CSVAccessPoints:
		t, err := reference.ReadAccessPointsCSV(f)
		if err != nil {
			return err
		}
		if err = store.SaveAccessPoints(ctx, deviceID, t); err != nil {
			return err
		}

		logger.Info("access points imported",
			slog.String("deviceID", deviceID),
			slog.String("accessPoints", humanize.Comma(int64(t.Len()))))

	default:
		return fmt.Errorf("unrecognized CSV header")
	}

	return nil
}

func detectKind(path string) (reference.CSVKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return reference.CSVUnknown, err
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return reference.CSVUnknown, fmt.Errorf("reading header: %w", err)
	}
	return reference.DetectCSVKind(header), nil
}

func listDevices(ctx context.Context, store storage.Store, out io.Writer) error {
	devices, err := store.Devices(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DEVICE\tMODEL\tENTRIES\tUPDATED")
	for _, d := range devices {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.ModelKind, humanize.Comma(int64(d.Entries)), humanize.Time(d.UpdatedAt))
	}
	return w.Flush()
}

func listEstimates(ctx context.Context, store storage.Store, deviceID string, limit int, out io.Writer) error {
	r, err := store.Estimates(ctx, deviceID, storage.WithLimit(limit))
	if err != nil {
		return err
	}
	defer r.Close()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REQUEST\tCREATED\tREADINGS\tLOCATION")
	for r.Next(ctx) {
		est := r.Current()

		readings, err := store.Observations(ctx, est.RequestID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", est.RequestID, humanize.Time(est.CreatedAt), len(readings), est.Record.Location)
	}
	if err = r.Error(); err != nil {
		return err
	}
	return w.Flush()
}
